package validator

import (
	"regexp"
	"strings"
)

// repair is one bounded heuristic fix. apply reports whether it changed the
// candidate; unchanged repairs are skipped without counting as attempts.
type repair struct {
	name  string
	apply func(string) (string, bool)
}

// repairs is the fixed repair order: fence extraction, quote normalization,
// trailing-comma stripping, bracket balancing. The first repair whose result
// re-validates wins.
var repairs = []repair{
	{name: "extract_fence", apply: extractFence},
	{name: "normalize_quotes", apply: normalizeQuotes},
	{name: "strip_trailing_commas", apply: stripTrailingCommas},
	{name: "balance_brackets", apply: balanceBrackets},
}

var fenceRe = regexp.MustCompile("(?s)```(?:[a-zA-Z]*)\\s*\\n?(.*?)```")

// extractFence pulls the body of the first fenced code block.
func extractFence(s string) (string, bool) {
	m := fenceRe.FindStringSubmatch(s)
	if m == nil {
		return s, false
	}
	return strings.TrimSpace(m[1]), true
}

// normalizeQuotes rewrites single-quoted strings as double-quoted ones.
// Quotes inside double-quoted strings are left alone.
func normalizeQuotes(s string) (string, bool) {
	if !strings.Contains(s, "'") {
		return s, false
	}
	var b strings.Builder
	inDouble := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '"':
			if i == 0 || s[i-1] != '\\' {
				inDouble = !inDouble
			}
			b.WriteByte(ch)
		case '\'':
			if inDouble {
				b.WriteByte(ch)
			} else {
				b.WriteByte('"')
			}
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), true
}

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// stripTrailingCommas removes commas that directly precede a closing brace
// or bracket.
func stripTrailingCommas(s string) (string, bool) {
	out := trailingCommaRe.ReplaceAllString(s, "$1")
	return out, out != s
}

// balanceBrackets appends closers for unmatched braces and brackets.
// Characters inside string literals are ignored.
func balanceBrackets(s string) (string, bool) {
	var stack []byte
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			if ch == '"' && s[i-1] != '\\' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 {
		return s, false
	}
	var b strings.Builder
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String(), true
}
