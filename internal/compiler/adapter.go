package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// sections is the assembled instruction packet before model adaptation.
// Adapters wrap these structurally; they must not alter semantic content.
type sections struct {
	Goal        string
	Intent      string
	Context     []contextBlock
	Constraints []string
	Schema      string
}

// Adapter formats sections for one destination model family.
type Adapter interface {
	Family() string
	Render(s sections) string
}

// AdapterRegistry is the explicit, closed table of model adapters. New
// families are added by registration at construction time, never by
// runtime monkey-patching.
type AdapterRegistry struct {
	adapters map[string]Adapter
	fallback Adapter
}

// NewAdapterRegistry returns a registry with the built-in adapters.
func NewAdapterRegistry() *AdapterRegistry {
	r := &AdapterRegistry{
		adapters: make(map[string]Adapter),
		fallback: markdownAdapter{family: "generic"},
	}
	for _, a := range []Adapter{
		markdownAdapter{family: "generic"},
		markdownAdapter{family: "gemini"},
		tagAdapter{family: "claude"},
		markdownAdapter{family: "openai"},
	} {
		r.Register(a)
	}
	return r
}

// Register adds an adapter. Duplicate families are an error so the table
// stays unambiguous.
func (r *AdapterRegistry) Register(a Adapter) error {
	if _, exists := r.adapters[a.Family()]; exists {
		return fmt.Errorf("adapter family %q already registered", a.Family())
	}
	r.adapters[a.Family()] = a
	return nil
}

// Resolve picks an adapter by family, falling back to generic markdown.
func (r *AdapterRegistry) Resolve(family string) Adapter {
	if a, ok := r.adapters[family]; ok {
		return a
	}
	return r.fallback
}

// Families lists registered families, sorted.
func (r *AdapterRegistry) Families() []string {
	out := make([]string, 0, len(r.adapters))
	for f := range r.adapters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// markdownAdapter renders sections as markdown headers.
type markdownAdapter struct {
	family string
}

func (a markdownAdapter) Family() string { return a.family }

func (a markdownAdapter) Render(s sections) string {
	var b strings.Builder
	b.WriteString(s.Goal)
	b.WriteString("\n\n## Task\n")
	b.WriteString(s.Intent)
	b.WriteString("\n")
	if len(s.Context) > 0 {
		b.WriteString("\n## Context\n")
		for _, c := range s.Context {
			fmt.Fprintf(&b, "\n### %s\n%s\n", c.Ref, c.Content)
		}
	}
	if len(s.Constraints) > 0 {
		b.WriteString("\n## Constraints\n")
		for _, c := range s.Constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if s.Schema != "" {
		b.WriteString("\n## Output format\n")
		b.WriteString(s.Schema)
		b.WriteString("\n")
	}
	return b.String()
}

// tagAdapter renders sections inside explicit tags, the structure the
// claude family responds to best.
type tagAdapter struct {
	family string
}

func (a tagAdapter) Family() string { return a.family }

func (a tagAdapter) Render(s sections) string {
	var b strings.Builder
	b.WriteString(s.Goal)
	b.WriteString("\n\n<task>\n")
	b.WriteString(s.Intent)
	b.WriteString("\n</task>\n")
	if len(s.Context) > 0 {
		b.WriteString("\n<context>\n")
		for _, c := range s.Context {
			fmt.Fprintf(&b, "<document source=%q>\n%s\n</document>\n", c.Ref, c.Content)
		}
		b.WriteString("</context>\n")
	}
	if len(s.Constraints) > 0 {
		b.WriteString("\n<constraints>\n")
		for _, c := range s.Constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("</constraints>\n")
	}
	if s.Schema != "" {
		b.WriteString("\n<output_format>\n")
		b.WriteString(s.Schema)
		b.WriteString("\n</output_format>\n")
	}
	return b.String()
}
