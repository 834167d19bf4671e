// Package governance evaluates policies over an IR before any external-call
// budget is spent.
package governance

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// FieldClass selects which IR field set a policy scans.
type FieldClass string

// Policy field classes.
const (
	FieldContextRef FieldClass = "context_ref"
	FieldIntent     FieldClass = "intent"
	FieldConstraint FieldClass = "constraint"
)

// Action determines what a matched policy does.
type Action string

// Policy actions.
const (
	ActionDeny Action = "deny"
	ActionFlag Action = "flag"
)

// Policy is one governance rule: forbidden substrings over a field class.
// Matching is case-sensitive substring search, not regex.
type Policy struct {
	Name     string
	Type     FieldClass
	Patterns []string
	Action   Action
}

// DefaultPolicies returns the stock policy set, evaluated in order.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			Name: "protected_paths",
			Type: FieldContextRef,
			Patterns: []string{
				"/etc/passwd", "/etc/shadow", "/etc/sudoers",
				"/.ssh/", "/.aws/credentials", "/proc/",
			},
			Action: ActionDeny,
		},
		{
			Name:     "destructive_intent",
			Type:     FieldIntent,
			Patterns: []string{"drop database", "rm -rf", "truncate table", "force push"},
			Action:   ActionFlag,
		},
		{
			Name:     "sensitive_constraints",
			Type:     FieldConstraint,
			Patterns: []string{"bypass", "ignore policy", "disable safety"},
			Action:   ActionDeny,
		},
	}
}

// policySpec is the raw configuration shape. Both forbidden_patterns and
// forbidden_keywords are accepted and merged, patterns first.
type policySpec struct {
	Name              string   `mapstructure:"name"`
	Type              string   `mapstructure:"type"`
	ForbiddenPatterns []string `mapstructure:"forbidden_patterns"`
	ForbiddenKeywords []string `mapstructure:"forbidden_keywords"`
	Action            string   `mapstructure:"action"`
}

// PoliciesFromConfig decodes raw policy maps (from YAML or JSON config) into
// validated policies, preserving list order.
func PoliciesFromConfig(raw []map[string]any) ([]Policy, error) {
	out := make([]Policy, 0, len(raw))
	for i, entry := range raw {
		var spec policySpec
		if err := mapstructure.Decode(entry, &spec); err != nil {
			return nil, fmt.Errorf("decode policy %d: %w", i, err)
		}
		p := Policy{
			Name:     spec.Name,
			Type:     FieldClass(spec.Type),
			Patterns: append(append([]string(nil), spec.ForbiddenPatterns...), spec.ForbiddenKeywords...),
			Action:   Action(spec.Action),
		}
		out = append(out, p)
	}
	if err := validatePolicies(out); err != nil {
		return nil, err
	}
	return out, nil
}

func validatePolicies(policies []Policy) error {
	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if p.Name == "" {
			return fmt.Errorf("policy with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate policy name %q", p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case FieldContextRef, FieldIntent, FieldConstraint:
		default:
			return fmt.Errorf("policy %q: unknown field class %q", p.Name, p.Type)
		}
		switch p.Action {
		case ActionDeny, ActionFlag:
		default:
			return fmt.Errorf("policy %q: unknown action %q", p.Name, p.Action)
		}
		if len(p.Patterns) == 0 {
			return fmt.Errorf("policy %q: no forbidden patterns", p.Name)
		}
	}
	return nil
}
