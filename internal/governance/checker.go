package governance

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/forma/internal/ir"
)

// Violation records one matched policy pattern.
type Violation struct {
	Policy  string
	Action  Action
	Pattern string
	Field   string
}

// String renders the violation for the pipeline's flat violation list.
// Flag matches carry a "flag:" prefix so callers can tell them apart from
// deny matches without a second list.
func (v Violation) String() string {
	prefix := ""
	if v.Action == ActionFlag {
		prefix = "flag: "
	}
	return fmt.Sprintf("%s%s: forbidden pattern %q in %s", prefix, v.Policy, v.Pattern, v.Field)
}

// Result is the outcome of checking one IR.
type Result struct {
	Approved   bool
	Violations []Violation
}

// Strings flattens the violations into the pipeline contract's string list.
func (r Result) Strings() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.String()
	}
	return out
}

// Checker evaluates an ordered policy list against IRs. It is safe for
// concurrent use; the running counters are atomic.
type Checker struct {
	policies []Policy

	checks    atomic.Int64
	approvals atomic.Int64
	denials   atomic.Int64
}

// Option configures a Checker.
type Option func(*checkerConfig)

type checkerConfig struct {
	custom      []Policy
	useDefaults bool
}

// WithPolicies appends custom policies after the defaults (or replaces the
// defaults when combined with WithoutDefaults).
func WithPolicies(policies ...Policy) Option {
	return func(c *checkerConfig) { c.custom = append(c.custom, policies...) }
}

// WithoutDefaults suppresses the stock policy set.
func WithoutDefaults() Option {
	return func(c *checkerConfig) { c.useDefaults = false }
}

// NewChecker builds a checker. The policy list is validated at construction.
func NewChecker(opts ...Option) (*Checker, error) {
	cfg := checkerConfig{useDefaults: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	var policies []Policy
	if cfg.useDefaults {
		policies = DefaultPolicies()
	}
	policies = append(policies, cfg.custom...)
	if err := validatePolicies(policies); err != nil {
		return nil, err
	}
	return &Checker{policies: policies}, nil
}

// Check scans the IR against every policy in order. A deny match does not
// stop the scan; all violations are collected so the caller sees the full
// picture, but Approved is false if any deny policy matched.
func (c *Checker) Check(p *ir.PromptIR) Result {
	c.checks.Add(1)

	var violations []Violation
	denied := false
	for _, policy := range c.policies {
		for _, fv := range fieldValues(policy.Type, p) {
			for _, pattern := range policy.Patterns {
				if !strings.Contains(fv.value, pattern) {
					continue
				}
				violations = append(violations, Violation{
					Policy:  policy.Name,
					Action:  policy.Action,
					Pattern: pattern,
					Field:   fv.field,
				})
				if policy.Action == ActionDeny {
					denied = true
				}
			}
		}
	}

	if denied {
		c.denials.Add(1)
		log.Warn().Str("ir_id", p.ID).Int("violations", len(violations)).Msg("governance denied")
		return Result{Approved: false, Violations: violations}
	}
	c.approvals.Add(1)
	return Result{Approved: true, Violations: violations}
}

type fieldValue struct {
	field string
	value string
}

// fieldValues returns the labeled field values the policy class scans, in
// IR order so violation lists are deterministic.
func fieldValues(class FieldClass, p *ir.PromptIR) []fieldValue {
	var out []fieldValue
	switch class {
	case FieldContextRef:
		for i, ref := range p.ContextRefs {
			out = append(out, fieldValue{fmt.Sprintf("context_refs[%d]", i), ref})
		}
	case FieldIntent:
		out = append(out, fieldValue{"intent", p.Intent})
	case FieldConstraint:
		for i, c := range p.Constraints {
			out = append(out, fieldValue{fmt.Sprintf("constraints[%d]", i), c})
		}
	}
	return out
}

// Stats is a snapshot of the checker's running counters.
type Stats struct {
	Checks       int64   `json:"checks"`
	Approvals    int64   `json:"approvals"`
	Denials      int64   `json:"denials"`
	ApprovalRate float64 `json:"approval_rate"`
}

// Report returns the violations report counters.
func (c *Checker) Report() Stats {
	checks := c.checks.Load()
	s := Stats{
		Checks:    checks,
		Approvals: c.approvals.Load(),
		Denials:   c.denials.Load(),
	}
	if checks > 0 {
		s.ApprovalRate = float64(s.Approvals) / float64(checks)
	}
	return s
}
