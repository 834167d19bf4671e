// Package ir defines the intermediate representation of a prompt and its
// serialization contract. An IR instance is immutable after construction;
// the only sanctioned mutation path is Clone followed by edits on the copy.
package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version is the IR schema version emitted by this generation.
const Version = "1.0"

// ContextDigestSentinel replaces context_refs when a digest plugin folds the
// original list into metadata.
const ContextDigestSentinel = "__CONTEXT_DIGEST__"

// Metadata keys written by the built-in plugins.
const (
	MetaOriginalContextRefs = "original_context_refs"
	MetaContextDigest       = "context_digest"
	MetaOriginalBudget      = "original_budget"
	MetaBudgetMultiplier    = "budget_multiplier"
)

// Phase identifies the workflow stage an IR belongs to.
type Phase string

// Workflow phases.
const (
	PhasePlanning       Phase = "planning"
	PhaseResearch       Phase = "research"
	PhaseImplementation Phase = "implementation"
	PhaseReview         Phase = "review"
	PhaseSynthesis      Phase = "synthesis"
)

// ParsePhase converts a lowercase phase name into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhasePlanning, PhaseResearch, PhaseImplementation, PhaseReview, PhaseSynthesis:
		return Phase(s), nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// PromptIR is the structured record of an agent task before compilation.
type PromptIR struct {
	Role               string
	Intent             string
	Phase              Phase
	ContextRefs        []string
	Constraints        []string
	OutputRequirements map[string]any
	TokenBudget        int
	Priority           int
	ModelHint          string
	TemperatureHint    float64
	SchemaID           string
	IRVersion          string
	Metadata           map[string]any
	ID                 string
	CreatedAt          time.Time

	// extra holds unknown-but-present keys seen on decode so a re-encode
	// preserves them across the 1.x line.
	extra map[string]any
}

// Clone deep-copies the IR and assigns a fresh id. The source is untouched.
func (p *PromptIR) Clone() *PromptIR {
	out := *p
	out.ID = uuid.NewString()
	out.ContextRefs = append([]string(nil), p.ContextRefs...)
	out.Constraints = append([]string(nil), p.Constraints...)
	out.OutputRequirements = deepCopyMap(p.OutputRequirements)
	out.Metadata = deepCopyMap(p.Metadata)
	out.extra = deepCopyMap(p.extra)
	return &out
}

// Hash returns the first 16 hex characters of the SHA-256 of the canonical
// (sorted-key) serialization of the IR.
func (p *PromptIR) Hash() string {
	data, err := json.Marshal(p.ToMap())
	if err != nil {
		// ToMap only emits JSON-encodable values; this is unreachable for
		// IRs built through the Builder or FromMap.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// ToMap serializes the IR into the interchange map form. Timestamps are
// RFC 3339 with timezone, the phase is its lowercase name.
func (p *PromptIR) ToMap() map[string]any {
	m := map[string]any{
		"role":                p.Role,
		"intent":              p.Intent,
		"phase":               string(p.Phase),
		"context_refs":        stringsToAny(p.ContextRefs),
		"constraints":         stringsToAny(p.Constraints),
		"output_requirements": deepCopyMap(p.OutputRequirements),
		"token_budget":        p.TokenBudget,
		"priority":            p.Priority,
		"temperature_hint":    p.TemperatureHint,
		"schema_id":           p.SchemaID,
		"ir_version":          p.IRVersion,
		"metadata":            deepCopyMap(p.Metadata),
		"ir_id":               p.ID,
		"created_at":          p.CreatedAt.Format(time.RFC3339Nano),
	}
	if p.ModelHint != "" {
		m["model_hint"] = p.ModelHint
	}
	for k, v := range p.extra {
		if _, taken := m[k]; !taken {
			m[k] = deepCopyValue(v)
		}
	}
	return m
}

// FromMap decodes the interchange map form. The ir_version is gated: an
// unknown major version is rejected, an unknown 1.x minor is accepted with
// new optional fields default-filled. Unknown keys are retained.
func FromMap(m map[string]any) (*PromptIR, error) {
	version, _ := m["ir_version"].(string)
	if err := CheckVersion(version); err != nil {
		return nil, err
	}

	phaseName, _ := m["phase"].(string)
	phase, err := ParsePhase(phaseName)
	if err != nil {
		return nil, &MalformedIRError{Field: "phase", Reason: err.Error()}
	}

	p := &PromptIR{
		Role:               stringField(m, "role"),
		Intent:             stringField(m, "intent"),
		Phase:              phase,
		ContextRefs:        stringSliceField(m, "context_refs"),
		Constraints:        stringSliceField(m, "constraints"),
		OutputRequirements: mapField(m, "output_requirements"),
		TokenBudget:        intField(m, "token_budget", 0),
		Priority:           intField(m, "priority", DefaultPriority),
		ModelHint:          stringField(m, "model_hint"),
		TemperatureHint:    floatField(m, "temperature_hint", DefaultTemperature),
		SchemaID:           stringField(m, "schema_id"),
		IRVersion:          version,
		Metadata:           mapField(m, "metadata"),
		ID:                 stringField(m, "ir_id"),
	}
	if p.SchemaID == "" {
		p.SchemaID = DefaultSchemaID
	}
	if raw, ok := m["created_at"].(string); ok {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, &MalformedIRError{Field: "created_at", Reason: err.Error()}
		}
		p.CreatedAt = ts
	}

	for k, v := range m {
		if knownFields[k] {
			continue
		}
		if p.extra == nil {
			p.extra = make(map[string]any)
		}
		p.extra[k] = deepCopyValue(v)
	}
	return p, nil
}

var knownFields = map[string]bool{
	"role": true, "intent": true, "phase": true, "context_refs": true,
	"constraints": true, "output_requirements": true, "token_budget": true,
	"priority": true, "model_hint": true, "temperature_hint": true,
	"schema_id": true, "ir_version": true, "metadata": true,
	"ir_id": true, "created_at": true,
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		if typed, ok := m[key].([]string); ok && len(typed) > 0 {
			return append([]string(nil), typed...)
		}
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapField(m map[string]any, key string) map[string]any {
	raw, ok := m[key].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return deepCopyMap(raw)
}

func intField(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func floatField(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func deepCopyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
