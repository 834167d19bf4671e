// Package validator checks raw model output against a declared schema,
// with format sniffing and bounded auto-repair of malformed JSON.
package validator

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Status classifies a validation outcome.
type Status string

// Validation statuses.
const (
	StatusValid       Status = "valid"
	StatusInvalid     Status = "invalid"
	StatusNeedsRepair Status = "needs_repair"
)

// Report is the structured result of one validation call.
type Report struct {
	Status   Status         `json:"status"`
	Format   string         `json:"format"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Repaired string         `json:"repaired,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// AuditEntry records one validation call, regardless of outcome.
type AuditEntry struct {
	At       time.Time `json:"at"`
	SchemaID string    `json:"schema_id"`
	Format   string    `json:"format"`
	Status   Status    `json:"status"`
	Repairs  []string  `json:"repairs,omitempty"`
	Errors   []string  `json:"errors,omitempty"`
}

// DefaultSchemas returns the stock schema table. The "default" schema only
// requires an object.
func DefaultSchemas() map[string]string {
	return map[string]string{
		"default": `{"$schema": "http://json-schema.org/draft-07/schema#", "type": "object"}`,
	}
}

// Validator validates model output. It is safe for concurrent use; the
// audit log serializes appends.
type Validator struct {
	schemas map[string]string

	mu    sync.Mutex
	audit []AuditEntry
}

// New builds a validator over a schema table. Missing table entries fall
// back to the default schema.
func New(schemas map[string]string) *Validator {
	merged := DefaultSchemas()
	for id, doc := range schemas {
		merged[id] = doc
	}
	return &Validator{schemas: merged}
}

// RegisterSchema adds or replaces a schema document.
func (v *Validator) RegisterSchema(id, doc string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[id] = doc
}

// Validate checks raw output against the schema with the given id. Parse or
// schema failures trigger the bounded repair sequence; the first repair that
// yields a valid payload wins.
func (v *Validator) Validate(raw, schemaID string) Report {
	report, applied := v.validate(raw, schemaID)

	v.mu.Lock()
	v.audit = append(v.audit, AuditEntry{
		At:       time.Now().UTC(),
		SchemaID: schemaID,
		Format:   report.Format,
		Status:   report.Status,
		Repairs:  applied,
		Errors:   report.Errors,
	})
	v.mu.Unlock()
	return report
}

func (v *Validator) validate(raw, schemaID string) (Report, []string) {
	format := DetectFormat(raw)
	schemaDoc := v.schemaDoc(schemaID)

	switch format {
	case "json", "markdown":
		return v.validateJSON(raw, format, schemaDoc)
	case "xml":
		return validateXML(raw), nil
	default:
		return Report{
			Status:   StatusValid,
			Format:   "text",
			Warnings: []string{"plain text output; no structural validation applied"},
		}, nil
	}
}

func (v *Validator) validateJSON(raw, format, schemaDoc string) (Report, []string) {
	payload, errs := parseAndCheck(raw, schemaDoc)
	if errs == nil {
		return Report{Status: StatusValid, Format: format, Payload: payload}, nil
	}

	var applied []string
	candidate := raw
	for _, r := range repairs {
		fixed, changed := r.apply(candidate)
		if !changed {
			continue
		}
		applied = append(applied, r.name)
		candidate = fixed
		payload, retryErrs := parseAndCheck(candidate, schemaDoc)
		if retryErrs == nil {
			return Report{
				Status:   StatusValid,
				Format:   format,
				Warnings: []string{fmt.Sprintf("auto-repaired output (%s)", strings.Join(applied, ", "))},
				Repaired: candidate,
				Payload:  payload,
			}, applied
		}
		errs = retryErrs
	}

	status := StatusInvalid
	if len(applied) == 0 {
		// Nothing in the repair sequence applied; the payload needs a kind
		// of repair this validator does not attempt.
		status = StatusNeedsRepair
	}
	return Report{Status: status, Format: format, Errors: errs}, applied
}

func (v *Validator) schemaDoc(schemaID string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if doc, ok := v.schemas[schemaID]; ok {
		return doc
	}
	return v.schemas["default"]
}

// parseAndCheck parses candidate JSON and validates it against the schema.
// A nil error slice means success. Fenced markdown is handled by the first
// repair in the sequence, not here.
func parseAndCheck(candidate, schemaDoc string) (map[string]any, []string) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &payload); err != nil {
		return nil, []string{fmt.Sprintf("parse json: %v", err)}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaDoc),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return nil, []string{fmt.Sprintf("schema check: %v", err)}
	}
	if result.Valid() {
		return payload, nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, schemaErr.String())
	}
	sort.Strings(errs)
	return nil, errs
}

func validateXML(raw string) Report {
	var node struct{}
	if err := xml.Unmarshal([]byte(raw), &node); err != nil {
		return Report{
			Status: StatusInvalid,
			Format: "xml",
			Errors: []string{fmt.Sprintf("parse xml: %v", err)},
		}
	}
	return Report{
		Status:   StatusValid,
		Format:   "xml",
		Warnings: []string{"xml output; field-level schema checks apply to json only"},
	}
}

// DetectFormat sniffs the structural format of raw output.
func DetectFormat(raw string) string {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return "text"
	case strings.Contains(trimmed, "```"):
		return "markdown"
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return "json"
	case strings.HasPrefix(trimmed, "<"):
		return "xml"
	case strings.HasPrefix(trimmed, "#"):
		return "markdown"
	default:
		return "text"
	}
}

// AuditLog returns a copy of the append-only audit log.
func (v *Validator) AuditLog() []AuditEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]AuditEntry(nil), v.audit...)
}
