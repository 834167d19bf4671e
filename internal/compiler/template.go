package compiler

import "github.com/metalagman/forma/internal/ir"

// Template declares how a role's instruction packet opens: goal preamble,
// standing constraints, preferred output schema and model family.
type Template struct {
	Role        string
	Goal        string
	Constraints []string
	OutputHint  string
	ModelFamily string
	Temperature float64
}

// genericTemplate is the fallback for unknown roles. Unknown roles never
// fail compilation.
var genericTemplate = Template{
	Role:        "agent",
	Goal:        "You are a focused software agent. Complete the task exactly as stated.",
	OutputHint:  "Respond with well-structured output matching the requested schema.",
	ModelFamily: "generic",
	Temperature: 0.7,
}

// builtinTemplates maps roles to their declarative templates.
var builtinTemplates = map[string]Template{
	"planner": {
		Role:        "planner",
		Goal:        "You are a planning agent. Decompose the task into an ordered, minimal set of concrete steps.",
		Constraints: []string{"Do not write code.", "Every step must be independently verifiable."},
		OutputHint:  "Return the plan as structured data, one entry per step.",
		ModelFamily: "gemini",
		Temperature: 0.4,
	},
	"researcher": {
		Role:        "researcher",
		Goal:        "You are a research agent. Gather and condense the facts needed for the task.",
		Constraints: []string{"Cite which context reference each fact came from."},
		OutputHint:  "Return findings as a list of facts with sources.",
		ModelFamily: "gemini",
		Temperature: 0.5,
	},
	"coder": {
		Role:        "coder",
		Goal:        "You are an implementation agent. Produce the code change the task asks for, nothing more.",
		Constraints: []string{"Match the conventions visible in the provided context.", "Keep the change minimal."},
		OutputHint:  "Return the complete changed files.",
		ModelFamily: "claude",
		Temperature: 0.2,
	},
	"reviewer": {
		Role:        "reviewer",
		Goal:        "You are a review agent. Judge the provided work against the task and its constraints.",
		Constraints: []string{"Report concrete defects only; no style opinions unless asked."},
		OutputHint:  "Return a verdict with a finding list.",
		ModelFamily: "claude",
		Temperature: 0.3,
	},
	"synthesizer": {
		Role:        "synthesizer",
		Goal:        "You are a synthesis agent. Merge the per-agent outputs into one coherent result.",
		Constraints: []string{"Preserve every substantive point; drop duplicates."},
		OutputHint:  "Return the merged result in the requested schema.",
		ModelFamily: "gemini",
		Temperature: 0.6,
	},
}

// TemplateRegistry resolves roles to templates. It is an explicit object so
// alternate tables can be injected; there is no package-global mutable state.
type TemplateRegistry struct {
	templates map[string]Template
	fallback  Template
}

// NewTemplateRegistry returns the built-in template table.
func NewTemplateRegistry() *TemplateRegistry {
	t := make(map[string]Template, len(builtinTemplates))
	for k, v := range builtinTemplates {
		t[k] = v
	}
	return &TemplateRegistry{templates: t, fallback: genericTemplate}
}

// Register adds or replaces a role template.
func (r *TemplateRegistry) Register(t Template) {
	r.templates[t.Role] = t
}

// Resolve maps a role to its template, falling back to the generic one.
func (r *TemplateRegistry) Resolve(role string) (Template, bool) {
	if t, ok := r.templates[role]; ok {
		return t, true
	}
	return r.fallback, false
}

// TemperatureFor returns the effective sampling temperature for an IR: the
// IR hint unless it is the default and the template declares one.
func (r *TemplateRegistry) TemperatureFor(p *ir.PromptIR) float64 {
	t, known := r.Resolve(p.Role)
	if known && p.TemperatureHint == ir.DefaultTemperature {
		return t.Temperature
	}
	return p.TemperatureHint
}
