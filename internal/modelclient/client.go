// Package modelclient defines the fixed model-call capability and its closed
// set of concrete variants. Providers are added through the explicit
// registry, which is passed by dependency injection; there is no package
// global and no runtime monkey-patching.
package modelclient

import (
	"context"
	"fmt"
	"sort"
)

// Message is one turn of the conversation sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is a provider's reply.
type Response struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

// Caller is the model-call capability.
type Caller interface {
	Call(ctx context.Context, messages []Message, temperature float64, maxTokens int) (Response, error)
	Provider() string
	ModelName() string
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string   `json:"provider" mapstructure:"provider"`
	Model    string   `json:"model"    mapstructure:"model"`
	Cmd      []string `json:"cmd,omitempty" mapstructure:"cmd"`
	RunDir   string   `json:"run_dir,omitempty" mapstructure:"run_dir"`
}

// Factory builds a Caller for one provider.
type Factory func(ctx context.Context, cfg Config) (Caller, error)

// Registry is the explicit provider registration table.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in variants registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	_ = r.Register("gemini", newGeminiCaller)
	_ = r.Register("exec", newExecCaller)
	return r
}

// Register adds a provider factory. Duplicate registration is an error.
func (r *Registry) Register(provider string, f Factory) error {
	if _, exists := r.factories[provider]; exists {
		return fmt.Errorf("provider %q already registered", provider)
	}
	r.factories[provider] = f
	return nil
}

// New builds a caller for the configured provider.
func (r *Registry) New(ctx context.Context, cfg Config) (Caller, error) {
	f, ok := r.factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (registered: %v)", cfg.Provider, r.Providers())
	}
	return f(ctx, cfg)
}

// Providers lists registered provider names, sorted.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
