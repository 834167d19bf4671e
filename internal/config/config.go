// Package config provides configuration loading and management for forma.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/metalagman/forma/internal/modelclient"
)

// Config is the root configuration.
type Config struct {
	Model     modelclient.Config `json:"model"     mapstructure:"model"`
	Budgets   Budgets            `json:"budgets"   mapstructure:"budgets"`
	Policies  PolicyConfig       `json:"policies"  mapstructure:"policies"`
	Schemas   map[string]string  `json:"schemas,omitempty"   mapstructure:"schemas"`
	Retention RetentionPolicy    `json:"retention" mapstructure:"retention"`
}

// Budgets defines run limits.
type Budgets struct {
	MaxPhases           int     `json:"max_phases"                     mapstructure:"max_phases"`
	Workers             int     `json:"workers,omitempty"              mapstructure:"workers"`
	TokenBudget         int     `json:"token_budget,omitempty"         mapstructure:"token_budget"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty" mapstructure:"confidence_threshold"`
}

// PolicyConfig controls the governance policy set.
type PolicyConfig struct {
	File            string           `json:"file,omitempty"             mapstructure:"file"`
	ReplaceDefaults bool             `json:"replace_defaults,omitempty" mapstructure:"replace_defaults"`
	Rules           []map[string]any `json:"rules,omitempty"            mapstructure:"rules"`
}

// RetentionPolicy defines how many old runs to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
}

// LoadPolicyRules merges the optional policy file's rules with the inline
// ones, file rules first.
func (c PolicyConfig) LoadPolicyRules() ([]map[string]any, error) {
	var rules []map[string]any
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		var doc struct {
			Policies []map[string]any `yaml:"policies"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse policy file: %w", err)
		}
		rules = append(rules, doc.Policies...)
	}
	rules = append(rules, c.Rules...)
	return rules, nil
}
