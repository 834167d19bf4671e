package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	compileErr     error
)

func settingsSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	})
	return compiledSchema, compileErr
}

// ValidateSettings checks the raw settings map against the embedded config
// schema before it is decoded into Config, so a typo in a budget or policy
// rule fails loudly instead of silently decoding to a zero value.
func ValidateSettings(settings map[string]any) error {
	schema, err := settingsSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(settings))
	if err != nil {
		return fmt.Errorf("validate config schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, issue := range result.Errors() {
		issues = append(issues, fmt.Sprintf("%s: %s", issue.Field(), issue.Description()))
	}
	sort.Strings(issues)

	return fmt.Errorf("config schema validation failed: %s", strings.Join(issues, "; "))
}
