package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/metalagman/forma/internal/compiler"
	"github.com/metalagman/forma/internal/config"
	"github.com/metalagman/forma/internal/contextsrc"
	"github.com/metalagman/forma/internal/governance"
	"github.com/metalagman/forma/internal/ledger"
	"github.com/metalagman/forma/internal/pipeline"
	"github.com/metalagman/forma/internal/plugin"
	"github.com/metalagman/forma/internal/validator"
)

func openDB() (*sql.DB, string, func(), error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, "", func() {}, err
	}
	formaDir := filepath.Join(workDir, ".forma")
	if err := os.MkdirAll(formaDir, 0o755); err != nil {
		return nil, "", func() {}, err
	}
	dbPath := filepath.Join(formaDir, "forma.db")
	storeDB, err := ledger.Open(dbPath)
	if err != nil {
		return nil, "", func() {}, err
	}
	return storeDB, workDir, func() { _ = storeDB.Close() }, nil
}

func loadConfig(workDir string) (config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		path = filepath.Join(".forma", "config.json")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("json")
	if err := viper.ReadInConfig(); err != nil {
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := config.ValidateSettings(viper.AllSettings()); err != nil {
		return config.Config{}, err
	}
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Budgets.MaxPhases <= 0 {
		return config.Config{}, fmt.Errorf("budgets.max_phases must be > 0")
	}
	return cfg, nil
}

func newChecker(cfg config.Config) (*governance.Checker, error) {
	rules, err := cfg.Policies.LoadPolicyRules()
	if err != nil {
		return nil, err
	}
	custom, err := governance.PoliciesFromConfig(rules)
	if err != nil {
		return nil, err
	}
	opts := []governance.Option{governance.WithPolicies(custom...)}
	if cfg.Policies.ReplaceDefaults {
		opts = append(opts, governance.WithoutDefaults())
	}
	return governance.NewChecker(opts...)
}

func buildPipeline(cfg config.Config, workDir string) (*pipeline.Pipeline, error) {
	checker, err := newChecker(cfg)
	if err != nil {
		return nil, err
	}
	comp := compiler.New(contextsrc.New(workDir))
	return pipeline.New(checker, plugin.DefaultChain(), comp), nil
}

func newValidator(cfg config.Config) *validator.Validator {
	return validator.New(cfg.Schemas)
}
