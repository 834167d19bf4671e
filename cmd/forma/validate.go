package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func validateCmd() *cobra.Command {
	var schemaID string
	cmd := &cobra.Command{
		Use:          "validate <output-file>",
		Short:        "Validate a model output file against a declared schema",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(workDir)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read output file: %w", err)
			}

			report := newValidator(cfg).Validate(string(raw), schemaID)
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if report.Status == "invalid" {
				return fmt.Errorf("output is invalid")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaID, "schema", "default", "schema id to validate against")
	return cmd
}
