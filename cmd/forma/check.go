package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/metalagman/forma/internal/ir"
)

func checkCmd() *cobra.Command {
	var contextRefs []string
	var constraints []string
	cmd := &cobra.Command{
		Use:          "check <role> <intent>",
		Short:        "Run governance policies over an IR without compiling it",
		Args:         cobra.ExactArgs(2),
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
			checker, err := newChecker(cfg)
			if err != nil {
				return err
			}

			prompt, err := ir.New(args[0], args[1]).
				ContextRefs(contextRefs...).
				Constraints(constraints...).
				Build()
			if err != nil {
				return err
			}

			result := checker.Check(prompt)
			for _, v := range result.Violations {
				fmt.Fprintln(cmd.OutOrStdout(), v.String())
			}
			if !result.Approved {
				return fmt.Errorf("denied")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "approved")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&contextRefs, "context", nil, "context refs to check")
	cmd.Flags().StringSliceVar(&constraints, "constraint", nil, "constraints to check")
	return cmd
}
