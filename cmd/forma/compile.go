package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/metalagman/forma/internal/ir"
)

func compileCmd() *cobra.Command {
	var phase string
	var contextRefs []string
	var constraints []string
	var tokenBudget int
	var priority int
	cmd := &cobra.Command{
		Use:          "compile <role> <intent>",
		Short:        "Compile one IR into a model-ready instruction packet",
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

			irPhase, err := ir.ParsePhase(phase)
			if err != nil {
				return err
			}
			prompt, err := ir.New(args[0], args[1]).
				Phase(irPhase).
				ContextRefs(contextRefs...).
				Constraints(constraints...).
				TokenBudget(tokenBudget).
				Priority(priority).
				Build()
			if err != nil {
				return err
			}

			pipe, err := buildPipeline(cfg, workDir)
			if err != nil {
				return err
			}
			processed, approved, violations := pipe.Process(prompt)
			for _, v := range violations {
				fmt.Fprintln(cmd.ErrOrStderr(), "violation:", v)
			}
			if !approved {
				return fmt.Errorf("governance denied the ir")
			}

			packet, err := pipe.Compile(cmd.Context(), processed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "adapter=%s estimated_tokens=%d schema=%s\n",
				packet.Meta.Adapter, packet.EstimatedTokens, packet.SchemaID)
			fmt.Fprintln(cmd.OutOrStdout(), packet.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&phase, "phase", string(ir.PhaseImplementation), "workflow phase")
	cmd.Flags().StringSliceVar(&contextRefs, "context", nil, "context refs (file:, diff:, memory:, raw path)")
	cmd.Flags().StringSliceVar(&constraints, "constraint", nil, "constraints")
	cmd.Flags().IntVar(&tokenBudget, "budget", 0, "token budget (0 = unlimited)")
	cmd.Flags().IntVar(&priority, "priority", ir.DefaultPriority, "priority 1-10")
	return cmd
}
