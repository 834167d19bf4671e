package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/forma/internal/ledger"
	"github.com/metalagman/forma/internal/modelclient"
	"github.com/metalagman/forma/internal/orchestrator"
	"github.com/metalagman/forma/internal/planner"
)

func runCmd() *cobra.Command {
	var maxPhases int
	var workers int
	cmd := &cobra.Command{
		Use:          "run <task>",
		Short:        "Run a task through the full orchestrated phase loop",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := args[0]
			storeDB, workDir, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()
			cfg, err := loadConfig(workDir)
			if err != nil {
				return err
			}
			if maxPhases > 0 {
				cfg.Budgets.MaxPhases = maxPhases
			}
			if workers > 0 {
				cfg.Budgets.Workers = workers
			}

			pipe, err := buildPipeline(cfg, workDir)
			if err != nil {
				return err
			}
			registry := modelclient.NewRegistry()
			caller, err := registry.New(cmd.Context(), cfg.Model)
			if err != nil {
				return err
			}

			runner := orchestrator.NewPipelineRunner(pipe, newValidator(cfg), caller, cfg.Budgets.TokenBudget)
			store := ledger.NewStore(storeDB, filepath.Join(workDir, ".forma", "runs"))
			orch := orchestrator.New(planner.NewStatic(), runner, store, orchestrator.Config{
				MaxPhases:           cfg.Budgets.MaxPhases,
				Workers:             cfg.Budgets.Workers,
				ConfidenceThreshold: cfg.Budgets.ConfidenceThreshold,
			})

			runLedger, err := orch.Run(cmd.Context(), task)
			if runLedger != nil {
				report := pipe.Report()
				log.Info().
					Str("run_id", runLedger.RunID).
					Str("status", runLedger.Status).
					Int64("governance_checks", report.Checks).
					Float64("approval_rate", report.ApprovalRate).
					Msg("run ledger sealed")
				fmt.Fprintln(cmd.OutOrStdout(), runLedger.FinalOutput)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&maxPhases, "max-phases", 0, "override budgets.max_phases")
	cmd.Flags().IntVar(&workers, "workers", 0, "override parallel agent workers")
	return cmd
}
