package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metalagman/forma/internal/ledger"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage recorded runs",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsPruneCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:          "list",
		Short:        "List recorded runs, newest first",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, _, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			store := ledger.NewStore(storeDB, "")
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  phases=%d  %s\n", r.RunID, r.Status, r.PhaseCount, r.Task)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	return cmd
}

func runsPruneCmd() *cobra.Command {
	var keepLast int
	cmd := &cobra.Command{
		Use:          "prune",
		Short:        "Prune old sealed runs from disk and database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, workDir, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			keep := keepLast
			if keep <= 0 {
				cfg, err := loadConfig(workDir)
				if err != nil {
					return err
				}
				keep = cfg.Retention.KeepLast
			}
			if keep <= 0 {
				return fmt.Errorf("set --keep-last or configure retention.keep_last")
			}

			store := ledger.NewStore(storeDB, "")
			removed, err := store.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d runs\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep this many most recent runs")
	return cmd
}
