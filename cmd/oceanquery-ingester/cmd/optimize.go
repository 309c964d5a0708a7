package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Abhishekshelar208/oceanquery/internal/ingester"
)

func optimizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Refresh table statistics and prune stale ledger records.",
		Long: `Runs ANALYZE and a best-effort VACUUM over the data tables, then removes
failed ledger records older than the configured retention. Intended to run
after bulk-loading a large archive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return ingester.RunOptimize(config)
		},
	}
}
