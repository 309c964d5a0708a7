package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Abhishekshelar208/oceanquery/internal/ingester"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print a JSON report of what has been ingested.",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			report, err := ingester.RunStats(config)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}
