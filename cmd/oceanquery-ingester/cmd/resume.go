package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Abhishekshelar208/oceanquery/internal/ingester"
)

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume an interrupted ingestion run.",
		Long: `Processes the input directory, skipping every file already recorded as
ingested and retrying files that previously failed. This is the same
behaviour as ingest; the separate command exists to make intent explicit in
scripts and schedules.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if dir, _ := cmd.Flags().GetString("input-dir"); dir != "" {
				config.InputDirectory = dir
			}
			summary, err := ingester.Run(config, ingester.RunOptions{})
			if err != nil {
				return err
			}
			return reportSummary(summary)
		},
	}
	cmd.Flags().String("input-dir", "", "Override the configured input directory")
	return cmd
}
