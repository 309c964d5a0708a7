package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Abhishekshelar208/oceanquery/internal/ingester"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/model"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest every profile file found in the configured input directory.",
		Long: `Discovers profile files in the input directory, skips files already
ingested in earlier runs, and loads the rest in parallel. The run summary is
printed as JSON; the command exits non-zero if any file failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if dir, _ := cmd.Flags().GetString("input-dir"); dir != "" {
				config.InputDirectory = dir
			}
			if workers, _ := cmd.Flags().GetInt("max-workers"); workers > 0 {
				config.MaxWorkers = workers
			}
			opts := ingester.RunOptions{}
			opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
			opts.Force, _ = cmd.Flags().GetBool("force")

			summary, err := ingester.Run(config, opts)
			if err != nil {
				return err
			}
			return reportSummary(summary)
		},
	}
	cmd.Flags().String("input-dir", "", "Override the configured input directory")
	cmd.Flags().Int("max-workers", 0, "Override the configured number of parallel workers")
	cmd.Flags().Bool("dry-run", false, "Parse and validate without writing to the database")
	cmd.Flags().Bool("force", false, "Re-ingest files even if already ingested")
	return cmd
}

func reportSummary(summary *model.RunSummary) error {
	if err := printJSON(summary); err != nil {
		return err
	}
	if summary.FilesFailed > 0 {
		return errors.Errorf("%d of %d files failed", summary.FilesFailed, summary.FilesProcessed)
	}
	return nil
}
