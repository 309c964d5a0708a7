package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Abhishekshelar208/oceanquery/internal/ingester"
)

func ingestFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest-file [--input <file>] [file...]",
		Short: "Ingest the given profile files.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			paths := args
			if input, _ := cmd.Flags().GetString("input"); input != "" {
				paths = append(paths, input)
			}
			if len(paths) == 0 {
				return errors.New("no files given; pass them as arguments or via --input")
			}
			opts := ingester.RunOptions{Paths: paths}
			opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
			opts.Force, _ = cmd.Flags().GetBool("force")

			summary, err := ingester.Run(config, opts)
			if err != nil {
				return err
			}
			return reportSummary(summary)
		},
	}
	cmd.Flags().String("input", "", "Profile file to ingest")
	cmd.Flags().Bool("dry-run", false, "Parse and validate without writing to the database")
	cmd.Flags().Bool("force", false, "Re-ingest files even if already ingested")
	return cmd
}
