package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Abhishekshelar208/oceanquery/internal/common"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/configuration"
)

const defaultConfigPath = "./config/oceanquery-ingester"

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "oceanquery-ingester",
		Short:        "oceanquery-ingester loads ARGO float profiles into Postgres.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringSlice(
		"config",
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)

	cmd.AddCommand(
		ingestCmd(),
		ingestFileCmd(),
		resumeCmd(),
		statsCmd(),
		optimizeCmd(),
	)

	return cmd
}

// loadConfig reads the layered configuration: built-in defaults, the config
// files, then OCEANQUERY_* environment variables.
func loadConfig(cmd *cobra.Command) (configuration.IngesterConfiguration, error) {
	overrides, err := cmd.Flags().GetStringSlice("config")
	if err != nil {
		return configuration.IngesterConfiguration{}, err
	}
	var config configuration.IngesterConfiguration
	common.LoadConfig(&config, defaultConfigPath, overrides)
	return config, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
