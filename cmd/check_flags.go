package cmd

import (
	"github.com/crytic/medusa-smock/config"
	"github.com/spf13/cobra"
)

// addCheckFlags adds the various flags for the check command
func addCheckFlags() error {
	// Prevent alphabetical sorting of usage message
	checkCmd.Flags().SortFlags = false

	// Config file
	checkCmd.Flags().String("config", "", "path to config file")

	// Runtime overrides
	addRuntimeFlags(checkCmd.Flags())

	// Logging
	checkCmd.Flags().String("log-dir", "", "directory structured log files are written to")
	checkCmd.Flags().Bool("no-color", false, "disable colored console output")

	// Self-test
	checkCmd.Flags().Bool("self-test", false, "program a fake and verify its answers after attaching the session")
	return nil
}

// updateProjectConfigWithLoggingFlags will update the given projectConfig with any logging flags that were provided
// to the check command
func updateProjectConfigWithLoggingFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// Update the log directory
	if cmd.Flags().Changed("log-dir") {
		projectConfig.Logging.LogDirectory, err = cmd.Flags().GetString("log-dir")
		if err != nil {
			return err
		}
	}

	// Update console coloring
	if cmd.Flags().Changed("no-color") {
		projectConfig.Logging.NoColor, err = cmd.Flags().GetBool("no-color")
		if err != nil {
			return err
		}
	}
	return nil
}
