package cmd

import (
	"github.com/crytic/medusa-smock/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootCmd represents the root CLI command object which all other commands stem from.
var rootCmd = &cobra.Command{
	Use:   "medusa-smock",
	Short: "Fakes and mocks for smart contract tests on the medusa test runtime",
	Long:  "medusa-smock hosts a self-contained test runtime whose contracts can be faked and mocked by tests",
}

// cmdLogger is the logger that will be used for the cmd package
var cmdLogger = logging.NewLogger(zerolog.InfoLevel, true)

// Execute provides an exportable function to invoke the CLI.
// Returns an error if one was encountered.
func Execute() error {
	return rootCmd.Execute()
}
