package cmd

import (
	"fmt"
	"strings"

	"github.com/crytic/medusa-smock/cmd/exitcodes"
	"github.com/crytic/medusa-smock/config"
	"github.com/crytic/medusa-smock/logging"
	"github.com/crytic/medusa-smock/logging/colors"
	"github.com/crytic/medusa-smock/node"
	"github.com/crytic/medusa-smock/smock/sandbox"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/net/context"
)

// checkCmd represents the command provider for check
var checkCmd = &cobra.Command{
	Use:               "check",
	Short:             "Starts the test runtime and attaches a smock session to it",
	Long:              `Starts the test runtime described by the project configuration, attaches a smock session to it and reports the session`,
	Args:              cmdValidateCheckArgs,
	ValidArgsFunction: cmdValidCheckArgs,
	RunE:              cmdRunCheck,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the check command
	err := addCheckFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the check command", err)
	}

	// Add the check command and its associated flags to the root command
	rootCmd.AddCommand(checkCmd)
}

// cmdValidCheckArgs will return which flags and sub-commands are valid for dynamic completion for the check command
func cmdValidCheckArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Gather a list of flags that are available to be used in the current command but have not been used yet
	var unusedFlags []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateCheckArgs makes sure that there are no positional arguments provided to the check command
func cmdValidateCheckArgs(cmd *cobra.Command, args []string) error {
	// Make sure we have no positional args
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("check does not accept any positional arguments, only flags and their associated values")
		cmdLogger.Error("Failed to validate args to the check command", err)
		return err
	}
	return nil
}

// cmdRunCheck executes the CLI check command. It reads the project configuration, starts the runtime it describes,
// attaches a session and reports it. If --self-test was used, a fake is programmed and its answers are verified.
func cmdRunCheck(cmd *cobra.Command, args []string) error {
	projectConfig, err := readProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	// Update the project configuration given whatever flags were set using the CLI
	err = updateProjectConfigWithRuntimeFlags(cmd, projectConfig)
	if err == nil {
		err = updateProjectConfigWithLoggingFlags(cmd, projectConfig)
	}
	if err == nil {
		err = projectConfig.Validate()
	}
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
	}

	// Set up the global logger every package derives its sub-logger from
	logFile, err := setupGlobalLogger(projectConfig.Logging)
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
	}
	if logFile != nil {
		defer func() {
			logging.GlobalLogger.RemoveWriter(logFile)
			logFile.Close()
		}()
	}

	session, runtime, err := startSession(projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeSessionError)
	}
	reportSession(session, runtime)

	// Run the self-test if requested
	selfTest, err := cmd.Flags().GetBool("self-test")
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return err
	}
	if selfTest {
		err = runSelfTest(session)
		if err != nil {
			cmdLogger.Error("Self-test failed", err)
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeSelfTestFailed)
		}
		cmdLogger.Info(colors.GreenBold, "Self-test passed", colors.Reset)
	}
	return nil
}

// startSession creates the runtime described by the provided configuration and attaches a session to it.
// Returns the session and its runtime, or an error if either could not be created.
func startSession(projectConfig *config.ProjectConfig) (*sandbox.Sandbox, *node.Runtime, error) {
	runtime, err := node.NewRuntime(&projectConfig.Runtime)
	if err != nil {
		return nil, nil, err
	}
	session, err := sandbox.CreateWithConfig(context.Background(), runtime, &projectConfig.Smock)
	if err != nil {
		return nil, nil, err
	}
	return session, runtime, nil
}

// reportSession logs the network, host and accounts of the runtime along with the session attached to it.
func reportSession(session *sandbox.Sandbox, runtime *node.Runtime) {
	cmdLogger.Info("Network: ", colors.Bold, runtime.Network().Name, colors.Reset)
	cmdLogger.Info("Host version: ", colors.Bold, runtime.Version().String(), colors.Reset,
		" (", session.HostAdapter(), " adapter)")
	cmdLogger.Info("Session: ", colors.Bold, session.ID(), colors.Reset)
	for _, account := range session.Node().Accounts() {
		cmdLogger.Info("Account ", account.String(), " holds ", session.Node().Balance(account))
	}

	artifacts := runtime.Artifacts()
	if len(artifacts) == 0 {
		cmdLogger.Info("No artifacts are loaded, only fakes can be created")
		return
	}
	cmdLogger.Info("Artifacts available to mock: ", strings.Join(artifacts, ", "))
}
