package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/crytic/medusa-smock/config"
	"github.com/crytic/medusa-smock/logging"
	"github.com/crytic/medusa-smock/logging/colors"
	"github.com/crytic/medusa-smock/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addRuntimeFlags adds the flags overriding the runtime and smock configuration to the provided flag set.
func addRuntimeFlags(flags *pflag.FlagSet) {
	defaultConfig := config.GetDefaultProjectConfig()

	// Network and host version
	flags.String("network", "",
		fmt.Sprintf("name of the network the runtime reports (unless a config file is provided, default is %q)", defaultConfig.Runtime.NetworkName))
	flags.String("host-version", "",
		fmt.Sprintf("semantic version the runtime reports to sessions (unless a config file is provided, default is %q)", defaultConfig.Runtime.HostVersion))

	// Artifacts and accounts
	flags.String("artifacts", "", "directory of compilation artifacts loaded by the runtime")
	flags.StringSlice("accounts", []string{}, "account address(es) owned and funded by the runtime")

	// Smock options
	flags.Uint64("fake-gas-cost", 0,
		fmt.Sprintf("gas charged for every invocation answered by a fake (unless a config file is provided, default is %d)", defaultConfig.Smock.DefaultFakeGasCost))
	flags.Bool("no-record-calls", false, "disable recording of invocations of fakes and mocks")
}

// updateProjectConfigWithRuntimeFlags will update the given projectConfig with any runtime or smock flags that were
// provided to the command
func updateProjectConfigWithRuntimeFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// Update string options
	stringOptions := map[string]*string{
		"network":      &projectConfig.Runtime.NetworkName,
		"host-version": &projectConfig.Runtime.HostVersion,
		"artifacts":    &projectConfig.Runtime.ArtifactsDirectory,
	}
	for flagName, option := range stringOptions {
		if cmd.Flags().Changed(flagName) {
			*option, err = cmd.Flags().GetString(flagName)
			if err != nil {
				return err
			}
		}
	}

	// Update accounts
	if cmd.Flags().Changed("accounts") {
		projectConfig.Runtime.Accounts, err = cmd.Flags().GetStringSlice("accounts")
		if err != nil {
			return err
		}
	}

	// Update smock options
	if cmd.Flags().Changed("fake-gas-cost") {
		projectConfig.Smock.DefaultFakeGasCost, err = cmd.Flags().GetUint64("fake-gas-cost")
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("no-record-calls") {
		noRecordCalls, err := cmd.Flags().GetBool("no-record-calls")
		if err != nil {
			return err
		}
		projectConfig.Smock.RecordCalls = !noRecordCalls
	}
	return nil
}

// readProjectConfig obtains the project configuration for a command and navigates through the following
// possibilities:
// #1: We will search for either a custom config file (via --config) or the default (medusa-smock.json).
// If we find it, read it. If we can't read it, throw an error.
// #2: If a custom file was provided (--config was used), and we can't find the file, throw an error.
// #3: If medusa-smock.json can't be found, use the default project configuration.
func readProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	// Check to see if --config flag was used and store the value of --config flag
	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If --config was not used, look for `medusa-smock.json` in the current work directory
	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		configPath = filepath.Join(workingDirectory, DefaultProjectConfigFilename)
	}

	// Check to see if the file exists at configPath
	_, existenceError := os.Stat(configPath)

	// Possibility #1: File was found
	if existenceError == nil {
		cmdLogger.Info("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		return config.ReadProjectConfigFromFile(configPath)
	}

	// Possibility #2: If the --config flag was used, and we couldn't find the file, we'll throw an error
	if configFlagUsed {
		return nil, errors.WithStack(existenceError)
	}

	// Possibility #3: --config flag was not used and medusa-smock.json was not found, so use the default project config
	cmdLogger.Warn(fmt.Sprintf("Unable to find the config file at %v, will use the default project configuration instead", configPath))
	return config.GetDefaultProjectConfig(), nil
}

// setupGlobalLogger replaces the global logger with one following the provided logging configuration. If a log
// directory is configured, structured logs are also written to a new file within it. Console coloring is disabled
// if requested.
// Returns the log file, if one was created, or an error if it could not be created.
func setupGlobalLogger(loggingConfig config.LoggingConfig) (*os.File, error) {
	if loggingConfig.NoColor {
		colors.DisableColor()
	}
	logging.GlobalLogger = logging.NewLogger(loggingConfig.Level, loggingConfig.EnableConsoleLogging)
	if loggingConfig.LogDirectory == "" {
		return nil, nil
	}

	// Filename will be the "log-current_unix_timestamp.log"
	filename := "log-" + strconv.FormatInt(time.Now().Unix(), 10) + ".log"
	logFile, err := utils.CreateFile(loggingConfig.LogDirectory, filename)
	if err != nil {
		return nil, err
	}
	logging.GlobalLogger.AddWriter(logFile, logging.STRUCTURED)
	return logFile, nil
}
