package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/crytic/medusa-smock/config"
	"github.com/crytic/medusa-smock/logging/colors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// initCmd represents the command provider for init
var initCmd = &cobra.Command{
	Use:               "init [format]",
	Short:             "Initializes a project configuration",
	Long:              `Initializes a project configuration, serialized as json (default) or yaml`,
	Args:              cmdValidateInitArgs,
	ValidArgsFunction: cmdValidInitArgs,
	RunE:              cmdRunInit,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add flags to init command
	err := addInitFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the init command", err)
	}

	// Add the init command and its associated flags to the root command
	rootCmd.AddCommand(initCmd)
}

// getSupportedConfigFormats returns the sorted names of the formats init can serialize a configuration to.
func getSupportedConfigFormats() []string {
	formats := make([]string, 0, len(supportedConfigFormats))
	for format := range supportedConfigFormats {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

// cmdValidInitArgs will return which flags and sub-commands are valid for dynamic completion for the init command
func cmdValidInitArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Gather a list of flags that are available to be used in the current command but have not been used yet
	var unusedFlags []string

	// Examine all the flags, and add any flags that have not been set in the current command line
	// to a list of unused flags
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})

	// If no format was provided yet, suggest the supported formats as well
	if len(args) == 0 {
		unusedFlags = append(unusedFlags, getSupportedConfigFormats()...)
	}
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateInitArgs validates CLI arguments
func cmdValidateInitArgs(cmd *cobra.Command, args []string) error {
	formats := strings.Join(getSupportedConfigFormats(), ", ")

	// Make sure we have no more than 1 arg
	if err := cobra.RangeArgs(0, 1)(cmd, args); err != nil {
		err = fmt.Errorf("init accepts at most 1 format argument (options: %s). "+
			"default format is %v", formats, DefaultConfigFormat)
		cmdLogger.Error("Failed to validate args to the init command", err)
		return err
	}

	// Ensure the optional provided argument refers to a supported format
	if len(args) == 1 {
		if _, ok := supportedConfigFormats[args[0]]; !ok {
			err := fmt.Errorf("init was provided invalid format argument '%s' (options: %s)", args[0], formats)
			cmdLogger.Error("Failed to validate args to the init command", err)
			return err
		}
	}
	return nil
}

// cmdRunInit executes the init CLI command and updates the project configuration with any flags
func cmdRunInit(cmd *cobra.Command, args []string) error {
	format := DefaultConfigFormat
	if len(args) == 1 {
		format = args[0]
	}

	// Check to see if --out flag was used and store the value of --out flag
	outputFlagUsed := cmd.Flags().Changed("out")
	outputPath, err := cmd.Flags().GetString("out")
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}
	// If we weren't provided an output path (flag was not used), we use our working directory
	if !outputFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			cmdLogger.Error("Failed to run the init command", err)
			return err
		}
		filename := strings.TrimSuffix(DefaultProjectConfigFilename, filepath.Ext(DefaultProjectConfigFilename))
		outputPath = filepath.Join(workingDirectory, filename+supportedConfigFormats[format])
	}

	// Update the default project configuration given whatever flags were set using the CLI
	projectConfig := config.GetDefaultProjectConfig()
	err = updateProjectConfigWithRuntimeFlags(cmd, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}
	err = projectConfig.Validate()
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	if _, err = os.Stat(outputPath); err == nil {
		// Prompt user for overwrite confirmation
		fmt.Print("The file already exists. Overwrite? (y/n): ")
		var response string
		if _, err := fmt.Scan(&response); err != nil {
			cmdLogger.Error("Failed to scan input", err)
			return err
		}

		if response != "y" && response != "Y" {
			fmt.Println("Operation canceled.")
			return nil
		}
	}

	// Write our project configuration
	err = projectConfig.WriteToFile(outputPath)
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	// Print a success message
	if absoluteOutputPath, err := filepath.Abs(outputPath); err == nil {
		outputPath = absoluteOutputPath
	}
	cmdLogger.Info("Project configuration successfully output to: ", colors.Bold, outputPath, colors.Reset)
	return nil
}
