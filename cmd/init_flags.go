package cmd

// addInitFlags adds the various flags for the init command
func addInitFlags() error {
	// Prevent alphabetical sorting of usage message
	initCmd.Flags().SortFlags = false

	// Output path for configuration
	initCmd.Flags().String("out", "", "output path for the new project configuration file")

	// Runtime overrides
	addRuntimeFlags(initCmd.Flags())
	return nil
}
