package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// completionCmd represents the completion command
var completionCmd = &cobra.Command{
	Use: "completion bash",
	Short: "Generate shell completion code for specified shell (bash) and evaluate it " +
		"to enable interactive completion of medusa-smock commands",
	Long: `To load completions:

Bash:

  $ source <(%[1]s completion bash), e.g. source <(medusa-smock completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ %[1]s completion bash > /etc/bash_completion.d/%[1]s
  # macOS:
  $ %[1]s completion bash > $(brew --prefix)/etc/bash_completion.d/%[1]s`,
	ValidArgs: []string{"bash"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := cmd.Root().GenBashCompletion(os.Stdout)
		if err != nil {
			return fmt.Errorf("unable to generate a bash completion: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
