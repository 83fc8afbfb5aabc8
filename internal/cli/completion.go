package cli

import (
	"github.com/spf13/cobra"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for tidetrawler and write it to stdout.

  bash:       source <(tidetrawler completion bash)
  zsh:        tidetrawler completion zsh > "${fpath[1]}/_tidetrawler"
  fish:       tidetrawler completion fish > ~/.config/fish/completions/tidetrawler.fish
  powershell: tidetrawler completion powershell | Out-String | Invoke-Expression

Registry names complete for --registry.`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, out := cmd.Root(), cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

// completeRegistries offers the known registry names for --registry.
func completeRegistries(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"crates", "npm", "pypi"}, cobra.ShellCompDirectiveNoFileComp
}
