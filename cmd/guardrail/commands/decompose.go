package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/guardrail/internal/permission"
	"github.com/opencode-ai/guardrail/internal/shell"
)

var decomposeSuggest bool

var decomposeCmd = &cobra.Command{
	Use:   "decompose <command>",
	Short: "Show how a shell command splits into checkable parts",
	Long: `Show the simple commands a shell command decomposes into, the
units that permission rules are matched against.

Examples:
  guardrail decompose 'cd src && npm test'
  guardrail decompose --suggest 'git add -A && git commit -m wip'`,
	Args: cobra.ExactArgs(1),
	RunE: runDecompose,
}

func init() {
	decomposeCmd.Flags().BoolVar(&decomposeSuggest, "suggest", false, "Also print the trust patterns the parts would suggest")
}

func runDecompose(cmd *cobra.Command, args []string) error {
	parts := shell.Decompose(args[0])

	out := cmd.OutOrStdout()
	if len(parts) == 0 {
		fmt.Fprintln(out, "no commands")
		return nil
	}

	for _, part := range parts {
		fmt.Fprintf(out, "%s\n", part.Raw)
		fmt.Fprintf(out, "  name: %s\n", part.Name)
		if part.Subcommand != "" {
			fmt.Fprintf(out, "  subcommand: %s\n", part.Subcommand)
		}
		if len(part.Args) > 0 {
			fmt.Fprintf(out, "  args: %s\n", strings.Join(part.Args, " "))
		}
	}

	if decomposeSuggest {
		fmt.Fprintln(out, "suggested patterns:")
		for _, pattern := range permission.SuggestPatterns(parts) {
			fmt.Fprintf(out, "  %s\n", pattern)
		}
	}
	return nil
}
