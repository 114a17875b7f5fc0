package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/guardrail/internal/config"
	"github.com/opencode-ai/guardrail/internal/permission"
	"github.com/opencode-ai/guardrail/internal/tool"
)

var (
	rulesAddDeny  bool
	rulesAddScope string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect or edit the merged trust rules",
	RunE:  runRulesList,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the merged rule set",
	RunE:  runRulesList,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add <pattern>",
	Short: "Persist a rule to a configuration scope",
	Long: `Persist a rule to a configuration scope.

Examples:
  guardrail rules add 'Bash(npm test:*)'
  guardrail rules add --deny --scope project 'Bash(rm:*)'
  guardrail rules add --scope user 'Read(~/notes/**)'`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesAdd,
}

func init() {
	rulesAddCmd.Flags().BoolVar(&rulesAddDeny, "deny", false, "Add a deny rule instead of an allow rule")
	rulesAddCmd.Flags().StringVar(&rulesAddScope, "scope", "local", "Scope to write to (local|project|user)")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAddCmd)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(rootDir)
	if err != nil {
		return err
	}

	reg := tool.DefaultRegistry()
	store := config.NewTrustStore(workDir, reg)
	rules, err := store.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mode: %s\n", rules.DefaultMode)

	fmt.Fprintf(out, "deny (%d):\n", len(rules.Deny))
	for _, r := range rules.Deny {
		fmt.Fprintf(out, "  %s\n", r.Pattern)
	}
	fmt.Fprintf(out, "allow (%d):\n", len(rules.Allow))
	for _, r := range rules.Allow {
		fmt.Fprintf(out, "  %s\n", r.Pattern)
	}
	return nil
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(rootDir)
	if err != nil {
		return err
	}

	reg := tool.DefaultRegistry()
	store := config.NewTrustStore(workDir, reg)

	behavior := permission.Allow
	if rulesAddDeny {
		behavior = permission.Deny
	}

	scope := permission.Scope(rulesAddScope)
	if err := store.SaveRule(scope, behavior, args[0]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "saved %s rule %s to %s scope\n", behavior, args[0], scope)
	return nil
}
