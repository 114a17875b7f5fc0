package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/guardrail/internal/config"
	"github.com/opencode-ai/guardrail/internal/event"
	"github.com/opencode-ai/guardrail/internal/permission"
	"github.com/opencode-ai/guardrail/internal/tool"
)

var (
	checkMode        string
	checkInput       string
	checkSession     string
	checkInteractive bool
	checkScope       string
)

var checkCmd = &cobra.Command{
	Use:   "check <tool> [argument]",
	Short: "Evaluate one tool invocation against the trust rules",
	Long: `Evaluate a tool invocation and print the decision.

Examples:
  guardrail check Bash "git status"
  guardrail check Write src/main.go
  guardrail check --mode plan Read README.md
  guardrail check --input '{"command":"npm test"}' Bash
  guardrail check -i Bash "rm -rf build"  # prompt on ask, persist grants

Exit status is 0 for allow, 1 for deny, 2 for ask.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkMode, "mode", "", "Permission mode (default|acceptEdits|plan|bypassPermissions)")
	checkCmd.Flags().StringVar(&checkInput, "input", "", "Tool input as a JSON object")
	checkCmd.Flags().StringVar(&checkSession, "session", "cli", "Session ID for session-scoped state")
	checkCmd.Flags().BoolVarP(&checkInteractive, "interactive", "i", false, "Prompt on ask decisions")
	checkCmd.Flags().StringVar(&checkScope, "scope", "local", "Scope for persisted grants (local|project|user|session)")
}

func runCheck(cmd *cobra.Command, args []string) error {
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

	if checkMode != "" {
		mode, err := permission.ParseMode(checkMode)
		if err != nil {
			return err
		}
		rules.DefaultMode = mode
	}

	manager := permission.NewManager(reg, rules)

	input, err := buildInput(reg, args)
	if err != nil {
		return err
	}
	pctx := permission.Context{
		ToolName:  args[0],
		Input:     input,
		WorkDir:   workDir,
		SessionID: checkSession,
	}

	if !checkInteractive {
		dec := manager.Check(pctx)
		printDecision(cmd, dec)
		return exitForBehavior(dec.Behavior)
	}

	bus := event.NewBus()
	defer bus.Close()
	svc := permission.NewService(manager, reg, bus, store)

	unsubscribe := bus.Subscribe(event.PermissionRequested, func(ev event.Event) {
		data, ok := ev.Data.(event.PermissionRequestedData)
		if !ok {
			return
		}
		svc.Respond(data.ID, promptAnswer(cmd, data))
	})
	defer unsubscribe()

	dec, err := svc.Authorize(context.Background(), pctx)
	if err != nil && !permission.IsRejected(err) {
		return err
	}
	printDecision(cmd, dec)
	return exitForBehavior(dec.Behavior)
}

// buildInput turns the positional argument into the tool's input object,
// or decodes the --input JSON when given.
func buildInput(reg *tool.Registry, args []string) (map[string]any, error) {
	if checkInput != "" {
		var input map[string]any
		if err := json.Unmarshal([]byte(checkInput), &input); err != nil {
			return nil, fmt.Errorf("invalid --input: %w", err)
		}
		return input, nil
	}

	input := map[string]any{}
	if len(args) == 2 {
		desc := reg.Describe(args[0])
		if desc.ArgKey == "" {
			return nil, fmt.Errorf("tool %s takes no argument; use --input", args[0])
		}
		input[desc.ArgKey] = args[1]
	}
	return input, nil
}

// promptAnswer asks the human on the terminal for a single pending
// request and translates the answer into a reply.
func promptAnswer(cmd *cobra.Command, data event.PermissionRequestedData) permission.Reply {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s wants to run:\n  %s\n", data.ToolName, data.Action)
	if data.Reason != "" {
		fmt.Fprintf(out, "reason: %s\n", data.Reason)
	}
	for i, pattern := range data.Suggestions {
		fmt.Fprintf(out, "  [%d] %s\n", i+1, pattern)
	}
	fmt.Fprint(out, "allow once (y), always (a), reject (n)? ")

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return permission.Reply{Response: permission.ResponseCancel}
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return permission.Reply{Response: permission.ResponseOnce}
	case "a", "always":
		return permission.Reply{
			Response: permission.ResponseAlways,
			Scope:    permission.Scope(checkScope),
		}
	default:
		return permission.Reply{Response: permission.ResponseReject}
	}
}

func printDecision(cmd *cobra.Command, dec permission.Decision) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s", dec.Behavior)
	if dec.Rule != "" {
		fmt.Fprintf(out, "  rule=%s", dec.Rule)
	}
	if dec.Reason != "" {
		fmt.Fprintf(out, "  (%s)", dec.Reason)
	}
	fmt.Fprintln(out)
}

// exitForBehavior maps a decision onto the documented exit codes without
// cobra printing a usage message for it.
func exitForBehavior(b permission.Behavior) error {
	switch b {
	case permission.Allow:
		return nil
	case permission.Deny:
		os.Exit(1)
	default:
		os.Exit(2)
	}
	return nil
}
