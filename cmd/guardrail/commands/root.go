// Package commands provides the CLI commands for guardrail.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/guardrail/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel   string
	prettyLogs bool
	rootDir    string
)

var rootCmd = &cobra.Command{
	Use:   "guardrail",
	Short: "Guardrail - permission engine for agent tool calls",
	Long: `Guardrail decides whether a coding agent's tool invocations run
automatically, are blocked, or need a human answer, and remembers
"don't ask again" grants as trust rules in layered settings files.

Run 'guardrail check' to evaluate a single invocation, 'guardrail rules'
to inspect or edit the merged rule set, or 'guardrail decompose' to see
how a shell command splits into checkable parts.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; flags and the environment still apply.
		_ = godotenv.Load()
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Pretty: prettyLogs,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", false, "Human-readable log output")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "directory", "C", "", "Workspace directory (defaults to cwd)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("guardrail %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(decomposeCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
