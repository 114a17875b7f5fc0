// Package main provides the entry point for the guardrail CLI.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/guardrail/cmd/guardrail/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
