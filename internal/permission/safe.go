package permission

import (
	"strings"

	"github.com/opencode-ai/guardrail/internal/shell"
)

// safeCommands are inherently low-risk shell verbs: directory navigation,
// listing, and working-directory queries. They run without prompting as
// long as every path they touch stays inside the workspace.
var safeCommands = map[string]bool{
	"cd":  true,
	"ls":  true,
	"pwd": true,
}

// commandsWithoutPaths are safe verbs whose arguments are never paths.
var commandsWithoutPaths = map[string]bool{
	"pwd": true,
}

// IsSafeCommand reports whether a simple command is on the built-in safe
// list with all of its path arguments contained in the workspace root.
func IsSafeCommand(cmd shell.SimpleCommand, workdir string) bool {
	if !safeCommands[cmd.Name] {
		return false
	}
	if commandsWithoutPaths[cmd.Name] {
		return true
	}

	if cmd.Name == "cd" && len(pathArguments(cmd)) == 0 {
		// Bare `cd` goes to $HOME, which is usually outside the
		// workspace. Containment cannot be shown, so it is not safe.
		return false
	}

	for _, arg := range pathArguments(cmd) {
		if strings.ContainsAny(arg, "$`") {
			// Dynamic content; containment cannot be shown.
			return false
		}
		if strings.HasPrefix(arg, "~") {
			// The shell expands ~ and ~user to home directories, which
			// are outside the workspace.
			return false
		}
		inside, err := IsInside(arg, workdir)
		if err != nil || !inside {
			return false
		}
	}
	return true
}

// pathArguments returns the arguments that name filesystem paths,
// skipping flags.
func pathArguments(cmd shell.SimpleCommand) []string {
	var paths []string
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		paths = append(paths, arg)
	}
	return paths
}
