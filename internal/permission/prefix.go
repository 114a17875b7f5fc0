package permission

import (
	"github.com/opencode-ai/guardrail/internal/shell"
)

// commandFamilies lists executables whose first subcommand is the real
// verb (version control, package managers, build tools, containers).
// For these a learned prefix keeps executable plus subcommand and drops
// the rest as presumed-dynamic.
var commandFamilies = map[string]bool{
	"git":       true,
	"npm":       true,
	"npx":       true,
	"pnpm":      true,
	"yarn":      true,
	"bun":       true,
	"pip":       true,
	"pip3":      true,
	"uv":        true,
	"cargo":     true,
	"go":        true,
	"docker":    true,
	"podman":    true,
	"kubectl":   true,
	"helm":      true,
	"make":      true,
	"bundle":    true,
	"gem":       true,
	"mvn":       true,
	"gradle":    true,
	"terraform": true,
	"gh":        true,
}

// neverGeneralize is the hard blacklist: deletion, permission changes,
// privilege escalation, and shell invocation must never be trusted by
// prefix, no matter what the family table says. Only an exact rule may
// come out of approving one of these.
var neverGeneralize = map[string]bool{
	"rm":     true,
	"rmdir":  true,
	"shred":  true,
	"dd":     true,
	"mkfs":   true,
	"chmod":  true,
	"chown":  true,
	"chgrp":  true,
	"sudo":   true,
	"su":     true,
	"doas":   true,
	"sh":     true,
	"bash":   true,
	"zsh":    true,
	"dash":   true,
	"fish":   true,
	"ksh":    true,
	"eval":   true,
	"exec":   true,
	"source": true,
	"xargs":  true,
	"env":    true,
}

// SuggestPattern proposes a trust pattern for a command the human just
// approved. It is a proposal only: the confirmation UI shows it for
// editing before anything is persisted.
//
//	git commit -m "fix"  ->  Bash(git commit:*)
//	jq .name pkg.json    ->  Bash(jq:*)
//	rm -rf build         ->  Bash(rm -rf build)   (exact, never a prefix)
func SuggestPattern(cmd shell.SimpleCommand) string {
	if cmd.Name == "" {
		return ""
	}

	if neverGeneralize[cmd.Name] {
		return "Bash(" + cmd.Raw + ")"
	}

	if commandFamilies[cmd.Name] {
		if cmd.Subcommand != "" {
			return "Bash(" + cmd.Name + " " + cmd.Subcommand + prefixMarker + ")"
		}
		return "Bash(" + cmd.Name + prefixMarker + ")"
	}

	// Unknown executables generalize to the executable name alone.
	return "Bash(" + cmd.Name + prefixMarker + ")"
}

// SuggestPatterns proposes one pattern per distinct simple command of a
// decomposed invocation, in source order.
func SuggestPatterns(commands []shell.SimpleCommand) []string {
	seen := make(map[string]bool)
	var patterns []string
	for _, cmd := range commands {
		p := SuggestPattern(cmd)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		patterns = append(patterns, p)
	}
	return patterns
}
