// Package shell decomposes bash command strings into the simple commands
// that need authorization. Chained commands (&&, ||, ;, |, &), subshells,
// and command substitutions all flatten into one ordered list: a compound
// command is only as trustworthy as its least trustworthy part.
package shell

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// SimpleCommand is one command extracted from a (possibly compound)
// command string, with leading environment assignments and redirections
// already stripped.
type SimpleCommand struct {
	Raw        string   // source rendering, e.g. `git commit -m "fix"`
	Name       string   // executable name, e.g. "git"
	Args       []string // arguments with quoting flattened
	Subcommand string   // first non-flag argument, e.g. "commit"
}

// String returns the source rendering of the command.
func (c SimpleCommand) String() string {
	return c.Raw
}

// Decompose splits a command string into simple commands in source order.
//
// Quoting is respected (separators inside quotes do not split), subshell
// and substitution contents are flattened into the same list, environment
// assignments are not commands, and redirection targets are not commands.
// A string the parser cannot make sense of (for example unbalanced quotes)
// degrades to a single conservative simple command covering the whole
// remainder, so nothing ever silently drops out of authorization.
func Decompose(command string) []SimpleCommand {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return nil
	}

	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(trimmed), "")
	if err != nil {
		return []SimpleCommand{fallbackCommand(trimmed)}
	}

	printer := syntax.NewPrinter()

	var commands []SimpleCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok {
			return true
		}
		if cmd := extractCommand(call, printer); cmd != nil {
			commands = append(commands, *cmd)
		}
		return true
	})

	// A successful parse with no calls (pure assignment, redirection
	// without a command) legitimately yields nothing to authorize.
	return commands
}

// extractCommand builds a SimpleCommand from a call expression.
// A call with assignments but no words ("FOO=bar") is not a command.
func extractCommand(call *syntax.CallExpr, printer *syntax.Printer) *SimpleCommand {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &SimpleCommand{}
	cmd.Name = wordToString(call.Args[0])
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		argStr := wordToString(arg)
		cmd.Args = append(cmd.Args, argStr)

		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}

	cmd.Raw = renderCall(call, printer)
	return cmd
}

// renderCall prints the call without its leading assignments. Redirections
// hang off the enclosing statement, so they are already out of scope here.
func renderCall(call *syntax.CallExpr, printer *syntax.Printer) string {
	bare := *call
	bare.Assigns = nil

	var sb strings.Builder
	if err := printer.Print(&sb, &bare); err != nil {
		// Fall back to the flattened words.
		var words []string
		for _, arg := range call.Args {
			words = append(words, wordToString(arg))
		}
		return strings.Join(words, " ")
	}
	return strings.TrimSpace(sb.String())
}

// wordToString flattens a word to the text a human would read,
// marking dynamic parts instead of expanding them.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			sb.WriteString(partsToString(p.Parts))
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// partsToString flattens the parts inside a double-quoted string. Dynamic
// parts keep their "$" marker so callers can tell the text is not static.
func partsToString(parts []syntax.WordPart) string {
	var sb strings.Builder
	for _, part := range parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// fallbackCommand wraps an unparseable string as one simple command.
func fallbackCommand(raw string) SimpleCommand {
	fields := strings.Fields(raw)
	cmd := SimpleCommand{Raw: raw}
	if len(fields) > 0 {
		cmd.Name = fields[0]
		cmd.Args = fields[1:]
		for _, arg := range cmd.Args {
			if !strings.HasPrefix(arg, "-") {
				cmd.Subcommand = arg
				break
			}
		}
	}
	return cmd
}
