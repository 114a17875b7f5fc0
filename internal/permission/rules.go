package permission

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/opencode-ai/guardrail/internal/tool"
)

// RuleKind is how a rule's content is compared against an action.
type RuleKind int

const (
	// KindExact matches the action's argument byte for byte.
	KindExact RuleKind = iota
	// KindPrefix matches any argument sharing the rule's prefix. Written
	// with a trailing ":*"; the marker anywhere else is literal text.
	KindPrefix
	// KindPath glob-matches the single path argument of a path tool.
	KindPath
	// KindTool is a bare tool name matching every invocation of the tool.
	KindTool
)

// Rule is one immutable allow or deny pattern.
type Rule struct {
	// Pattern is the rule exactly as written, e.g. `Bash(git commit:*)`.
	Pattern string
	// Tool is the tool name portion.
	Tool string
	// Content is the text inside the parentheses, with the prefix marker
	// already stripped for KindPrefix rules.
	Content string
	Kind    RuleKind
}

// prefixMarker is the only generalization operator outside path globs.
const prefixMarker = ":*"

// ParseRule parses a rule string of the form `ToolName(content)` or a
// bare `ToolName`. The registry decides whether content is a path glob:
// only single-path tools get glob rules; everything else is exact or
// prefix. Rules are never regular expressions.
func ParseRule(pattern string, reg *tool.Registry) (Rule, error) {
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}
	if trimmed != pattern {
		// Whitespace-exact by design: a padded rule would never render
		// the way it matches, so reject instead of silently trimming.
		return Rule{}, fmt.Errorf("rule %q has leading or trailing whitespace", pattern)
	}

	open := strings.IndexByte(pattern, '(')
	if open < 0 {
		if strings.ContainsAny(pattern, ") ") {
			return Rule{}, fmt.Errorf("malformed rule %q", pattern)
		}
		return Rule{Pattern: pattern, Tool: pattern, Kind: KindTool}, nil
	}

	if open == 0 || !strings.HasSuffix(pattern, ")") {
		return Rule{}, fmt.Errorf("malformed rule %q", pattern)
	}

	toolName := pattern[:open]
	content := pattern[open+1 : len(pattern)-1]
	if content == "" {
		return Rule{}, fmt.Errorf("rule %q has empty content", pattern)
	}

	rule := Rule{Pattern: pattern, Tool: toolName, Content: content}

	switch {
	case strings.HasSuffix(content, prefixMarker):
		rule.Kind = KindPrefix
		rule.Content = strings.TrimSuffix(content, prefixMarker)
		if rule.Content == "" {
			return Rule{}, fmt.Errorf("rule %q has empty prefix", pattern)
		}
	case isSinglePathTool(toolName, reg):
		rule.Kind = KindPath
		if !doublestar.ValidatePattern(rule.Content) {
			return Rule{}, fmt.Errorf("rule %q has invalid glob", pattern)
		}
	default:
		rule.Kind = KindExact
	}

	return rule, nil
}

func isSinglePathTool(name string, reg *tool.Registry) bool {
	if reg == nil {
		return false
	}
	d, ok := reg.Get(name)
	return ok && d.Kind == tool.KindSinglePath
}

// Matches reports whether the rule applies to an action of the given tool
// with the given argument (the command string for shell tools, the path
// for single-path tools). Comparison is case-sensitive and
// whitespace-exact: what the human reads in the rule is literally what
// will match.
func (r Rule) Matches(toolName, arg string) bool {
	if r.Tool != toolName {
		return false
	}
	switch r.Kind {
	case KindTool:
		return true
	case KindExact:
		return arg == r.Content
	case KindPrefix:
		return strings.HasPrefix(arg, r.Content)
	case KindPath:
		ok, err := doublestar.Match(r.Content, arg)
		return err == nil && ok
	default:
		return false
	}
}

// RuleSet is an immutable snapshot of the merged allow and deny rules
// from all configuration scopes. Matching never mutates it; reloading
// replaces the whole snapshot.
type RuleSet struct {
	Allow []Rule
	Deny  []Rule

	// DefaultMode is the scalar mode setting after scope precedence
	// (local over project over user).
	DefaultMode Mode
}

// MatchDeny returns the first deny rule matching the action, if any.
// Any single match suffices: deny is never outweighed.
func (rs RuleSet) MatchDeny(toolName, arg string) (Rule, bool) {
	for _, r := range rs.Deny {
		if r.Matches(toolName, arg) {
			return r, true
		}
	}
	return Rule{}, false
}

// MatchAllow returns the most specific allow rule matching the action.
// When several rules of different specificity overlap (say `Bash(git:*)`
// and `Bash(git commit:*)`), the longest pattern wins, so the outcome
// does not depend on iteration order.
func (rs RuleSet) MatchAllow(toolName, arg string) (Rule, bool) {
	var best Rule
	found := false
	for _, r := range rs.Allow {
		if !r.Matches(toolName, arg) {
			continue
		}
		if !found || len(r.Pattern) > len(best.Pattern) {
			best = r
			found = true
		}
	}
	return best, found
}

// Merge returns a snapshot with extra rules unioned in, deduplicated by
// pattern. The receiver is left untouched.
func (rs RuleSet) Merge(allow, deny []Rule) RuleSet {
	out := RuleSet{
		Allow:       dedupRules(rs.Allow, allow),
		Deny:        dedupRules(rs.Deny, deny),
		DefaultMode: rs.DefaultMode,
	}
	return out
}

func dedupRules(lists ...[]Rule) []Rule {
	seen := make(map[string]bool)
	var out []Rule
	for _, list := range lists {
		for _, r := range list {
			if seen[r.Pattern] {
				continue
			}
			seen[r.Pattern] = true
			out = append(out, r)
		}
	}
	return out
}

// Render is the canonical rendering of an action, the form rule authors
// see: `ToolName(argument)` or a bare `ToolName` when there is nothing
// to render.
func Render(toolName, arg string) string {
	if arg == "" {
		return toolName
	}
	return toolName + "(" + arg + ")"
}
