package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/guardrail/internal/tool"
)

func testRegistry() *tool.Registry {
	return tool.DefaultRegistry()
}

func mustRule(t *testing.T, pattern string) Rule {
	t.Helper()
	rule, err := ParseRule(pattern, testRegistry())
	require.NoError(t, err)
	return rule
}

func TestParseRule_Kinds(t *testing.T) {
	tests := []struct {
		pattern string
		kind    RuleKind
		tool    string
		content string
	}{
		{"Bash(git status)", KindExact, "Bash", "git status"},
		{"Bash(git commit:*)", KindPrefix, "Bash", "git commit"},
		{"Read(src/**)", KindPath, "Read", "src/**"},
		{"Edit(**/*.md)", KindPath, "Edit", "**/*.md"},
		{"WebFetch(https://example.com)", KindExact, "WebFetch", "https://example.com"},
		{"Bash", KindTool, "Bash", ""},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			rule, err := ParseRule(tt.pattern, testRegistry())
			require.NoError(t, err)
			assert.Equal(t, tt.kind, rule.Kind)
			assert.Equal(t, tt.tool, rule.Tool)
			assert.Equal(t, tt.content, rule.Content)
			assert.Equal(t, tt.pattern, rule.Pattern)
		})
	}
}

func TestParseRule_MarkerOnlyTrustedAtEnd(t *testing.T) {
	rule := mustRule(t, "Bash(echo :* test)")
	assert.Equal(t, KindExact, rule.Kind)
	assert.Equal(t, "echo :* test", rule.Content)
}

func TestParseRule_Malformed(t *testing.T) {
	for _, pattern := range []string{
		"",
		"   ",
		" Bash(ls)",
		"Bash(ls) ",
		"Bash(",
		"(ls)",
		"Bash()",
		"Bash(:*)",
	} {
		_, err := ParseRule(pattern, testRegistry())
		assert.Error(t, err, "pattern %q should be rejected", pattern)
	}
}

func TestParseRule_NeverRegex(t *testing.T) {
	// Regex metacharacters are plain text.
	rule := mustRule(t, "Bash(grep a.+b)")
	assert.Equal(t, KindExact, rule.Kind)
	assert.True(t, rule.Matches("Bash", "grep a.+b"))
	assert.False(t, rule.Matches("Bash", "grep axxb"))
}

func TestRule_ExactVsPrefixBoundary(t *testing.T) {
	rule := mustRule(t, "Bash(git commit:*)")

	assert.True(t, rule.Matches("Bash", `git commit -m "x"`))
	assert.True(t, rule.Matches("Bash", "git commit --amend"))
	assert.True(t, rule.Matches("Bash", "git commit"))
	assert.False(t, rule.Matches("Bash", "git push"))
	assert.False(t, rule.Matches("Bash", "git"))
}

func TestRule_LiteralMarkerMatchesOnlyItself(t *testing.T) {
	rule := mustRule(t, "Bash(echo :* test)")

	assert.True(t, rule.Matches("Bash", "echo :* test"))
	assert.False(t, rule.Matches("Bash", "echo hello test"))
}

func TestRule_CaseAndWhitespaceExact(t *testing.T) {
	rule := mustRule(t, "Bash(git status)")

	assert.True(t, rule.Matches("Bash", "git status"))
	assert.False(t, rule.Matches("Bash", "git  status"))
	assert.False(t, rule.Matches("Bash", "Git status"))
	assert.False(t, rule.Matches("bash", "git status"))
}

func TestRule_PathPattern(t *testing.T) {
	rule := mustRule(t, "Read(src/**)")

	assert.True(t, rule.Matches("Read", "src/main.go"))
	assert.True(t, rule.Matches("Read", "src/a/b/c.ts"))
	assert.False(t, rule.Matches("Read", "docs/readme.md"))
	assert.False(t, rule.Matches("Edit", "src/main.go"))
}

func TestRule_ToolWide(t *testing.T) {
	rule := mustRule(t, "Glob")

	assert.True(t, rule.Matches("Glob", "**/*.go"))
	assert.True(t, rule.Matches("Glob", ""))
	assert.False(t, rule.Matches("Grep", "pattern"))
}

func TestRuleSet_MatchAllow_LongestWins(t *testing.T) {
	rs := RuleSet{}.Merge([]Rule{
		mustRule(t, "Bash(git:*)"),
		mustRule(t, "Bash(git commit:*)"),
	}, nil)

	rule, ok := rs.MatchAllow("Bash", "git commit -m x")
	require.True(t, ok)
	assert.Equal(t, "Bash(git commit:*)", rule.Pattern)

	// Order independence.
	rs = RuleSet{}.Merge([]Rule{
		mustRule(t, "Bash(git commit:*)"),
		mustRule(t, "Bash(git:*)"),
	}, nil)
	rule, ok = rs.MatchAllow("Bash", "git commit -m x")
	require.True(t, ok)
	assert.Equal(t, "Bash(git commit:*)", rule.Pattern)
}

func TestRuleSet_MergeDeduplicates(t *testing.T) {
	a := mustRule(t, "Bash(git:*)")
	b := mustRule(t, "Read(src/**)")

	rs := RuleSet{}.Merge([]Rule{a, b, a}, []Rule{b, b})
	assert.Len(t, rs.Allow, 2)
	assert.Len(t, rs.Deny, 1)

	// Merging the same rules again changes nothing.
	again := rs.Merge([]Rule{a, b}, []Rule{b})
	assert.Equal(t, rs.Allow, again.Allow)
	assert.Equal(t, rs.Deny, again.Deny)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "Bash(ls -la)", Render("Bash", "ls -la"))
	assert.Equal(t, "Task", Render("Task", ""))
}
