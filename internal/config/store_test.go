package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/guardrail/internal/permission"
	"github.com/opencode-ai/guardrail/internal/tool"
)

func newTestStore(t *testing.T) (*TrustStore, string) {
	t.Helper()
	workdir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(workdir, "xdg"))
	return NewTrustStore(workdir, tool.DefaultRegistry()), workdir
}

func writeScope(t *testing.T, scope permission.Scope, workdir, content string) {
	t.Helper()
	path := ScopePath(scope, workdir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_MissingFilesAreFine(t *testing.T) {
	store, _ := newTestStore(t)

	rs, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, rs.Allow)
	assert.Empty(t, rs.Deny)
	assert.Equal(t, permission.ModeDefault, rs.DefaultMode)
}

func TestLoad_UnionsRuleListsAcrossScopes(t *testing.T) {
	store, workdir := newTestStore(t)

	writeScope(t, permission.ScopeUser, workdir,
		`{"permissions": {"allow": ["Bash(git:*)"], "deny": ["Bash(rm:*)"]}}`)
	writeScope(t, permission.ScopeProject, workdir,
		`{"permissions": {"allow": ["Bash(npm test:*)"]}}`)
	writeScope(t, permission.ScopeLocal, workdir,
		`{"permissions": {"allow": ["Read(src/**)"], "deny": ["Read(**/.env)"]}}`)

	rs, err := store.Load()
	require.NoError(t, err)

	patterns := func(rules []permission.Rule) []string {
		out := make([]string, 0, len(rules))
		for _, r := range rules {
			out = append(out, r.Pattern)
		}
		return out
	}
	assert.ElementsMatch(t,
		[]string{"Bash(git:*)", "Bash(npm test:*)", "Read(src/**)"},
		patterns(rs.Allow))
	assert.ElementsMatch(t,
		[]string{"Bash(rm:*)", "Read(**/.env)"},
		patterns(rs.Deny))
}

func TestLoad_DefaultModePrecedenceLocalWins(t *testing.T) {
	store, workdir := newTestStore(t)

	writeScope(t, permission.ScopeUser, workdir,
		`{"permissions": {"defaultMode": "bypassPermissions"}}`)
	writeScope(t, permission.ScopeProject, workdir,
		`{"permissions": {"defaultMode": "plan"}}`)
	writeScope(t, permission.ScopeLocal, workdir,
		`{"permissions": {"defaultMode": "acceptEdits"}}`)

	rs, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, permission.ModeAcceptEdits, rs.DefaultMode)
}

func TestLoad_ProjectModeAppliesWithoutLocal(t *testing.T) {
	store, workdir := newTestStore(t)

	writeScope(t, permission.ScopeUser, workdir,
		`{"permissions": {"defaultMode": "bypassPermissions"}}`)
	writeScope(t, permission.ScopeProject, workdir,
		`{"permissions": {"defaultMode": "acceptEdits"}}`)

	rs, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, permission.ModeAcceptEdits, rs.DefaultMode)
}

func TestLoad_SkipsMalformedEntries(t *testing.T) {
	store, workdir := newTestStore(t)

	writeScope(t, permission.ScopeProject, workdir,
		`{"permissions": {"allow": ["Bash(git:*)", "", "Bash(", "Bash(:*)"], "deny": ["not a rule ("]}}`)

	rs, err := store.Load()
	require.NoError(t, err)
	require.Len(t, rs.Allow, 1)
	assert.Equal(t, "Bash(git:*)", rs.Allow[0].Pattern)
	assert.Empty(t, rs.Deny)
}

func TestLoad_ToleratesComments(t *testing.T) {
	store, workdir := newTestStore(t)

	writeScope(t, permission.ScopeProject, workdir, `{
  // project trust
  "permissions": {
    "allow": ["Bash(make:*)"], // build freely
  },
}`)

	rs, err := store.Load()
	require.NoError(t, err)
	require.Len(t, rs.Allow, 1)
}

func TestLoad_Idempotent(t *testing.T) {
	store, workdir := newTestStore(t)

	writeScope(t, permission.ScopeUser, workdir,
		`{"permissions": {"allow": ["Bash(git:*)"], "deny": ["Bash(rm:*)"]}}`)
	writeScope(t, permission.ScopeProject, workdir,
		`{"permissions": {"allow": ["Bash(git:*)"]}}`)

	first, err := store.Load()
	require.NoError(t, err)
	second, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// The duplicate across scopes collapses to one rule.
	assert.Len(t, first.Allow, 1)
}

func TestSaveRule_RoundTrip(t *testing.T) {
	store, workdir := newTestStore(t)

	require.NoError(t, store.SaveRule(permission.ScopeLocal, permission.Allow, "Bash(npm test:*)"))

	rs, err := store.Load()
	require.NoError(t, err)
	require.Len(t, rs.Allow, 1)

	// The reloaded rule matches the same actions as before persistence.
	assert.True(t, rs.Allow[0].Matches("Bash", "npm test --watch"))
	assert.False(t, rs.Allow[0].Matches("Bash", "npm install"))

	// Only the local scope file was created.
	assert.NoFileExists(t, ScopePath(permission.ScopeProject, workdir))
	assert.NoFileExists(t, ScopePath(permission.ScopeUser, workdir))
}

func TestSaveRule_AppendsWithoutDisturbingOtherKeys(t *testing.T) {
	store, workdir := newTestStore(t)

	writeScope(t, permission.ScopeProject, workdir,
		`{"model": "large", "permissions": {"allow": ["Bash(git:*)"]}}`)

	require.NoError(t, store.SaveRule(permission.ScopeProject, permission.Deny, "Bash(rm:*)"))

	data, err := os.ReadFile(ScopePath(permission.ScopeProject, workdir))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "model")

	var perms PermissionSettings
	require.NoError(t, json.Unmarshal(raw["permissions"], &perms))
	assert.Equal(t, []string{"Bash(git:*)"}, perms.Allow)
	assert.Equal(t, []string{"Bash(rm:*)"}, perms.Deny)
}

func TestSaveRule_PreservesUnknownPermissionKeys(t *testing.T) {
	store, workdir := newTestStore(t)

	writeScope(t, permission.ScopeProject, workdir,
		`{"permissions": {"allow": ["Bash(git:*)"], "defaultMode": "plan", "additionalDirectories": ["../docs"]}}`)

	require.NoError(t, store.SaveRule(permission.ScopeProject, permission.Deny, "Bash(rm:*)"))

	data, err := os.ReadFile(ScopePath(permission.ScopeProject, workdir))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	var perms map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["permissions"], &perms))

	assert.Contains(t, perms, "defaultMode")
	assert.Contains(t, perms, "additionalDirectories")
	assert.JSONEq(t, `["Bash(git:*)"]`, string(perms["allow"]))
	assert.JSONEq(t, `["Bash(rm:*)"]`, string(perms["deny"]))
}

func TestSaveRule_DeduplicatesWithinScope(t *testing.T) {
	store, workdir := newTestStore(t)

	require.NoError(t, store.SaveRule(permission.ScopeLocal, permission.Allow, "Bash(git:*)"))
	require.NoError(t, store.SaveRule(permission.ScopeLocal, permission.Allow, "Bash(git:*)"))

	data, err := os.ReadFile(ScopePath(permission.ScopeLocal, workdir))
	require.NoError(t, err)

	var settings Settings
	require.NoError(t, json.Unmarshal(data, &settings))
	assert.Equal(t, []string{"Bash(git:*)"}, settings.Permissions.Allow)
}

func TestSaveRule_RejectsMalformedPattern(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Error(t, store.SaveRule(permission.ScopeLocal, permission.Allow, "Bash("))
	assert.Error(t, store.SaveRule(permission.ScopeSession, permission.Allow, "Bash(git:*)"))
}

func TestScopePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	assert.Equal(t,
		filepath.Join("/proj", ".guardrail", "settings.local.json"),
		ScopePath(permission.ScopeLocal, "/proj"))
	assert.Equal(t,
		filepath.Join("/proj", ".guardrail", "settings.json"),
		ScopePath(permission.ScopeProject, "/proj"))
	assert.Equal(t,
		filepath.Join("/tmp/xdg", "guardrail", "settings.json"),
		ScopePath(permission.ScopeUser, "/proj"))
	assert.Equal(t, "", ScopePath(permission.ScopeSession, "/proj"))
}
