package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"

	"github.com/opencode-ai/guardrail/internal/logging"
	"github.com/opencode-ai/guardrail/internal/permission"
	"github.com/opencode-ai/guardrail/internal/tool"
)

// Settings is the schema of one scope's settings file. Comments are
// tolerated (files are read as JSONC).
type Settings struct {
	Permissions PermissionSettings `json:"permissions"`
}

// PermissionSettings holds one scope's permission configuration.
type PermissionSettings struct {
	Allow       []string `json:"allow,omitempty"`
	Deny        []string `json:"deny,omitempty"`
	DefaultMode string   `json:"defaultMode,omitempty"`
}

// TrustStore owns the on-disk representation of permission rules and is
// the only component that writes it. Writers to the same scope are
// serialized so two simultaneous "don't ask again" grants cannot clobber
// each other.
type TrustStore struct {
	workdir string
	tools   *tool.Registry
	log     zerolog.Logger

	mu    sync.Mutex
	locks map[permission.Scope]*sync.Mutex
}

// NewTrustStore creates a store rooted at the given workspace.
func NewTrustStore(workdir string, tools *tool.Registry) *TrustStore {
	return &TrustStore{
		workdir: workdir,
		tools:   tools,
		log:     logging.Component("truststore"),
		locks:   make(map[permission.Scope]*sync.Mutex),
	}
}

// Load reads all scopes and returns the merged rule snapshot. Rule lists
// union across scopes; the defaultMode scalar resolves local over project
// over user. Missing files and malformed entries are skipped, never
// fatal.
func (s *TrustStore) Load() (permission.RuleSet, error) {
	var allow, deny []permission.Rule
	mode := permission.ModeDefault

	for _, scope := range PersistentScopes() {
		settings, err := s.readScope(scope)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.log.Warn().Str("scope", string(scope)).Err(err).Msg("skipping unreadable settings file")
			}
			continue
		}

		allow = append(allow, s.parseRules(scope, settings.Permissions.Allow)...)
		deny = append(deny, s.parseRules(scope, settings.Permissions.Deny)...)

		if settings.Permissions.DefaultMode != "" {
			m, err := permission.ParseMode(settings.Permissions.DefaultMode)
			if err != nil {
				s.log.Warn().Str("scope", string(scope)).Err(err).Msg("ignoring invalid defaultMode")
				continue
			}
			// Scopes are iterated in ascending precedence; last wins.
			mode = m
		}
	}

	rs := permission.RuleSet{DefaultMode: mode}.Merge(allow, deny)
	return rs, nil
}

// SaveRule appends a rule to one scope's file, creating the file if
// absent and leaving the other scopes untouched. Unrelated keys of the
// scope file are preserved.
func (s *TrustStore) SaveRule(scope permission.Scope, behavior permission.Behavior, pattern string) error {
	if scope == permission.ScopeSession {
		return fmt.Errorf("session rules are not persisted")
	}
	path := ScopePath(scope, s.workdir)
	if path == "" {
		return fmt.Errorf("unknown scope %q", scope)
	}
	if _, err := permission.ParseRule(pattern, s.tools); err != nil {
		return fmt.Errorf("refusing to persist malformed rule: %w", err)
	}

	lock := s.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	raw := map[string]json.RawMessage{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return fmt.Errorf("settings file %s is not an object: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	// The permissions object round-trips as raw JSON like the top level,
	// so keys this engine does not know about survive the save.
	perms := map[string]json.RawMessage{}
	if existing, ok := raw["permissions"]; ok {
		if err := json.Unmarshal(existing, &perms); err != nil {
			return fmt.Errorf("settings file %s has malformed permissions: %w", path, err)
		}
	}

	key := "allow"
	if behavior == permission.Deny {
		key = "deny"
	}

	var list []string
	if existing, ok := perms[key]; ok {
		if err := json.Unmarshal(existing, &list); err != nil {
			return fmt.Errorf("settings file %s has a malformed %s list: %w", path, key, err)
		}
	}
	for _, existing := range list {
		if existing == pattern {
			return nil // already present
		}
	}
	list = append(list, pattern)

	encoded, err := json.Marshal(list)
	if err != nil {
		return err
	}
	perms[key] = encoded

	encodedPerms, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	raw["permissions"] = encodedPerms

	return writeFileAtomic(path, raw)
}

func (s *TrustStore) readScope(scope permission.Scope) (*Settings, error) {
	path := ScopePath(scope, s.workdir)
	if path == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var settings Settings
	if err := json.Unmarshal(jsonc.ToJSON(data), &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &settings, nil
}

// parseRules validates rule strings, skipping malformed entries with a
// warning so one bad line never takes down the rest of the scope.
func (s *TrustStore) parseRules(scope permission.Scope, patterns []string) []permission.Rule {
	rules := make([]permission.Rule, 0, len(patterns))
	for _, pattern := range patterns {
		rule, err := permission.ParseRule(pattern, s.tools)
		if err != nil {
			s.log.Warn().Str("scope", string(scope)).Str("pattern", pattern).Err(err).Msg("skipping malformed rule")
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

func (s *TrustStore) scopeLock(scope permission.Scope) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[scope]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[scope] = lock
	}
	return lock
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated settings file.
func writeFileAtomic(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
