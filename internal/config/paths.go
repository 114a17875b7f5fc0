// Package config loads, merges, and persists permission rules across the
// local, project, and user configuration scopes.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/opencode-ai/guardrail/internal/permission"
)

const (
	appDir            = "guardrail"
	projectDir        = ".guardrail"
	settingsFile      = "settings.json"
	localSettingsFile = "settings.local.json"
)

// ScopePath returns the settings file backing a configuration scope.
func ScopePath(scope permission.Scope, workdir string) string {
	switch scope {
	case permission.ScopeLocal:
		return filepath.Join(workdir, projectDir, localSettingsFile)
	case permission.ScopeProject:
		return filepath.Join(workdir, projectDir, settingsFile)
	case permission.ScopeUser:
		return filepath.Join(userConfigHome(), appDir, settingsFile)
	default:
		return ""
	}
}

// PersistentScopes lists the on-disk scopes in ascending precedence:
// user, then project, then local. Later entries win for scalar settings.
func PersistentScopes() []permission.Scope {
	return []permission.Scope{
		permission.ScopeUser,
		permission.ScopeProject,
		permission.ScopeLocal,
	}
}

func userConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}
