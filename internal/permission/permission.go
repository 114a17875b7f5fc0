// Package permission decides, for every tool invocation the model
// proposes, whether it may run automatically, must be denied, or needs a
// human answer. It also decides how a human "don't ask again" grant
// generalizes to future invocations.
package permission

import "fmt"

// Behavior is the outcome of a permission check.
type Behavior string

const (
	Allow Behavior = "allow"
	Deny  Behavior = "deny"
	Ask   Behavior = "ask"
)

// Decision is the result of evaluating one tool invocation.
type Decision struct {
	Behavior Behavior
	// Reason is a human-readable explanation, suitable for the
	// confirmation prompt when Behavior is Ask.
	Reason string
	// Rule is the pattern that decided the outcome, when one did.
	Rule string
}

// Mode is the active permission mode.
type Mode int

const (
	// ModeDefault asks for every restricted tool without a matching rule.
	ModeDefault Mode = iota
	// ModeAcceptEdits auto-allows file-mutating tools; shell still asks.
	ModeAcceptEdits
	// ModeBypass auto-allows everything except deny rules.
	ModeBypass
	// ModePlan is read-only; writes are confined to the plan file.
	ModePlan
)

// String returns the mode's configuration-file spelling.
func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeAcceptEdits:
		return "acceptEdits"
	case ModeBypass:
		return "bypassPermissions"
	case ModePlan:
		return "plan"
	default:
		return "default"
	}
}

// ParseMode parses a configuration-file mode string.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "default", "":
		return ModeDefault, nil
	case "acceptEdits":
		return ModeAcceptEdits, nil
	case "bypassPermissions":
		return ModeBypass, nil
	case "plan":
		return ModePlan, nil
	default:
		return ModeDefault, fmt.Errorf("unknown permission mode %q", s)
	}
}

// Cycle returns the next mode in the user-triggered cycle. Plan mode is
// entered and left by explicit calls and is not part of the cycle; cycling
// out of it lands back on the default.
func (m Mode) Cycle() Mode {
	switch m {
	case ModeDefault:
		return ModeAcceptEdits
	case ModeAcceptEdits:
		return ModeBypass
	default:
		return ModeDefault
	}
}

// Context is the unit of input to a permission decision.
type Context struct {
	ToolName  string
	Input     map[string]any
	WorkDir   string
	SessionID string
}

// Scope identifies where a learned rule is persisted.
type Scope string

const (
	ScopeLocal   Scope = "local"
	ScopeProject Scope = "project"
	ScopeUser    Scope = "user"
	// ScopeSession rules live only in memory for the current run.
	ScopeSession Scope = "session"
)

// RejectedError is returned when the human rejects an invocation.
type RejectedError struct {
	SessionID string
	ToolName  string
	Message   string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// IsRejected reports whether err is a human rejection.
func IsRejected(err error) bool {
	_, ok := err.(*RejectedError)
	return ok
}
