package permission

import (
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/guardrail/internal/logging"
	"github.com/opencode-ai/guardrail/internal/shell"
	"github.com/opencode-ai/guardrail/internal/tool"
)

// Manager owns the live rule set and permission mode for its process and
// renders every tool invocation into a Decision.
//
// Check is a pure read over an immutable snapshot and is safe to call
// from concurrent tool-execution paths; mutation happens only through
// the explicit SetMode/CycleMode/EnterPlan/ExitPlan/AddRule/SetRules
// calls driven by human decisions.
type Manager struct {
	mu sync.RWMutex

	mode     Mode
	planFile string

	rules        RuleSet // persisted scopes snapshot
	sessionAllow []Rule  // "just this run" grants, never persisted
	sessionDeny  []Rule
	effective    RuleSet // rules merged with session rules

	tools *tool.Registry
	log   zerolog.Logger
}

// NewManager creates a manager over a loaded rule snapshot. The initial
// mode comes from the snapshot's resolved defaultMode setting.
func NewManager(reg *tool.Registry, rules RuleSet) *Manager {
	m := &Manager{
		mode:  rules.DefaultMode,
		rules: rules,
		tools: reg,
		log:   logging.Component("manager"),
	}
	m.effective = rules
	return m
}

// Mode returns the active permission mode.
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// SetMode switches to the given mode.
func (m *Manager) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// CycleMode advances default -> acceptEdits -> bypassPermissions ->
// default and returns the new mode. Plan mode cycles back to default.
func (m *Manager) CycleMode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = m.mode.Cycle()
	return m.mode
}

// EnterPlan switches to plan mode with writes confined to planFile.
func (m *Manager) EnterPlan(planFile string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModePlan
	m.planFile = planFile
}

// ExitPlan leaves plan mode back to the default mode.
func (m *Manager) ExitPlan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModePlan {
		m.mode = ModeDefault
	}
	m.planFile = ""
}

// SetRules replaces the persisted-scope snapshot, keeping session rules.
func (m *Manager) SetRules(rules RuleSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = rules
	m.effective = rules.Merge(m.sessionAllow, m.sessionDeny)
}

// AddRule adds a rule to the live set immediately. Session-scoped grants
// land here and nowhere else; persisted grants land here too so they take
// effect without a reload.
func (m *Manager) AddRule(behavior Behavior, r Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if behavior == Deny {
		m.sessionDeny = append(m.sessionDeny, r)
	} else {
		m.sessionAllow = append(m.sessionAllow, r)
	}
	m.effective = m.rules.Merge(m.sessionAllow, m.sessionDeny)
}

// Rules returns the current effective rule snapshot.
func (m *Manager) Rules() RuleSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.effective
}

// Check decides whether the invocation described by ctx may execute.
//
// Order is strict: deny rules first (in every mode, bypass included),
// then mode-based allowances, the built-in safe-command allowance, and
// finally allow rules. Anything unresolved asks the human. Internal
// errors bias toward asking; nothing here fails open.
func (m *Manager) Check(ctx Context) Decision {
	m.mu.RLock()
	mode := m.mode
	planFile := m.planFile
	rules := m.effective
	m.mu.RUnlock()

	desc := m.tools.Describe(ctx.ToolName)
	arg, argOK := desc.Argument(ctx.Input)

	var parts []shell.SimpleCommand
	if desc.Kind == tool.KindShell {
		if !argOK {
			return Decision{Behavior: Ask, Reason: "shell invocation carries no command string"}
		}
		parts = shell.Decompose(arg)
	}

	// 1. Deny rules. A compound command is denied if any part matches.
	if rule, ok := matchDeny(rules, desc, arg, parts); ok {
		m.log.Debug().Str("tool", ctx.ToolName).Str("rule", rule.Pattern).Msg("deny rule matched")
		return Decision{
			Behavior: Deny,
			Reason:   "blocked by deny rule",
			Rule:     rule.Pattern,
		}
	}

	// 2. Bypass mode allows everything that survived the deny rules.
	if mode == ModeBypass {
		return Decision{Behavior: Allow, Reason: "bypassPermissions mode"}
	}

	// Plan mode: read-only, writes confined to the plan file.
	if mode == ModePlan {
		return checkPlan(ctx, desc, arg, argOK, planFile)
	}

	// Unrestricted tools are not subject to prompting at all.
	if !desc.Restricted {
		return Decision{Behavior: Allow, Reason: "unrestricted tool"}
	}

	// 3. Built-in safe commands confined to the workspace.
	if desc.Kind == tool.KindShell && len(parts) > 0 && allSafe(parts, ctx.WorkDir) {
		return Decision{Behavior: Allow, Reason: "built-in safe command inside workspace"}
	}

	// 4. Accept-edits mode auto-allows file mutation, never shell.
	if mode == ModeAcceptEdits && desc.Mutating && desc.Kind != tool.KindShell {
		return Decision{Behavior: Allow, Reason: "acceptEdits mode"}
	}

	// 5. Allow rules.
	if desc.Kind == tool.KindShell {
		if dec, ok := checkShellAllow(rules, desc, ctx.WorkDir, parts); ok {
			return dec
		}
	} else if argOK || desc.ArgKey == "" {
		// A single-path tool missing its path argument stays on the ask
		// path; matching globs against nothing proves nothing.
		if rule, ok := rules.MatchAllow(desc.Name, arg); ok {
			return Decision{Behavior: Allow, Reason: "allow rule", Rule: rule.Pattern}
		}
	}

	// 6. Nothing decided: ask the human.
	return Decision{
		Behavior: Ask,
		Reason:   Render(desc.Name, arg) + " has no matching rule",
	}
}

// matchDeny runs deny rules against the whole action and, for shell,
// against every decomposed part. It runs even when the argument is
// missing so that tool-wide deny rules still bite.
func matchDeny(rules RuleSet, desc tool.Descriptor, arg string, parts []shell.SimpleCommand) (Rule, bool) {
	if rule, ok := rules.MatchDeny(desc.Name, arg); ok {
		return rule, true
	}
	for _, part := range parts {
		if rule, ok := rules.MatchDeny(desc.Name, part.Raw); ok {
			return rule, true
		}
	}
	return Rule{}, false
}

// checkShellAllow requires every simple command to match an allow rule or
// be a built-in safe command; a compound command is all-or-nothing.
func checkShellAllow(rules RuleSet, desc tool.Descriptor, workdir string, parts []shell.SimpleCommand) (Decision, bool) {
	if len(parts) == 0 {
		return Decision{}, false
	}

	var matched Rule
	for _, part := range parts {
		if IsSafeCommand(part, workdir) {
			continue
		}
		rule, ok := rules.MatchAllow(desc.Name, part.Raw)
		if !ok {
			return Decision{}, false
		}
		matched = rule
	}
	return Decision{Behavior: Allow, Reason: "allow rule", Rule: matched.Pattern}, true
}

// checkPlan enforces plan-mode policy after the deny rules have run.
func checkPlan(ctx Context, desc tool.Descriptor, arg string, argOK bool, planFile string) Decision {
	if desc.ReadOnly {
		return Decision{Behavior: Allow, Reason: "read-only tool in plan mode"}
	}
	if desc.Mutating && desc.Kind == tool.KindSinglePath && argOK && planFile != "" {
		if samePath(arg, planFile, ctx.WorkDir) {
			return Decision{Behavior: Allow, Reason: "plan file write in plan mode"}
		}
	}
	return Decision{Behavior: Deny, Reason: "plan mode is read-only"}
}

func allSafe(parts []shell.SimpleCommand, workdir string) bool {
	for _, part := range parts {
		if !IsSafeCommand(part, workdir) {
			return false
		}
	}
	return true
}

func samePath(a, b, workdir string) bool {
	return absAgainst(a, workdir) == absAgainst(b, workdir)
}

func absAgainst(path, workdir string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(workdir, path)
	}
	return filepath.Clean(path)
}
