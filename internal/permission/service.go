package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/guardrail/internal/event"
	"github.com/opencode-ai/guardrail/internal/logging"
	"github.com/opencode-ai/guardrail/internal/shell"
	"github.com/opencode-ai/guardrail/internal/tool"
)

// Response is the human's answer to a permission request.
type Response string

const (
	ResponseOnce   Response = "once"
	ResponseAlways Response = "always"
	ResponseReject Response = "reject"
	ResponseCancel Response = "cancel"
)

// Reply carries the confirmation UI's answer back to the service.
type Reply struct {
	Response Response
	// Patterns overrides the suggested trust patterns for "always"
	// answers; the human may have edited them. Empty keeps the
	// suggestions as proposed.
	Patterns []string
	// Scope says where "always" grants are persisted. The UI chooses;
	// the engine never decides this on its own.
	Scope Scope
}

// RuleWriter persists a learned rule to a configuration scope.
// *config.TrustStore is the production implementation.
type RuleWriter interface {
	SaveRule(scope Scope, behavior Behavior, pattern string) error
}

// ErrCanceled is returned when the wait for a human answer is abandoned.
var ErrCanceled = errors.New("permission request canceled")

// Service brokers the human-in-the-loop part of authorization: it runs
// the manager's check, and when the answer is Ask it suspends just that
// tool call behind a request/response message pair while the rest of the
// agent keeps working.
type Service struct {
	mu      sync.Mutex
	pending map[string]chan Reply

	manager *Manager
	tools   *tool.Registry
	bus     *event.Bus
	store   RuleWriter
	loops   *LoopDetector
	log     zerolog.Logger
}

// NewService wires a service over a manager. store may be nil, in which
// case "always" grants stay session-only.
func NewService(manager *Manager, reg *tool.Registry, bus *event.Bus, store RuleWriter) *Service {
	return &Service{
		pending: make(map[string]chan Reply),
		manager: manager,
		tools:   reg,
		bus:     bus,
		store:   store,
		loops:   NewLoopDetector(),
		log:     logging.Component("permission"),
	}
}

// Authorize renders a decision for the invocation, waiting for the human
// when needed. The returned error is non-nil only for cancellation and
// persistence failures; a human rejection is a Deny decision, not an
// error.
func (s *Service) Authorize(ctx context.Context, pctx Context) (Decision, error) {
	dec := s.manager.Check(pctx)

	looping := s.loops.Observe(pctx.SessionID, pctx.ToolName, pctx.Input)
	if looping && dec.Behavior == Allow {
		dec = Decision{
			Behavior: Ask,
			Reason:   fmt.Sprintf("%s proposed identically %d times in a row", pctx.ToolName, LoopThreshold),
		}
	}

	if dec.Behavior != Ask {
		return dec, nil
	}

	return s.ask(ctx, pctx, dec)
}

// Respond delivers the human's answer for a pending request.
func (s *Service) Respond(requestID string, reply Reply) {
	s.mu.Lock()
	ch, ok := s.pending[requestID]
	s.mu.Unlock()

	if ok {
		// Non-blocking: a duplicate answer for the same request is dropped.
		select {
		case ch <- reply:
		default:
		}
	}

	s.bus.Publish(event.Event{
		Type: event.PermissionReplied,
		Data: event.PermissionRepliedData{
			ID:       requestID,
			Response: string(reply.Response),
		},
	})
}

// ClearSession drops per-session state (loop history).
func (s *Service) ClearSession(sessionID string) {
	s.loops.Clear(sessionID)
}

func (s *Service) ask(ctx context.Context, pctx Context, dec Decision) (Decision, error) {
	desc := s.tools.Describe(pctx.ToolName)
	arg, _ := desc.Argument(pctx.Input)
	suggestions := s.suggest(desc, arg)

	id := ulid.Make().String()
	respCh := make(chan Reply, 1)

	s.mu.Lock()
	s.pending[id] = respCh
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	s.bus.Publish(event.Event{
		Type: event.PermissionRequested,
		Data: event.PermissionRequestedData{
			ID:          id,
			SessionID:   pctx.SessionID,
			ToolName:    pctx.ToolName,
			Action:      Render(pctx.ToolName, arg),
			Reason:      dec.Reason,
			Suggestions: suggestions,
		},
	})

	select {
	case <-ctx.Done():
		return Decision{Behavior: Ask, Reason: dec.Reason}, ctx.Err()
	case reply := <-respCh:
		return s.applyReply(pctx, reply, suggestions)
	}
}

// applyReply converts the human's answer into the final decision,
// learning rules for "always" answers. Persisting never changes the
// decision already rendered here; it only affects future calls.
func (s *Service) applyReply(pctx Context, reply Reply, suggestions []string) (Decision, error) {
	switch reply.Response {
	case ResponseOnce:
		return Decision{Behavior: Allow, Reason: "approved by user"}, nil

	case ResponseAlways:
		patterns := reply.Patterns
		if len(patterns) == 0 {
			patterns = suggestions
		}
		err := s.learn(pctx, reply.Scope, patterns)
		return Decision{Behavior: Allow, Reason: "approved by user"}, err

	case ResponseReject:
		return Decision{
			Behavior: Deny,
			Reason:   "rejected by user",
		}, nil

	default:
		return Decision{Behavior: Ask, Reason: "request canceled"}, ErrCanceled
	}
}

// learn records approved patterns in the live rule set and persists them
// to the chosen scope. A persistence failure keeps the session-only rule
// so the run continues, but the error is surfaced: nothing is falsely
// reported as durably saved.
func (s *Service) learn(pctx Context, scope Scope, patterns []string) error {
	var firstErr error
	for _, pattern := range patterns {
		rule, err := ParseRule(pattern, s.tools)
		if err != nil {
			s.log.Warn().Str("pattern", pattern).Err(err).Msg("skipping unparseable trust pattern")
			continue
		}

		s.manager.AddRule(Allow, rule)

		if scope == ScopeSession || scope == "" || s.store == nil {
			continue
		}
		if err := s.store.SaveRule(scope, Allow, pattern); err != nil {
			s.log.Error().Str("pattern", pattern).Str("scope", string(scope)).Err(err).Msg("failed to persist trust rule")
			if firstErr == nil {
				firstErr = fmt.Errorf("persist rule %q to %s scope: %w", pattern, scope, err)
			}
		}
	}
	return firstErr
}

// suggest proposes trust patterns for the action being confirmed: smart
// prefixes for shell commands, an exact rule for everything else.
func (s *Service) suggest(desc tool.Descriptor, arg string) []string {
	if desc.Kind == tool.KindShell {
		if patterns := SuggestPatterns(shell.Decompose(arg)); len(patterns) > 0 {
			return patterns
		}
	}
	if arg == "" {
		return []string{desc.Name}
	}
	return []string{Render(desc.Name, arg)}
}
