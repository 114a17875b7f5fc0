// Package event provides the pub/sub channel between the authorization
// engine and its confirmation-UI collaborator, built on watermill's
// in-process gochannel transport.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/opencode-ai/guardrail/internal/logging"
)

// EventType represents the type of event.
type EventType string

const (
	// PermissionRequested is published when a decision needs a human answer.
	PermissionRequested EventType = "permission.requested"
	// PermissionReplied is published after the human answered.
	PermissionReplied EventType = "permission.replied"
	// RulesReloaded is published when the merged rule set is recomputed.
	RulesReloaded EventType = "rules.reloaded"
	// ModeChanged is published when the permission mode changes.
	ModeChanged EventType = "mode.changed"
)

// Event represents an event to be published. Each event type maps to one
// gochannel topic; Data is the typed payload for that type.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// Bus manages pub/sub delivery over a watermill gochannel. Payloads
// travel as JSON and are decoded back into their typed Data structs on
// the subscriber side.
type Bus struct {
	pubsub *gochannel.GoChannel
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            64,
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NopLogger{},
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	subCtx, cancel := context.WithCancel(b.ctx)
	ch, err := b.pubsub.Subscribe(subCtx, string(eventType))
	b.mu.Unlock()
	if err != nil {
		cancel()
		log := logging.Component("event")
		log.Error().Str("type", string(eventType)).Err(err).Msg("subscribe failed")
		return func() {}
	}

	var stopped atomic.Bool
	go func() {
		for msg := range ch {
			if !stopped.Load() {
				fn(Event{Type: eventType, Data: decodeData(eventType, msg.Payload)})
			}
			msg.Ack()
		}
	}()

	return func() {
		// Delivery stops immediately; the transport forgets the
		// subscription when the context unwinds.
		stopped.Store(true)
		cancel()
	}
}

// Publish sends an event to all subscribers without blocking the caller.
func (b *Bus) Publish(event Event) {
	go b.deliver(event)
}

// PublishSync sends an event and returns once every subscriber has
// handled it.
func (b *Bus) PublishSync(event Event) {
	b.deliver(event)
}

func (b *Bus) deliver(event Event) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	payload, err := json.Marshal(event.Data)
	if err != nil {
		log := logging.Component("event")
		log.Error().Str("type", string(event.Type)).Err(err).Msg("unencodable event payload")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(string(event.Type), msg); err != nil {
		log := logging.Component("event")
		log.Debug().Str("type", string(event.Type)).Err(err).Msg("publish on closed bus")
	}
}

// Close closes the bus and drops all subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	return b.pubsub.Close()
}

// decodeData rebuilds the typed Data struct for an event type from its
// wire payload. Unknown types and undecodable payloads yield nil.
func decodeData(eventType EventType, payload []byte) any {
	switch eventType {
	case PermissionRequested:
		return decodeInto[PermissionRequestedData](payload)
	case PermissionReplied:
		return decodeInto[PermissionRepliedData](payload)
	case RulesReloaded:
		return decodeInto[RulesReloadedData](payload)
	case ModeChanged:
		return decodeInto[ModeChangedData](payload)
	default:
		return nil
	}
}

func decodeInto[T any](payload []byte) any {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil
	}
	return v
}
