// Package events provides an event bus implementation using Go channels.
package events

import (
	"context"
	"sync"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Handler is a function that handles events.
type Handler func(event shared.Event)

// EventBus provides a publish-subscribe event system using Go channels.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[shared.EventType][]chan shared.Event
	handlers    map[shared.EventType][]Handler
	bufferSize  int
	closed      bool
}

// Option configures the EventBus.
type Option func(*EventBus)

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) Option {
	return func(eb *EventBus) {
		eb.bufferSize = size
	}
}

// New creates a new EventBus.
func New(opts ...Option) *EventBus {
	eb := &EventBus{
		subscribers: make(map[shared.EventType][]chan shared.Event),
		handlers:    make(map[shared.EventType][]Handler),
		bufferSize:  100,
	}

	for _, opt := range opts {
		opt(eb)
	}

	return eb
}

// Subscribe creates a channel to receive events of the given type.
func (eb *EventBus) Subscribe(eventType shared.EventType) <-chan shared.Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan shared.Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a channel to receive all events.
func (eb *EventBus) SubscribeAll() <-chan shared.Event {
	return eb.Subscribe("*")
}

// Unsubscribe removes a subscription channel and closes it.
func (eb *EventBus) Unsubscribe(eventType shared.EventType, ch <-chan shared.Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[eventType]
	for i, sub := range subs {
		if (<-chan shared.Event)(sub) == ch {
			eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
}

// On registers a handler for events of the given type.
func (eb *EventBus) On(eventType shared.EventType, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Emit publishes an event to all subscribers and handlers. Sends to
// subscriber channels are non-blocking: a full channel drops the event
// for that subscriber rather than stalling the publisher.
func (eb *EventBus) Emit(event shared.Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = shared.Now()
	}

	for _, ch := range eb.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}

	for _, ch := range eb.subscribers["*"] {
		select {
		case ch <- event:
		default:
		}
	}

	for _, handler := range eb.handlers[event.Type] {
		go handler(event)
	}

	for _, handler := range eb.handlers["*"] {
		go handler(event)
	}
}

// EmitWithContext publishes an event unless the context is already done.
func (eb *EventBus) EmitWithContext(ctx context.Context, event shared.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		eb.Emit(event)
		return nil
	}
}

// Close closes all subscriber channels and stops the event bus.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, subs := range eb.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}

	eb.subscribers = make(map[shared.EventType][]chan shared.Event)
	eb.handlers = make(map[shared.EventType][]Handler)
}

// ============================================================================
// Helper Functions
// ============================================================================

// EmitSessionInitialized emits a session initialized event.
func (eb *EventBus) EmitSessionInitialized(sessionID string, topology shared.TopologyKind, agentCount int) {
	eb.Emit(shared.Event{
		Type:      shared.EventSessionInitialized,
		SessionID: sessionID,
		Timestamp: shared.Now(),
		Payload: map[string]interface{}{
			"topology":   string(topology),
			"agentCount": agentCount,
		},
	})
}

// EmitSessionClosed emits a session closed event.
func (eb *EventBus) EmitSessionClosed(sessionID string, reason string) {
	eb.Emit(shared.Event{
		Type:      shared.EventSessionClosed,
		SessionID: sessionID,
		Timestamp: shared.Now(),
		Payload: map[string]interface{}{
			"reason": reason,
		},
	})
}

// EmitTopologySwitched emits a topology switched event.
func (eb *EventBus) EmitTopologySwitched(sessionID string, from, to shared.TopologyKind) {
	eb.Emit(shared.Event{
		Type:      shared.EventTopologySwitched,
		SessionID: sessionID,
		Timestamp: shared.Now(),
		Payload: map[string]interface{}{
			"from": string(from),
			"to":   string(to),
		},
	})
}

// EmitAgentStateChanged emits an agent state changed event.
func (eb *EventBus) EmitAgentStateChanged(sessionID, agentID string, from, to shared.AgentState) {
	eb.Emit(shared.Event{
		Type:      shared.EventAgentStateChanged,
		SessionID: sessionID,
		Timestamp: shared.Now(),
		Payload: map[string]interface{}{
			"agentId": agentID,
			"from":    string(from),
			"to":      string(to),
		},
	})
}

// EmitConsensusDecided emits a consensus decided event.
func (eb *EventBus) EmitConsensusDecided(sessionID, proposalID string, outcome shared.ProposalOutcome) {
	eb.Emit(shared.Event{
		Type:      shared.EventConsensusDecided,
		SessionID: sessionID,
		Timestamp: shared.Now(),
		Payload: map[string]interface{}{
			"proposalId": proposalID,
			"outcome":    string(outcome),
		},
	})
}

// EmitHealingApplied emits a healing applied event.
func (eb *EventBus) EmitHealingApplied(sessionID string, action shared.HealingAction) {
	eb.Emit(shared.Event{
		Type:      shared.EventHealingApplied,
		SessionID: sessionID,
		Timestamp: shared.Now(),
		Payload: map[string]interface{}{
			"action":  string(action.Kind),
			"agentId": action.AgentID,
			"trigger": action.Trigger,
		},
	})
}

// EmitTaskRecorded emits a task recorded event.
func (eb *EventBus) EmitTaskRecorded(sessionID, agentID, taskID string, result shared.TaskResultKind, durationMs int64) {
	eb.Emit(shared.Event{
		Type:      shared.EventTaskRecorded,
		SessionID: sessionID,
		Timestamp: shared.Now(),
		Payload: map[string]interface{}{
			"agentId":  agentID,
			"taskId":   taskID,
			"result":   string(result),
			"duration": durationMs,
		},
	})
}
