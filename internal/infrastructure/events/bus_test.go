package events

import (
	"testing"
	"time"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

func TestSubscribeReceivesEvent(t *testing.T) {
	eb := New()
	defer eb.Close()

	ch := eb.Subscribe(shared.EventSessionInitialized)
	eb.EmitSessionInitialized("sess-1", shared.TopologyMesh, 3)

	select {
	case ev := <-ch:
		if ev.Type != shared.EventSessionInitialized {
			t.Errorf("expected session:initialized, got %s", ev.Type)
		}
		if ev.SessionID != "sess-1" {
			t.Errorf("expected sess-1, got %s", ev.SessionID)
		}
		if ev.Payload["topology"] != "mesh" {
			t.Errorf("expected mesh payload, got %v", ev.Payload["topology"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	eb := New()
	defer eb.Close()

	ch := eb.SubscribeAll()
	eb.EmitTopologySwitched("sess-1", shared.TopologyMesh, shared.TopologyStar)
	eb.EmitSessionClosed("sess-1", "")

	got := make([]shared.EventType, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	if got[0] != shared.EventTopologySwitched || got[1] != shared.EventSessionClosed {
		t.Errorf("unexpected event order: %v", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	eb := New()
	defer eb.Close()

	ch := eb.Subscribe(shared.EventTaskRecorded)
	eb.Unsubscribe(shared.EventTaskRecorded, ch)

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}

	// Emitting after unsubscribe must not panic.
	eb.EmitTaskRecorded("sess-1", "a-1", "t-1", shared.TaskSuccess, 10)
}

func TestEmitAfterCloseIsNoop(t *testing.T) {
	eb := New()
	eb.Close()
	eb.EmitSessionClosed("sess-1", "shutdown")
	eb.Close()
}

func TestHandlerInvoked(t *testing.T) {
	eb := New()
	defer eb.Close()

	done := make(chan shared.Event, 1)
	eb.On(shared.EventHealingApplied, func(ev shared.Event) {
		done <- ev
	})

	eb.EmitHealingApplied("sess-1", shared.HealingAction{
		Kind:    shared.ActionRestartAgent,
		AgentID: "a-2",
		Trigger: "missed probes",
	})

	select {
	case ev := <-done:
		if ev.Payload["agentId"] != "a-2" {
			t.Errorf("expected a-2, got %v", ev.Payload["agentId"])
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}
