package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// recorder collects every event it receives, in order.
type recorder struct {
	types  []Type
	events []Event
}

func newRecorder(types ...Type) *recorder { return &recorder{types: types} }

func (r *recorder) SubscribedEvents() []Type { return r.types }

func (r *recorder) OnEvent(ev Event) { r.events = append(r.events, ev) }

func TestPublisher_Subscribe(t *testing.T) {
	pub := NewPublisher("ollama")
	defer pub.Close()

	rec := newRecorder(Content)
	pub.Subscribe(rec)

	pub.Publish(Content, map[string]any{"content": "hello"})

	if len(rec.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Type != Content {
		t.Errorf("Expected content event, got %v", ev.Type)
	}
	if ev.Data["content"] != "hello" {
		t.Errorf("Expected 'hello', got %v", ev.Data["content"])
	}
	if ev.Provider != "ollama" {
		t.Errorf("Expected provider 'ollama', got %q", ev.Provider)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Expected a timestamp to be stamped on publish")
	}
}

func TestPublisher_EventTypeFiltering(t *testing.T) {
	pub := NewPublisher("test")
	defer pub.Close()

	content := newRecorder(Content)
	errors := newRecorder(Error)
	pub.Subscribe(content)
	pub.Subscribe(errors)

	pub.Publish(Content, map[string]any{"content": "a"})
	pub.Publish(Content, map[string]any{"content": "b"})
	pub.Publish(Error, map[string]any{"error": map[string]any{"message": "boom"}})

	if len(content.events) != 2 {
		t.Errorf("Expected 2 content events, got %d", len(content.events))
	}
	if len(errors.events) != 1 {
		t.Errorf("Expected 1 error event, got %d", len(errors.events))
	}
}

func TestPublisher_DeliveryOrder(t *testing.T) {
	pub := NewPublisher("test")
	defer pub.Close()

	var order []string
	first := NewFuncSubscriber(func(Event) { order = append(order, "first") }, Content)
	second := NewFuncSubscriber(func(Event) { order = append(order, "second") }, Content)
	pub.Subscribe(first)
	pub.Subscribe(second)

	pub.Publish(Content, map[string]any{"content": "x"})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Expected delivery in subscription order, got %v", order)
	}
}

func TestPublisher_SubscribeIdempotent(t *testing.T) {
	pub := NewPublisher("test")
	defer pub.Close()

	rec := newRecorder(Content)
	pub.Subscribe(rec)
	pub.Subscribe(rec)

	if pub.Len() != 1 {
		t.Errorf("Expected 1 subscriber after duplicate subscribe, got %d", pub.Len())
	}

	pub.Publish(Content, map[string]any{"content": "x"})
	if len(rec.events) != 1 {
		t.Errorf("Expected exactly-once delivery, got %d events", len(rec.events))
	}
}

func TestPublisher_Unsubscribe(t *testing.T) {
	pub := NewPublisher("test")
	defer pub.Close()

	rec := newRecorder(Content)
	pub.Subscribe(rec)

	pub.Publish(Content, map[string]any{"content": "x"})
	if len(rec.events) != 1 {
		t.Fatalf("Expected 1 event before unsubscribe, got %d", len(rec.events))
	}

	pub.Unsubscribe(rec)

	pub.Publish(Content, map[string]any{"content": "y"})
	if len(rec.events) != 1 {
		t.Errorf("Expected still 1 event after unsubscribe, got %d", len(rec.events))
	}

	// Unsubscribing an absent subscriber is a no-op.
	pub.Unsubscribe(rec)
	if pub.Len() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", pub.Len())
	}
}

func TestPublisher_ClearSubscribers(t *testing.T) {
	pub := NewPublisher("test")
	defer pub.Close()

	pub.Subscribe(newRecorder(Content))
	pub.Subscribe(newRecorder(Error))
	if pub.Len() != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", pub.Len())
	}

	pub.ClearSubscribers()
	if pub.Len() != 0 {
		t.Errorf("Expected 0 subscribers after clear, got %d", pub.Len())
	}

	// Clearing an empty publisher is fine.
	pub.ClearSubscribers()
	pub.Publish(Content, map[string]any{"content": "x"})
}

func TestPublisher_PanicIsolation(t *testing.T) {
	pub := NewPublisher("test")
	defer pub.Close()

	panicking := NewFuncSubscriber(func(Event) { panic("subscriber bug") }, Content)
	rec := newRecorder(Content)
	pub.Subscribe(panicking)
	pub.Subscribe(rec)

	pub.Publish(Content, map[string]any{"content": "x"})

	if len(rec.events) != 1 {
		t.Errorf("Expected later subscriber to still receive the event, got %d", len(rec.events))
	}
}

func TestPublisher_ReentrantPublish(t *testing.T) {
	pub := NewPublisher("test")
	defer pub.Close()

	var order []Type
	chained := NewFuncSubscriber(func(ev Event) {
		order = append(order, ev.Type)
		if ev.Type == Content {
			pub.Publish(Finish, map[string]any{"finish_reason": "stop"})
		}
	}, Content, Finish)
	tail := NewFuncSubscriber(func(ev Event) {
		order = append(order, ev.Type)
	}, Content, Finish)
	pub.Subscribe(chained)
	pub.Subscribe(tail)

	pub.Publish(Content, map[string]any{"content": "x"})

	// The nested publish is deferred until the current pass completes, so
	// every subscriber sees the content event before the finish event.
	want := []Type{Content, Content, Finish, Finish}
	if len(order) != len(want) {
		t.Fatalf("Expected %d deliveries, got %d: %v", len(want), len(order), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Delivery %d: expected %v, got %v", i, want[i], order[i])
		}
	}
}

func TestPublisher_SetRequestID(t *testing.T) {
	pub := NewPublisher("test")
	defer pub.Close()

	rec := newRecorder(Content)
	pub.Subscribe(rec)

	pub.SetRequestID("req-1")
	pub.Publish(Content, map[string]any{"content": "x"})
	pub.SetRequestID("req-2")
	pub.Publish(Content, map[string]any{"content": "y"})

	if rec.events[0].RequestID != "req-1" {
		t.Errorf("Expected request id 'req-1', got %q", rec.events[0].RequestID)
	}
	if rec.events[1].RequestID != "req-2" {
		t.Errorf("Expected request id 'req-2', got %q", rec.events[1].RequestID)
	}
}

func TestPublisher_NoSubscribers(t *testing.T) {
	pub := NewPublisher("test")
	defer pub.Close()

	// Should not panic with no subscribers.
	pub.Publish(Content, map[string]any{"content": "x"})
	pub.Publish(Error, nil)
}

func TestPublisher_Stream(t *testing.T) {
	pub := NewPublisher("ollama")
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := pub.Stream(ctx)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	pub.Publish(Content, map[string]any{"content": "hello"})

	select {
	case msg := <-msgs:
		msg.Ack()
		if msg.Metadata.Get("type") != string(Content) {
			t.Errorf("Expected type metadata %q, got %q", Content, msg.Metadata.Get("type"))
		}
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			t.Fatalf("Unmarshal payload: %v", err)
		}
		if ev.Type != Content || ev.Data["content"] != "hello" {
			t.Errorf("Unexpected streamed event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for streamed event")
	}
}
