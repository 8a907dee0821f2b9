package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/kozo2/Hatchling/internal/logging"
)

// StreamTopic is the watermill topic carrying the JSON-encoded mirror of
// every published event. See Publisher.Stream.
const StreamTopic = "hatchling.events"

// Publisher distributes events to registered subscribers.
//
// Subscribers are notified synchronously, in registration order, and only
// for the event types they declared interest in. A subscriber that panics
// is isolated: the panic is logged and delivery continues with the next
// subscriber.
//
// Dispatch is not re-entrant. A subscriber that publishes into the same
// publisher during its own notification has that event queued and delivered
// after the current dispatch pass completes.
//
// Each publisher also mirrors its events onto a watermill gochannel topic
// so external consumers can tap the stream without registering a Subscriber;
// this keeps the door open for middleware or distributed backends.
type Publisher struct {
	mu sync.Mutex

	provider    string
	requestID   string
	subscribers []Subscriber

	dispatching bool
	deferred    []Event

	pubsub *gochannel.GoChannel
	closed bool
}

// NewPublisher creates a publisher stamping events with the given provider
// identifier. Publishers are created per provider instance or per tool
// execution manager and closed with their owner.
func NewPublisher(provider string) *Publisher {
	return &Publisher{
		provider: provider,
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
	}
}

// Subscribe registers a subscriber. Registering the same subscriber twice
// is a no-op, so a subscriber is never notified more than once per event.
func (p *Publisher) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.subscribers {
		if existing == s {
			return
		}
	}
	p.subscribers = append(p.subscribers, s)
	logging.Debug().
		Str("provider", p.provider).
		Int("subscribers", len(p.subscribers)).
		Msg("event subscriber added")
}

// Unsubscribe removes a subscriber. Removing a subscriber that was never
// registered is a no-op.
func (p *Publisher) Unsubscribe(s Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.subscribers {
		if existing == s {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			return
		}
	}
}

// ClearSubscribers removes all subscribers. Calling it on an empty
// publisher is a no-op.
func (p *Publisher) ClearSubscribers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = nil
}

// Len returns the number of registered subscribers.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

// SetRequestID sets the correlation identifier stamped on subsequently
// published events.
func (p *Publisher) SetRequestID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requestID = id
}

// Publish constructs an event of the given type and delivers it to every
// interested subscriber, in registration order, before returning.
func (p *Publisher) Publish(t Type, data map[string]any) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	ev := Event{
		Type:      t,
		Data:      data,
		Provider:  p.provider,
		RequestID: p.requestID,
		Timestamp: time.Now(),
	}
	if p.dispatching {
		// Re-entrant publish from a subscriber: deliver after the
		// current pass.
		p.deferred = append(p.deferred, ev)
		p.mu.Unlock()
		return
	}
	p.dispatching = true
	p.mu.Unlock()

	p.dispatch(ev)

	for {
		p.mu.Lock()
		if len(p.deferred) == 0 {
			p.dispatching = false
			p.mu.Unlock()
			return
		}
		next := p.deferred[0]
		p.deferred = p.deferred[1:]
		p.mu.Unlock()
		p.dispatch(next)
	}
}

// dispatch delivers one event to interested subscribers and mirrors it to
// the watermill topic.
func (p *Publisher) dispatch(ev Event) {
	p.mu.Lock()
	subs := make([]Subscriber, len(p.subscribers))
	copy(subs, p.subscribers)
	p.mu.Unlock()

	for _, s := range subs {
		if !interested(s, ev.Type) {
			continue
		}
		p.notify(s, ev)
	}

	if payload, err := json.Marshal(ev); err == nil {
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("type", string(ev.Type))
		if err := p.pubsub.Publish(StreamTopic, msg); err != nil {
			logging.Debug().Err(err).Msg("event stream mirror publish failed")
		}
	}
}

// notify calls a single subscriber, converting a panic into a log entry so
// one misbehaving listener cannot break delivery to the others.
func (p *Publisher) notify(s Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("provider", p.provider).
				Str("event", string(ev.Type)).
				Any("panic", r).
				Msg("event subscriber panicked")
		}
	}()
	s.OnEvent(ev)
}

func interested(s Subscriber, t Type) bool {
	for _, want := range s.SubscribedEvents() {
		if want == t {
			return true
		}
	}
	return false
}

// Stream returns a channel of watermill messages mirroring every event
// published after the call. The payload is the JSON encoding of Event.
func (p *Publisher) Stream(ctx context.Context) (<-chan *message.Message, error) {
	return p.pubsub.Subscribe(ctx, StreamTopic)
}

// Close removes all subscribers and shuts down the stream mirror. Further
// publishes are dropped.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.subscribers = nil
	p.deferred = nil
	p.mu.Unlock()
	return p.pubsub.Close()
}
