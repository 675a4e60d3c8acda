// Package bus provides event bus implementations for Finch.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openbioscience/finch/internal/domain"
)

// ChannelBus implements EventBus using Go channels.
// Used in the standalone profile where everything runs in one process.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	closed        bool
}

type channelSubscription struct {
	id      string
	subject string
	handler domain.EventHandler
	eventCh chan *domain.Event
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
	}
}

// Publish sends an event on a subject. Missing envelope fields are filled in.
func (b *ChannelBus) Publish(ctx context.Context, subject string, event *domain.Event) error {
	if subject == "" {
		return fmt.Errorf("subject is required")
	}
	if event == nil {
		return fmt.Errorf("event is required")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}

	fillEnvelope(subject, event)

	subs := b.subscriptions[subject]
	b.mu.RUnlock()

	// Send to all matching subscribers (non-blocking)
	for _, sub := range subs {
		select {
		case sub.eventCh <- event:
		default:
			// Channel full, skip this event for this subscriber
		}
	}

	return nil
}

// Subscribe registers a handler for a subject.
func (b *ChannelBus) Subscribe(ctx context.Context, subject string, handler domain.EventHandler) (domain.Subscription, error) {
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)

	sub := &channelSubscription{
		id:      uuid.New().String(),
		subject: subject,
		handler: handler,
		eventCh: make(chan *domain.Event, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
	}

	// Start event handler goroutine
	go b.handleEvents(sub)

	b.subscriptions[subject] = append(b.subscriptions[subject], sub)

	return sub, nil
}

// handleEvents processes events for a subscription.
func (b *ChannelBus) handleEvents(sub *channelSubscription) {
	for {
		select {
		case <-sub.ctx.Done():
			return
		case event := <-sub.eventCh:
			if event != nil {
				_ = sub.handler(sub.ctx, event)
			}
		}
	}
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close closes the event bus.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	// Cancel all subscriptions
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
			close(sub.eventCh)
		}
	}

	b.subscriptions = make(map[string][]*channelSubscription)
	return nil
}

// fillEnvelope assigns the envelope fields a caller may leave empty.
func fillEnvelope(subject string, event *domain.Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	event.Subject = subject
}

// Unsubscribe stops receiving events.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

// Subject returns the subscribed subject.
func (s *channelSubscription) Subject() string {
	return s.subject
}
