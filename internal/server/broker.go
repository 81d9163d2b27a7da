package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Notification is the envelope delivered to realtime subscribers when a
// document changes.
type Notification struct {
	Events     []string        `json:"events"`
	Channels   []string        `json:"channels"`
	EventType  string          `json:"eventType"`
	Collection string          `json:"collection"`
	DocumentID string          `json:"documentId"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Broker fans notifications out to subscribers keyed by channel name.
type Broker interface {
	Subscribe(channels ...string) *Subscription
	Publish(ctx context.Context, n Notification)
}

// Subscription receives every notification published to any of its
// channels, at most once per notification. Close is safe to call more than
// once.
type Subscription struct {
	ch       chan Notification
	channels []string
	once     sync.Once
	release  func(*Subscription)
}

func (s *Subscription) C() <-chan Notification { return s.ch }

func (s *Subscription) Channels() []string { return s.channels }

func (s *Subscription) Close() {
	s.once.Do(func() { s.release(s) })
}

// MemoryBroker is an in-process Broker.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

func (b *MemoryBroker) Subscribe(channels ...string) *Subscription {
	sub := &Subscription{
		ch:       make(chan Notification, 16),
		channels: channels,
		release:  b.unsubscribe,
	}
	b.mu.Lock()
	for _, c := range channels {
		if b.subs[c] == nil {
			b.subs[c] = make(map[*Subscription]struct{})
		}
		b.subs[c][sub] = struct{}{}
	}
	b.mu.Unlock()
	return sub
}

func (b *MemoryBroker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range sub.channels {
		delete(b.subs[c], sub)
		if len(b.subs[c]) == 0 {
			delete(b.subs, c)
		}
	}
	close(sub.ch)
}

func (b *MemoryBroker) Publish(_ context.Context, n Notification) {
	b.deliver(n)
}

// deliver sends n to every matching subscriber without blocking.
func (b *MemoryBroker) deliver(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[*Subscription]struct{})
	for _, c := range n.Channels {
		for sub := range b.subs[c] {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			select {
			case sub.ch <- n:
			default:
				// Drop if subscriber is slow.
			}
		}
	}
}
