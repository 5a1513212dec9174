// Package memory contains an in-memory publisher used by tests and by
// runs with no Pub/Sub topic configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	// Err, when set, is returned by every Publish call.
	Err error

	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Events returns the payloads that are completion events, in publish order.
func (p *Publisher) Events() []crawler.CompletionEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []crawler.CompletionEvent
	for _, m := range p.messages {
		if ev, ok := m.Payload.(crawler.CompletionEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}
