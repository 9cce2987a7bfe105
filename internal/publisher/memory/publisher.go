// Package memory contains an in-process publisher used when no Pub/Sub project is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

const defaultCapacity = 256

// Publisher keeps the most recent payloads in a ring for inspection and logs each one.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	capacity int
	total    int
	logger   *zap.Logger
}

var _ crawler.Publisher = (*Publisher)(nil)

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns a memory Publisher retaining up to capacity messages
// (a default is used when capacity <= 0).
func New(capacity int, logger *zap.Logger) *Publisher {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{capacity: capacity, logger: logger}
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total++
	id := fmt.Sprintf("memory-%d", p.total)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	if len(p.messages) > p.capacity {
		p.messages = p.messages[len(p.messages)-p.capacity:]
	}
	p.logger.Debug("message published", zap.String("topic", topic), zap.String("message_id", id))
	return id, nil
}

// Messages returns the retained publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Total reports how many messages were ever published.
func (p *Publisher) Total() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}
