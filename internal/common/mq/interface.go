package mq

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageQueue carries domain events between services. KafkaQueue is used
// when brokers are configured; MemoryQueue delivers in-process otherwise.
type MessageQueue interface {
	// Publish publishes a message to the specified topic
	Publish(ctx context.Context, topic string, message *Message) error

	// Subscribe registers handler for topic. Handlers registered before
	// Start begin receiving once Start is called.
	Subscribe(ctx context.Context, topic string, handler HandlerFunc) error

	Start() error

	Close() error
}

// Message represents a message in the queue
type Message struct {
	ID        string            `json:"id"`
	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers"`
	Timestamp time.Time         `json:"timestamp"`
}

// HandlerFunc processes one message. A returned error is logged by the
// queue; the message is not redelivered.
type HandlerFunc func(ctx context.Context, message *Message) error

// NewMessage creates a message with a fresh id.
func NewMessage(body []byte) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// GetHeader retrieves a header value
func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}
