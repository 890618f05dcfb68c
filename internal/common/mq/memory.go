package mq

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("message queue is closed")

// MemoryQueue delivers messages synchronously to handlers subscribed in the
// same process. Publish returns once every handler for the topic has run.
type MemoryQueue struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
	closed   bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{handlers: make(map[string][]HandlerFunc)}
}

func (q *MemoryQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	handlers := append([]HandlerFunc(nil), q.handlers[topic]...)
	q.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (q *MemoryQueue) Subscribe(_ context.Context, topic string, handler HandlerFunc) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

func (q *MemoryQueue) Start() error {
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.handlers = make(map[string][]HandlerFunc)
	return nil
}
