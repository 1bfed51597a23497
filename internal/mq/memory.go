package mq

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
)

// MemoryBackend delivers messages in process. Messages published while no
// subscriber is attached are kept and replayed to the first subscriber.
type MemoryBackend struct {
	mu      sync.Mutex
	seq     int
	closed  bool
	queues  map[string][]Message
	waiters map[string]chan struct{}
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		queues:  make(map[string][]Message),
		waiters: make(map[string]chan struct{}),
	}
}

func (b *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", errors.New("memory backend closed")
	}
	b.seq++
	msg := Message{
		ID:         strconv.Itoa(b.seq),
		Data:       append([]byte(nil), data...),
		Attributes: copyAttributes(attrs),
	}
	b.queues[channel] = append(b.queues[channel], msg)
	b.signalLocked(channel)
	return msg.ID, nil
}

// Subscribe drains the channel, redelivering a message until handler accepts it.
func (b *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	for {
		msg, wait, err := b.next(channel)
		if err != nil {
			return err
		}
		if wait != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
			}
			continue
		}
		if err := handler(ctx, msg); err != nil {
			b.requeue(channel, msg)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Pending returns the messages queued on channel without consuming them.
func (b *MemoryBackend) Pending(channel string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.queues[channel]...)
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for channel := range b.waiters {
		b.signalLocked(channel)
	}
	return nil
}

func (b *MemoryBackend) next(channel string) (Message, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Message{}, nil, errors.New("memory backend closed")
	}
	queue := b.queues[channel]
	if len(queue) > 0 {
		msg := queue[0]
		b.queues[channel] = queue[1:]
		return msg, nil, nil
	}
	wait, ok := b.waiters[channel]
	if !ok {
		wait = make(chan struct{})
		b.waiters[channel] = wait
	}
	return Message{}, wait, nil
}

func (b *MemoryBackend) requeue(channel string, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[channel] = append([]Message{msg}, b.queues[channel]...)
}

func (b *MemoryBackend) signalLocked(channel string) {
	if wait, ok := b.waiters[channel]; ok {
		close(wait)
		delete(b.waiters, channel)
	}
}

func copyAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
