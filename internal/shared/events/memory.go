package events

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// MemoryBus delivers events to in-process subscribers. It is used when
// KurrentDB is disabled so notifications keep working on a single node.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   []memorySub
	closed bool
	wg     sync.WaitGroup
}

type memorySub struct {
	ctx     context.Context
	pattern string
	name    string
	ch      chan Event
}

// NewMemoryBus creates an in-process event bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish hands the event to every matching subscriber. A subscriber whose
// buffer is full drops the event rather than blocking the publisher.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus closed")
	}

	for _, s := range b.subs {
		if !matchesPattern(event.Type, s.pattern) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			log.Printf("Subscriber %s is full, dropping event %s", s.name, event.ID)
		}
	}
	return nil
}

// Subscribe registers handler for events matching pattern until ctx ends
func (b *MemoryBus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("event bus closed")
	}

	sub := memorySub{ctx: ctx, pattern: pattern, name: consumerName, ch: make(chan Event, 256)}
	b.subs = append(b.subs, sub)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sub.ch:
				if !ok {
					return
				}
				if err := handler(ctx, event); err != nil {
					log.Printf("Handler error for event %s: %v", event.ID, err)
				}
			}
		}
	}()

	return nil
}

// Close stops all subscribers after they drain their buffers
func (b *MemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// Health reports whether the bus accepts events
func (b *MemoryBus) Health() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("event bus closed")
	}
	return nil
}
