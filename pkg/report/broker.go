// Package report delivers training metrics to external consumers: a
// channel-based broker for in-process subscribers, colored console
// progress lines, HTML training-curve pages, and a websocket endpoint
// streaming per-episode statistics.
package report

import (
	"fmt"
	"sync"
)

// Broker fans values out to subscriber channels. Sends are non-blocking;
// a subscriber that cannot keep up has its value dropped and Publish
// reports the failure.
type Broker[T any] struct {
	mu   sync.RWMutex
	subs map[string]chan<- T
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[string]chan<- T),
	}
}

// Publish sends v to every subscriber. Full channels are skipped; the
// first skipped subscriber is reported as an error.
func (b *Broker[T]) Publish(v T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var err error
	for id, ch := range b.subs {
		select {
		case ch <- v:
		default:
			if err == nil {
				err = fmt.Errorf("report: subscriber %s's channel is full", id)
			}
		}
	}
	return err
}

// Subscribe registers a channel to receive published values.
func (b *Broker[T]) Subscribe(id string, ch chan<- T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[id]; exists {
		return fmt.Errorf("report: subscriber %s already registered", id)
	}
	b.subs[id] = ch
	return nil
}

// Unsubscribe removes a subscription.
func (b *Broker[T]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[id]; !exists {
		return fmt.Errorf("report: subscriber %s not registered", id)
	}
	delete(b.subs, id)
	return nil
}

// Reset drops all subscriptions.
func (b *Broker[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string]chan<- T)
}
