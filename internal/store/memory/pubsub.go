// Package memory is the in-process counterpart of the Redis pub/sub, used
// when a single server instance runs without Redis.
package memory

import (
	"context"
	"sync"
)

// subscriberBuffer matches the Redis subscriber queue depth.
const subscriberBuffer = 64

type subscriber struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// PubSub delivers payloads to subscribers of the same channel. Publish never
// blocks: a subscriber whose queue is full misses the payload.
type PubSub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

func New() *PubSub {
	return &PubSub{subs: make(map[string]map[*subscriber]struct{})}
}

func (ps *PubSub) Publish(_ context.Context, channel string, payload []byte) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for sub := range ps.subs[channel] {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe streams payloads published on channel until ctx is done or the
// returned cleanup func is called. The stream is closed in both cases.
func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := &subscriber{
		ch:   make(chan []byte, subscriberBuffer),
		done: make(chan struct{}),
	}

	ps.mu.Lock()
	if ps.subs[channel] == nil {
		ps.subs[channel] = make(map[*subscriber]struct{})
	}
	ps.subs[channel][sub] = struct{}{}
	ps.mu.Unlock()

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			case msg := <-sub.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				case <-sub.done:
					return
				}
			}
		}
	}()

	cleanup := func() {
		ps.mu.Lock()
		if subs, ok := ps.subs[channel]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(ps.subs, channel)
			}
		}
		ps.mu.Unlock()
		sub.stop()
	}

	context.AfterFunc(ctx, cleanup)

	return out, cleanup, nil
}

// Ping always succeeds.
func (ps *PubSub) Ping(context.Context) error { return nil }

// Close drops every subscriber.
func (ps *PubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for channel, subs := range ps.subs {
		for sub := range subs {
			sub.stop()
		}
		delete(ps.subs, channel)
	}
	return nil
}

// Subscribers returns the number of live subscribers on channel.
func (ps *PubSub) Subscribers(channel string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subs[channel])
}
