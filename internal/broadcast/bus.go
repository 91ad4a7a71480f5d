// Package broadcast implements a bounded, lag-tolerant fan-out channel: one
// publisher feeds a fixed-size ring buffer, and any number of subscribers
// read from it at their own pace. A subscriber that falls more than the
// ring's capacity behind the publisher is not blocked and does not block the
// publisher; it is told how many chunks it missed and resumes from the
// oldest chunk still buffered.
//
// Go has no standard-library equivalent of this (the source system this
// proxy emulates used a language runtime's broadcast channel primitive); the
// ring-buffer-plus-cursor shape here is the idiomatic Go translation of that
// behavior.
package broadcast

import (
	"context"
	"sync"
)

// Bus is a single-producer, multi-consumer fan-out of byte chunks.
type Bus struct {
	mu     sync.Mutex
	ring   [][]byte
	seq    uint64
	closed bool
	notify chan struct{}
}

// NewBus creates a bus backed by a ring of the given capacity. Capacity must
// be at least 1.
func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{
		ring:   make([][]byte, capacity),
		notify: make(chan struct{}),
	}
}

// wake closes the current notify channel (waking every blocked subscriber)
// and installs a fresh one. Callers must hold mu.
func (b *Bus) wake() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// Publish appends chunk to the ring and wakes subscribers. If the bus is
// already closed, Publish is a silent no-op. Publishing with zero
// subscribers is harmless: the chunk is simply not read by anyone.
func (b *Bus) Publish(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.ring[b.seq%uint64(len(b.ring))] = chunk
	b.seq++
	b.wake()
}

// Close marks the bus closed and wakes every subscriber so they can observe
// end-of-stream. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.wake()
}

// Subscription is a read cursor into a Bus's ring buffer.
type Subscription struct {
	bus  *Bus
	next uint64
}

// Subscribe returns a cursor positioned at the bus's current write position;
// it sees only chunks published after this call.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Subscription{bus: b, next: b.seq}
}

// Next blocks until a chunk is available, the subscriber has lagged past the
// ring's capacity, the bus closes, or ctx is done.
//
// Exactly one of the following holds on return with a nil error:
//   - chunk is non-nil: the next chunk in publication order.
//   - lagged > 0: the subscriber fell behind by this many chunks; its cursor
//     has been fast-forwarded to the oldest chunk still buffered, and the
//     caller should log and call Next again.
//   - closed is true: the bus has been closed; no more chunks will arrive.
func (s *Subscription) Next(ctx context.Context) (chunk []byte, lagged uint64, closed bool, err error) {
	for {
		s.bus.mu.Lock()
		capacity := uint64(len(s.bus.ring))
		var oldest uint64
		if s.bus.seq > capacity {
			oldest = s.bus.seq - capacity
		}
		switch {
		case s.next < oldest:
			skipped := oldest - s.next
			s.next = oldest
			s.bus.mu.Unlock()
			return nil, skipped, false, nil
		case s.next < s.bus.seq:
			c := s.bus.ring[s.next%capacity]
			s.next++
			s.bus.mu.Unlock()
			return c, 0, false, nil
		case s.bus.closed:
			s.bus.mu.Unlock()
			return nil, 0, true, nil
		}
		waitCh := s.bus.notify
		s.bus.mu.Unlock()

		select {
		case <-waitCh:
			continue
		case <-ctx.Done():
			return nil, 0, false, ctx.Err()
		}
	}
}
