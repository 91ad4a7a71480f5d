package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubscribeSeesOnlyFutureChunks(t *testing.T) {
	b := NewBus(4)
	b.Publish([]byte("before"))

	sub := b.Subscribe()
	b.Publish([]byte("after"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	chunk, lagged, closed, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed {
		t.Fatalf("bus reported closed")
	}
	if lagged != 0 {
		t.Fatalf("expected no lag, got %d", lagged)
	}
	if string(chunk) != "after" {
		t.Fatalf("expected 'after', got %q", chunk)
	}
}

func TestLaggedSubscriberIsFastForwarded(t *testing.T) {
	b := NewBus(2)
	sub := b.Subscribe()

	b.Publish([]byte("a"))
	b.Publish([]byte("b"))
	b.Publish([]byte("c")) // overwrites "a"

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	chunk, lagged, closed, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed {
		t.Fatalf("bus reported closed")
	}
	if lagged != 1 {
		t.Fatalf("expected lagged=1, got %d", lagged)
	}
	if chunk != nil {
		t.Fatalf("expected nil chunk on a lag report, got %v", chunk)
	}

	chunk, lagged, closed, err = sub.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed || lagged != 0 {
		t.Fatalf("expected clean resumption, got lagged=%d closed=%v", lagged, closed)
	}
	if string(chunk) != "b" {
		t.Fatalf("expected to resume at oldest buffered chunk 'b', got %q", chunk)
	}
}

func TestCloseWakesBlockedSubscribers(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var closedSeen bool
	var err error
	go func() {
		_, _, closedSeen, err = sub.Next(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber did not wake on close")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closedSeen {
		t.Fatalf("expected closed=true")
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := NewBus(4)
	b.Close()
	b.Publish([]byte("ignored")) // must not panic or deadlock

	sub := b.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, closed, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closed {
		t.Fatalf("expected closed=true")
	}
}

func TestContextCancellationUnblocksNext(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, _, err := sub.Next(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock on context cancellation")
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBus(16)
	const subscribers = 8
	const chunks = 200

	var wg sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < subscribers; i++ {
		sub := b.Subscribe()
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			for {
				_, _, closed, err := sub.Next(ctx)
				if err != nil || closed {
					return
				}
			}
		}(sub)
	}

	for i := 0; i < chunks; i++ {
		b.Publish([]byte{byte(i)})
	}
	b.Close()

	wg.Wait()
}
