package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkQueuePushBlocksWhenFull(t *testing.T) {
	q := newWorkQueue(2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := q.Push(ctx); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(ctx) }()

	select {
	case <-pushed:
		t.Fatal("Push returned while queue was full")
	case <-time.After(30 * time.Millisecond):
	}

	if _, ok := q.Pop(ctx, time.Second); !ok {
		t.Fatal("Pop() returned empty on a full queue")
	}
	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("blocked Push error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after Pop")
	}
}

func TestWorkQueuePushCancelled(t *testing.T) {
	q := newWorkQueue(1)
	if err := q.Push(context.Background()); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Push(ctx); err == nil {
		t.Fatal("expected Push to fail once ctx expired")
	}

	// The cancelled push must not count as pending.
	if _, ok := q.Pop(context.Background(), time.Second); !ok {
		t.Fatal("Pop() returned empty")
	}
	q.Ack()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	if err := q.DrainWait(drainCtx); err != nil {
		t.Fatalf("DrainWait() error = %v", err)
	}
}

func TestWorkQueuePopTimeout(t *testing.T) {
	q := newWorkQueue(1)
	start := time.Now()
	if _, ok := q.Pop(context.Background(), 20*time.Millisecond); ok {
		t.Fatal("Pop() on empty queue returned a token")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Pop() returned after %s, before its timeout", elapsed)
	}
}

func TestWorkQueuePopReturnsOnStop(t *testing.T) {
	q := newWorkQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if _, ok := q.Pop(ctx, time.Minute); ok {
		t.Fatal("Pop() returned a token from an empty queue")
	}
	if time.Since(start) > time.Second {
		t.Fatal("Pop() ignored a done context")
	}
}

func TestWorkQueueDrainWaitNeedsAcks(t *testing.T) {
	q := newWorkQueue(4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := q.Push(ctx); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, ok := q.Pop(ctx, time.Second); !ok {
			t.Fatalf("Pop(%d) returned empty", i)
		}
	}

	// Popped but not acked: still pending.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.DrainWait(short); err == nil {
		t.Fatal("DrainWait returned before tokens were acked")
	}

	for i := 0; i < 3; i++ {
		q.Ack()
	}
	if err := q.DrainWait(ctx); err != nil {
		t.Fatalf("DrainWait() error = %v", err)
	}
}

func TestWorkQueueDeliversEachTokenOnce(t *testing.T) {
	const tokens = 500
	q := newWorkQueue(16)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var received atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := q.Pop(ctx, 5*time.Millisecond); !ok {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				received.Add(1)
				q.Ack()
			}
		}()
	}

	for i := 0; i < tokens; i++ {
		if err := q.Push(context.Background()); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}
	if err := q.DrainWait(context.Background()); err != nil {
		t.Fatalf("DrainWait() error = %v", err)
	}
	stop()
	wg.Wait()

	if got := received.Load(); got != tokens {
		t.Fatalf("received = %d, want %d", got, tokens)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d after drain", q.Len())
	}
}
