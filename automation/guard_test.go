package automation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGuardSerializesPerApplication(t *testing.T) {
	g := NewGuard(time.Second)
	var inflight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Do(context.Background(), 42, func(ctx context.Context) error {
				n := atomic.AddInt32(&inflight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inflight, -1)
				return nil
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Fatalf("peak concurrency on one application = %d, want 1", peak)
	}
}

func TestGuardAllowsParallelApplications(t *testing.T) {
	g := NewGuard(time.Second)
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), 1, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	err := g.Do(context.Background(), 2, func(ctx context.Context) error { return nil })
	close(release)
	if err != nil {
		t.Fatalf("call on a different application blocked or failed: %v", err)
	}
}

func TestGuardTimeout(t *testing.T) {
	g := NewGuard(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	err := g.Do(context.Background(), 7, func(ctx context.Context) error {
		<-release
		return nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The slot is still held by the abandoned call.
	err = g.Do(context.Background(), 7, func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout while the slot is held, got %v", err)
	}
}

func TestGuardRecoversPanics(t *testing.T) {
	g := NewGuard(time.Second)
	err := g.Do(context.Background(), 3, func(ctx context.Context) error {
		panic("boom")
	})
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if pe.Value != "boom" || len(pe.Stack) == 0 {
		t.Errorf("unexpected panic error %+v", pe)
	}
	if err := g.Do(context.Background(), 3, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("slot not released after panic: %v", err)
	}
}

func TestGuardUnscopedIsNotSerialized(t *testing.T) {
	g := NewGuard(time.Second)
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), Unscoped, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)
	if err := g.Do(context.Background(), Unscoped, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("unscoped call: %v", err)
	}
}
