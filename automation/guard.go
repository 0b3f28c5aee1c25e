package automation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Unscoped is the pid passed to Guard.Do for calls that do not target a
// single application instance. They are deadline-bounded but not serialized.
const Unscoped = 0

// Guard serializes calls per application instance and bounds each call with
// a deadline.
//
// At most one call per pid is in flight. Calls for different pids run in
// parallel. When the deadline passes, Do returns ErrTimeout but the call keeps
// running in the background and the pid stays held until it returns; the host
// is not assumed to support cancellation.
type Guard struct {
	timeout time.Duration

	mu    sync.Mutex
	slots map[int]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

// PanicError carries a panic recovered from a guarded call.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewGuard returns a Guard applying timeout to every call. A zero timeout
// leaves only the caller's context deadline in effect.
func NewGuard(timeout time.Duration) *Guard {
	return &Guard{timeout: timeout, slots: make(map[int]*slot)}
}

// Timeout reports the per-call deadline.
func (g *Guard) Timeout() time.Duration {
	if g == nil {
		return 0
	}
	return g.timeout
}

// Do runs fn holding the exclusive slot for pid.
func (g *Guard) Do(ctx context.Context, pid int, fn func(ctx context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var s *slot
	if pid != Unscoped {
		s = g.acquire(pid)
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			g.release(pid)
			return deadlineError(ctx, pid)
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r, Stack: debug.Stack()}
			}
			if s != nil {
				<-s.sem
				g.release(pid)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return deadlineError(ctx, pid)
	}
}

func (g *Guard) acquire(pid int) *slot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.slots[pid]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		g.slots[pid] = s
	}
	s.refs++
	return s
}

func (g *Guard) release(pid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.slots[pid]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(g.slots, pid)
	}
}

func deadlineError(ctx context.Context, pid int) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		if pid == Unscoped {
			return fmt.Errorf("automation call: %w", ErrTimeout)
		}
		return fmt.Errorf("automation call on application %d: %w", pid, ErrTimeout)
	}
	return err
}
