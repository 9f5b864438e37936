package sandbox

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.starlark.net/starlark"
)

// Guard trip reasons.
const (
	trippedNone int32 = iota
	trippedDeadline
	trippedContext
)

// deadlineGuard bounds one execution unit's wall-clock time. On expiry it
// interrupts the interpreter thread outright; the interrupt is checked by
// the evaluation loop itself, so the snippet cannot opt out of it the way
// it could ignore a cooperative cancellation channel. The guard also trips
// when the caller's context is canceled.
//
// CPU-time pressure is handled separately via the interpreter step ceiling
// (Policy.MaxSteps); the wall clock is authoritative because a snippet can
// stall without consuming CPU at all.
type deadlineGuard struct {
	tripped  atomic.Int32
	timer    *time.Timer
	quit     chan struct{}
	stopOnce sync.Once
}

// enforce arms a guard over thread for the given budget. The caller must
// release the guard on every exit path.
func enforce(ctx context.Context, thread *starlark.Thread, budget time.Duration) *deadlineGuard {
	g := &deadlineGuard{quit: make(chan struct{})}

	g.timer = time.AfterFunc(budget, func() {
		if g.tripped.CompareAndSwap(trippedNone, trippedDeadline) {
			thread.Cancel("wall-clock budget exhausted")
		}
	})

	go func() {
		select {
		case <-ctx.Done():
			if g.tripped.CompareAndSwap(trippedNone, trippedContext) {
				thread.Cancel("canceled by caller")
			}
		case <-g.quit:
		}
	}()

	return g
}

// release disarms the guard. Safe to call more than once.
func (g *deadlineGuard) release() {
	g.stopOnce.Do(func() {
		g.timer.Stop()
		close(g.quit)
	})
}

// timedOut reports whether the wall-clock deadline fired.
func (g *deadlineGuard) timedOut() bool { return g.tripped.Load() == trippedDeadline }

// canceled reports whether the caller's context tripped the guard.
func (g *deadlineGuard) canceled() bool { return g.tripped.Load() == trippedContext }
