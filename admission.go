package connpool

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// admission bounds the number of in-use connections of one address. It sits
// in front of the bucket scan and is only consulted by AcquireDirect and
// whoever takes a connection out of the in-use state. A nil admission admits
// everything.
type admission struct {
	sem *semaphore.Weighted
}

func newAdmission(limit int) *admission {
	if limit <= 0 {
		return nil
	}
	return &admission{sem: semaphore.NewWeighted(int64(limit))}
}

// acquire takes one slot, waiting at most timeout. A zero timeout never waits.
// Once ctx is done, which happens when the pool closes, it fails with ErrClosed.
func (a *admission) acquire(ctx context.Context, timeout time.Duration) error {
	if a == nil {
		return nil
	}
	if timeout <= 0 {
		if a.sem.TryAcquire(1) {
			return nil
		}
		return exhausted(ctx)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.sem.Acquire(waitCtx, 1); err != nil {
		return exhausted(ctx)
	}
	return nil
}

func exhausted(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrClosed
	}
	return ErrPoolExhausted
}

func (a *admission) release(n int) {
	if a == nil || n <= 0 {
		return
	}
	a.sem.Release(int64(n))
}
