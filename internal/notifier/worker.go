package notifier

import (
	"context"
	"time"

	"trainbot/internal/transport"
)

// call is a unit of work submitted to the worker goroutine.
// res is buffered so a caller that timed out never blocks the worker.
type call struct {
	fn  func(ctx context.Context) (any, error)
	res chan callResult
}

type callResult struct {
	v   any
	err error
}

// run is the worker loop. It owns sess for its entire lifetime and executes
// submitted closures one at a time until ctx is cancelled.
func (c *Client) run(ctx context.Context, sess transport.Session, calls <-chan call, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case cl := <-calls:
			v, err := cl.fn(ctx)
			cl.res <- callResult{v: v, err: err}
		}
	}
}

// submit hands fn to the worker and blocks until its result, the worker's
// exit, or the timeout. It is the single cross-goroutine primitive here.
func submit(calls chan<- call, done <-chan struct{}, timeout time.Duration, fn func(ctx context.Context) (any, error)) (any, error) {
	if calls == nil {
		return nil, ErrStopped
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	cl := call{fn: fn, res: make(chan callResult, 1)}
	select {
	case calls <- cl:
	case <-done:
		return nil, ErrStopped
	case <-timer.C:
		return nil, context.DeadlineExceeded
	}

	select {
	case r := <-cl.res:
		return r.v, r.err
	case <-done:
		return nil, ErrStopped
	case <-timer.C:
		// The closure keeps running on the worker; its result is dropped.
		return nil, context.DeadlineExceeded
	}
}

// do submits against the client's current worker (if any).
func (c *Client) do(timeout time.Duration, fn func(ctx context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	calls, done := c.calls, c.done
	c.mu.Unlock()
	if calls == nil {
		return nil, ErrStopped
	}
	return submit(calls, done, timeout, fn)
}
