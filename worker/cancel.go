package worker

import (
	"context"
	"sync/atomic"
	"time"
)

// CancelController carries the cancellation signal for one running job.
// Cancellation is cooperative, not preemptive: RequestCancel cancels the
// job's context, and the handler must observe it. A handler that never
// checks the context runs to natural completion.
//
// When the job has a timeout, the controller requests cancellation
// automatically once the deadline elapses. It acts as a deadline, not a
// hard kill.
type CancelController struct {
	cancel    context.CancelFunc
	requested atomic.Bool
	timer     *time.Timer
}

// NewCancelController derives the job's run context from parent and
// returns the controller owning its cancellation. A positive timeout
// arms the automatic deadline.
func NewCancelController(parent context.Context, timeout time.Duration) (context.Context, *CancelController) {
	ctx, cancel := context.WithCancel(parent)
	c := &CancelController{cancel: cancel}
	if timeout > 0 {
		c.timer = time.AfterFunc(timeout, c.RequestCancel)
	}
	return ctx, c
}

// RequestCancel flips the cancellation signal. Safe to call multiple
// times and from any goroutine.
func (c *CancelController) RequestCancel() {
	c.requested.Store(true)
	c.cancel()
}

// Requested reports whether cancellation has been requested, whether by
// a caller or by the deadline timer.
func (c *CancelController) Requested() bool {
	return c.requested.Load()
}

// Release stops the deadline timer and cancels the context without
// marking the job as cancel-requested. Called once the job reaches a
// terminal state.
func (c *CancelController) Release() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.cancel()
}
