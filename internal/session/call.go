package session

import (
	"context"
	"sync/atomic"
)

// Outcome is the successful resolution of a start request.
type Outcome struct {
	// Acknowledged is set when the call resolved on engine start rather than
	// on a final transcript (partial-results mode).
	Acknowledged bool
	Matches      ResultSet
}

// Call is the caller's in-flight start request. It settles exactly once.
type Call struct {
	sessionID string
	settled   atomic.Bool
	done    chan struct{}

	outcome Outcome
	err     error
}

func newCall(sessionID string) *Call {
	return &Call{sessionID: sessionID, done: make(chan struct{})}
}

// SessionID names the session this call belongs to.
func (c *Call) SessionID() string {
	return c.sessionID
}

// resolve settles the call successfully. It reports false when the call was
// already settled.
func (c *Call) resolve(outcome Outcome) bool {
	if !c.settled.CompareAndSwap(false, true) {
		return false
	}
	c.outcome = outcome
	close(c.done)
	return true
}

// fail settles the call with err. It reports false when the call was already
// settled.
func (c *Call) fail(err error) bool {
	if !c.settled.CompareAndSwap(false, true) {
		return false
	}
	c.err = err
	close(c.done)
	return true
}

// Done is closed once the call settles.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Settled reports whether the call has been resolved or failed.
func (c *Call) Settled() bool {
	return c.settled.Load()
}

// Wait blocks until the call settles or ctx is done. A settled call always
// reports its result, even when ctx is already done.
func (c *Call) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.outcome, c.err
	default:
	}

	select {
	case <-c.done:
		return c.outcome, c.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
