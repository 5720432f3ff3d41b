package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is the single terminal result of a dispatched call. Err is nil on
// success, a *CommandError when the worker reported an application failure,
// or ErrDispatchTimeout / ErrWorkerGone / context.Canceled for connectivity
// and abandonment paths.
type Outcome struct {
	Payload json.RawMessage
	Err     error
}

// PendingCall is one in-flight call. Its outcome is assigned exactly once;
// whichever of resolve, timeout, or abandonment runs first wins and the
// others are dropped.
type PendingCall struct {
	ID        string
	CreatedAt time.Time
	Deadline  time.Time

	timer *time.Timer

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

// Wait blocks until the call reaches its terminal outcome or ctx ends. When
// ctx ends first the entry is removed eagerly so an abandoned caller does not
// hold table memory until the deadline.
func (c *PendingCall) Wait(ctx context.Context, table *CallTable) Outcome {
	select {
	case <-c.done:
		return c.outcome
	case <-ctx.Done():
		table.Abandon(c.ID)
		return Outcome{Err: ctx.Err()}
	}
}

func (c *PendingCall) fulfill(outcome Outcome) {
	c.once.Do(func() {
		c.outcome = outcome
		close(c.done)
	})
}

// CallTable tracks in-flight calls by generated call id. Entries are removed
// on every terminal path; nothing accumulates.
type CallTable struct {
	mu      sync.Mutex
	calls   map[string]*PendingCall
	newIDFn func() string
	nowFn   func() time.Time
}

func NewCallTable() *CallTable {
	return &CallTable{
		calls:   make(map[string]*PendingCall),
		newIDFn: uuid.NewString,
		nowFn:   time.Now,
	}
}

// Begin allocates a unique call id with a deadline. The returned call's id is
// attached to the outgoing frame; the caller then blocks on Wait.
func (t *CallTable) Begin(timeout time.Duration) *PendingCall {
	now := t.nowFn()
	call := &PendingCall{
		ID:        t.newIDFn(),
		CreatedAt: now,
		Deadline:  now.Add(timeout),
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	t.calls[call.ID] = call
	t.mu.Unlock()

	call.timer = time.AfterFunc(timeout, func() {
		t.expire(call.ID)
	})
	return call
}

// Resolve fulfills a pending call and removes it. A call id that is unknown,
// already resolved, or expired returns false and the resolution is dropped;
// first resolution wins, so a late duplicate response can never corrupt a
// completed call.
func (t *CallTable) Resolve(callID string, outcome Outcome) bool {
	call, ok := t.take(callID)
	if !ok {
		return false
	}
	call.timer.Stop()
	call.fulfill(outcome)
	return true
}

// Abandon removes a call whose awaiting caller disappeared. A response that
// later arrives for this id is dropped as unknown.
func (t *CallTable) Abandon(callID string) {
	call, ok := t.take(callID)
	if !ok {
		return
	}
	call.timer.Stop()
	call.fulfill(Outcome{Err: context.Canceled})
}

// Len reports the number of in-flight calls, for diagnostics.
func (t *CallTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *CallTable) expire(callID string) {
	call, ok := t.take(callID)
	if !ok {
		return
	}
	call.fulfill(Outcome{Err: ErrDispatchTimeout})
}

// take removes and returns the call. Removal under the lock is what makes
// resolution exactly-once: only one of resolve, expire, or abandon can win.
func (t *CallTable) take(callID string) (*PendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.calls[callID]
	if !ok {
		return nil, false
	}
	delete(t.calls, callID)
	return call, true
}
