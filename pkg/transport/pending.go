package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yhaddad/go-relay/pkg/wire"
)

var (
	// ErrWaiterExists means a waiter for the same kind-class is already
	// outstanding. The second caller must fail fast, never silently replace
	// the first waiter.
	ErrWaiterExists = errors.New("a pending waiter for this kind-class already exists")
	ErrReplyTimeout = errors.New("timed out waiting for reply")
)

type pendingResult struct {
	msg wire.Message
	err error
}

// PendingTable correlates asynchronously-arriving replies with the in-flight
// request that expects them, keyed by kind-class. At most one waiter per
// class at a time.
type PendingTable struct {
	mu      sync.Mutex
	waiters map[string]chan pendingResult
	failed  error
}

func NewPendingTable() *PendingTable {
	return &PendingTable{
		waiters: make(map[string]chan pendingResult),
	}
}

// Register installs a waiter for the given kind-class.
func (t *PendingTable) Register(class string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failed != nil {
		return t.failed
	}
	if _, exists := t.waiters[class]; exists {
		return ErrWaiterExists
	}
	t.waiters[class] = make(chan pendingResult, 1)
	return nil
}

// Resolve delivers a reply to the waiter for its kind-class, if any.
// Returns true when a waiter consumed the message.
func (t *PendingTable) Resolve(class string, msg wire.Message) bool {
	t.mu.Lock()
	ch, ok := t.waiters[class]
	if ok {
		delete(t.waiters, class)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	// Buffered channel, never blocks.
	ch <- pendingResult{msg: msg}
	return true
}

// Cancel removes a waiter without resolving it.
func (t *PendingTable) Cancel(class string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.waiters, class)
}

// Await blocks until the waiter registered for class resolves, the timeout
// fires, or the context is cancelled. The waiter is always removed on exit.
func (t *PendingTable) Await(ctx context.Context, class string, timeout time.Duration) (wire.Message, error) {
	t.mu.Lock()
	ch, ok := t.waiters[class]
	t.mu.Unlock()
	if !ok {
		return nil, errors.New("no waiter registered for class " + class)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.msg, res.err
	case <-timer.C:
		t.Cancel(class)
		return nil, ErrReplyTimeout
	case <-ctx.Done():
		t.Cancel(class)
		return nil, ErrConnectionClosed
	}
}

// FailAll resolves every outstanding waiter with a terminal error and makes
// further registrations fail. Called during connection teardown so no caller
// hangs on a destroyed connection.
func (t *PendingTable) FailAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failed = err
	for class, ch := range t.waiters {
		ch <- pendingResult{err: err}
		delete(t.waiters, class)
	}
}
