package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yhaddad/go-relay/pkg/transport"
	"github.com/yhaddad/go-relay/pkg/wire"
)

func TestPendingRegisterResolveAwait(t *testing.T) {
	table := transport.NewPendingTable()
	require.NoError(t, table.Register(wire.KindHistoryComplete))

	reply := &wire.HistoryComplete{Envelope: wire.Env(wire.KindHistoryComplete), GroupID: 3, Count: 2}
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Tiny delay so Await is blocking when the reply lands.
		time.Sleep(10 * time.Millisecond)
		assert.True(t, table.Resolve(wire.KindHistoryComplete, reply))
	}()

	msg, err := table.Await(context.Background(), wire.KindHistoryComplete, time.Second)
	require.NoError(t, err)
	assert.Same(t, wire.Message(reply), msg)
	<-done
}

// A second registration for the same kind-class must fail fast instead of
// silently replacing the first waiter.
func TestPendingWaiterExclusivity(t *testing.T) {
	table := transport.NewPendingTable()
	require.NoError(t, table.Register(wire.KindOk))
	assert.ErrorIs(t, table.Register(wire.KindOk), transport.ErrWaiterExists)

	// A different class is unaffected.
	require.NoError(t, table.Register(wire.KindError))
}

func TestPendingResolveWithoutWaiter(t *testing.T) {
	table := transport.NewPendingTable()
	assert.False(t, table.Resolve(wire.KindOk, &wire.Ok{Envelope: wire.Env(wire.KindOk)}))
}

func TestPendingAwaitTimeout(t *testing.T) {
	table := transport.NewPendingTable()
	require.NoError(t, table.Register(wire.KindOk))

	_, err := table.Await(context.Background(), wire.KindOk, 20*time.Millisecond)
	assert.ErrorIs(t, err, transport.ErrReplyTimeout)

	// Timeout removed the waiter; the class is free again.
	require.NoError(t, table.Register(wire.KindOk))
}

func TestPendingCancelFreesClass(t *testing.T) {
	table := transport.NewPendingTable()
	require.NoError(t, table.Register(wire.KindOk))
	table.Cancel(wire.KindOk)
	require.NoError(t, table.Register(wire.KindOk))
}

// Teardown must wake every outstanding waiter with a terminal error and
// reject registrations from then on.
func TestPendingFailAll(t *testing.T) {
	table := transport.NewPendingTable()
	require.NoError(t, table.Register(wire.KindOk))
	require.NoError(t, table.Register(wire.KindError))

	okErr := make(chan error, 1)
	go func() {
		_, err := table.Await(context.Background(), wire.KindOk, time.Second)
		okErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	table.FailAll(transport.ErrConnectionClosed)

	select {
	case err := <-okErr:
		assert.ErrorIs(t, err, transport.ErrConnectionClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by FailAll")
	}

	assert.ErrorIs(t, table.Register(wire.KindOk), transport.ErrConnectionClosed)
}
