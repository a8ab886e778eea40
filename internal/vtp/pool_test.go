package vtp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHostPort_OneToMany(t *testing.T) {
	t.Parallel()

	eps, err := ValidateHostPort([]string{"a.example.org"}, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{
		{Host: "a.example.org", Port: 1},
		{Host: "a.example.org", Port: 2},
		{Host: "a.example.org", Port: 3},
	}, eps)
}

func TestValidateHostPort_ManyToOne(t *testing.T) {
	t.Parallel()

	eps, err := ValidateHostPort([]string{"a.example.org", "b.example.org"}, []int{8099})
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{
		{Host: "a.example.org", Port: 8099},
		{Host: "b.example.org", Port: 8099},
	}, eps)
}

func TestValidateHostPort_MismatchedLengths(t *testing.T) {
	t.Parallel()

	_, err := ValidateHostPort([]string{"a", "b"}, []int{1, 2, 3})
	assert.Error(t, err)
}

func TestValidateHostPort_Empty(t *testing.T) {
	t.Parallel()

	_, err := ValidateHostPort(nil, []int{8099})
	assert.Error(t, err)

	_, err = ValidateHostPort([]string{"a"}, nil)
	assert.Error(t, err)
}

func TestPool_NextConnected_RetriesWithBackoffThenSucceeds(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := lis.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	// Bind a second listener, then close it immediately so dialing it
	// fails with connection refused, forcing at least one backoff cycle.
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().(*net.TCPAddr)
	dead.Close()

	goodAddr := lis.Addr().(*net.TCPAddr)

	clock := clockwork.NewFakeClock()
	pool, err := NewPool([]Endpoint{
		{Host: "127.0.0.1", Port: deadAddr.Port},
		{Host: "127.0.0.1", Port: goodAddr.Port},
	}, PoolConfig{
		Clock:           clock,
		IamaliveTimeout: time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resultCh := make(chan net.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := pool.NextConnected(ctx)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- conn
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	select {
	case conn := <-resultCh:
		require.NotNil(t, conn)
		conn.Close()
	case err := <-errCh:
		t.Fatalf("NextConnected returned error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection")
	}

	select {
	case conn := <-accepted:
		conn.Close()
	case <-time.After(time.Second):
		t.Fatal("listener never accepted a connection")
	}
}

func TestPool_NextConnected_ContextCancelled(t *testing.T) {
	t.Parallel()

	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().(*net.TCPAddr)
	dead.Close()

	clock := clockwork.NewFakeClock()
	pool, err := NewPool([]Endpoint{{Host: "127.0.0.1", Port: deadAddr.Port}}, PoolConfig{
		Clock:           clock,
		IamaliveTimeout: time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := pool.NextConnected(ctx)
		errCh <- err
	}()

	clock.BlockUntil(1)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}
