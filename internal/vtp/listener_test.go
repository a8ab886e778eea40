package vtp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListen_AcksVOEventThenStopsOnCancel(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		conn, err := lis.Accept()
		if err == nil {
			serverConnCh <- conn
		}
	}()

	addr := lis.Addr().(*net.TCPAddr)

	received := make(chan string, 1)
	handler := func(payload []byte, root *etree.Element) {
		received <- root.SelectAttrValue("ivorn", "")
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- Listen(ctx, ListenerConfig{
			Endpoints:       []Endpoint{{Host: "127.0.0.1", Port: addr.Port}},
			IamaliveTimeout: time.Second,
			Clock:           clockwork.NewFakeClockAt(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)),
			Handler:         handler,
		})
	}()

	var serverConn net.Conn
	select {
	case serverConn = <-serverConnCh:
	case <-time.After(5 * time.Second):
		t.Fatal("listener never connected")
	}
	defer serverConn.Close()

	payload := []byte(`<voe:VOEvent ivorn="ivo://example/event#1" xmlns:voe="http://www.ivoa.net/xml/VOEvent/v2.0"><What/></voe:VOEvent>`)
	require.NoError(t, WriteFrame(serverConn, payload))

	select {
	case ivorn := <-received:
		assert.Equal(t, "ivo://example/event#1", ivorn)
	case <-time.After(5 * time.Second):
		t.Fatal("handler was never invoked")
	}

	resp, err := ReadFrame(serverConn, time.Second, 0)
	require.NoError(t, err)
	assert.Contains(t, string(resp), `role="ack"`)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after cancellation")
	}
}

func TestListen_RequiresAtLeastOneEndpoint(t *testing.T) {
	t.Parallel()

	err := Listen(context.Background(), ListenerConfig{})
	assert.Error(t, err)
}
