package vtp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// ListenerConfig configures Listen (C6).
type ListenerConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// Endpoints is the (possibly repeating) set of VTP servers to cycle
	// through. Build it with ValidateHostPort.
	Endpoints []Endpoint

	// IVORN identifies this client in ack/iamalive responses.
	IVORN string

	// IamaliveTimeout doubles as the connect timeout and the per-read
	// liveness timeout: no bytes within this long means "peer is dead".
	IamaliveTimeout time.Duration

	// MaxReconnectTimeout caps the endpoint pool's exponential backoff.
	MaxReconnectTimeout time.Duration

	// MaxFrameLength caps an accepted frame's declared length. <= 0 uses
	// DefaultMaxFrameLength.
	MaxFrameLength int

	// Handler is invoked once per accepted VOEvent. May be nil.
	Handler Handler

	// Registerer is where Prometheus metrics (C9) are registered. May be
	// nil to disable metrics collection.
	Registerer prometheus.Registerer
}

func (c *ListenerConfig) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.IVORN == "" {
		c.IVORN = "ivo://python_voeventclient/anonymous"
	}
	if c.IamaliveTimeout <= 0 {
		c.IamaliveTimeout = 150 * time.Second
	}
	if c.MaxReconnectTimeout <= 0 {
		c.MaxReconnectTimeout = 1024 * time.Second
	}
}

// Listen connects to one of cfg.Endpoints, performs VTP framing and
// keep-alive handshaking, dispatches VOEvents to cfg.Handler, and
// transparently reconnects (with exponential backoff across the endpoint
// pool) on any network fault, parse error, or liveness timeout (C6).
//
// Apart from returning an error when cfg has no endpoints, Listen returns
// only when ctx is cancelled — it is the Go analog of
// original_source/gcn/voeventclient.py's listen(), whose docstring notes
// "this function does not return" outside of a keyboard interrupt/signal.
// Cancelling ctx closes the active connection, which ends the connection
// loop (interrupting a frame read in progress); cancellation is also
// checked before each reconnect attempt and interrupts the backoff wait.
func Listen(ctx context.Context, cfg ListenerConfig) error {
	cfg.setDefaults()
	metrics := NewMetrics(cfg.Registerer)

	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		return errors.New("vtp: at least one endpoint is required")
	}

	pool, err := NewPool(endpoints, PoolConfig{
		Logger:              cfg.Logger,
		Clock:               cfg.Clock,
		IamaliveTimeout:     cfg.IamaliveTimeout,
		MaxReconnectTimeout: cfg.MaxReconnectTimeout,
		Metrics:             metrics,
	})
	if err != nil {
		return err
	}

	connCfg := ConnConfig{
		Logger:          cfg.Logger,
		Clock:           cfg.Clock,
		IVORN:           cfg.IVORN,
		IamaliveTimeout: cfg.IamaliveTimeout,
		MaxFrameLength:  cfg.MaxFrameLength,
		Metrics:         metrics,
		Handler:         cfg.Handler,
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := pool.NextConnected(ctx)
		if err != nil {
			return nil // context cancelled while (re)connecting
		}

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		err = runConnection(conn, connCfg)
		stop()
		switch {
		case ctx.Err() != nil:
			cfg.Logger.Info("context cancelled, closing connection")
		case errors.Is(err, ErrFrameTimeout):
			cfg.Logger.Warn("timed out, will reconnect")
		case isRecoverable(err):
			cfg.Logger.Error("connection error, will reconnect", "error", err)
		default:
			cfg.Logger.Error("unexpected connection error, will reconnect", "error", err)
		}

		closeConn(cfg.Logger, conn)
	}
}

// closeConn shuts down and closes conn, logging (but not propagating) any
// error from either step — matching original_source's separately-guarded
// shutdown/close finally block.
func closeConn(log *slog.Logger, conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseRead(); err != nil {
			log.Debug("could not shut down read side of socket", "error", err)
		}
	}
	if err := conn.Close(); err != nil {
		log.Debug("could not close socket", "error", err)
		return
	}
	log.Debug("closed socket")
}
