package vtp

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"
)

// Handler processes one dispatched VOEvent: the raw payload bytes and the
// parsed XML root. Defined here (rather than in internal/handlers) so that
// package handlers can depend on vtp for it and for GetNoticeType without
// creating an import cycle.
type Handler func(payload []byte, root *etree.Element)

// ConnConfig configures one pass of the connection loop (C5).
type ConnConfig struct {
	Logger          *slog.Logger
	Clock           clockwork.Clock
	IVORN           string
	IamaliveTimeout time.Duration
	MaxFrameLength  int
	Metrics         *Metrics

	// Handler is invoked once per accepted VOEvent, after the ack
	// response has been sent. It may be nil, in which case VOEvents are
	// acknowledged but otherwise ignored.
	Handler Handler
}

// runConnection repeatedly reads, classifies, responds to, and dispatches
// frames on conn until a timeout, parse error, or transport error occurs,
// at which point it returns that error for the caller (the supervisor, C6)
// to treat as a signal to reconnect. It never returns nil: the only way
// out of this loop is an error.
func runConnection(conn net.Conn, cfg ConnConfig) error {
	for {
		payload, err := ReadFrame(conn, cfg.IamaliveTimeout, cfg.MaxFrameLength)
		if err != nil {
			return err
		}
		cfg.Metrics.framesReceived.Inc()
		cfg.Logger.Debug("received frame", "bytes", len(payload))

		msg, root, err := Classify(cfg.Logger, payload)
		if err != nil {
			cfg.Metrics.parseErrors.Inc()
			return err
		}

		switch msg.Kind {
		case KindTransportIamalive:
			resp := formIamalive(cfg.Clock, msg.Origin, cfg.IVORN)
			if err := WriteFrame(conn, resp); err != nil {
				return err
			}
			cfg.Metrics.framesSent.Inc()
			cfg.Logger.Debug("sent iamalive response")

		case KindVOEvent:
			resp := formAck(cfg.Clock, msg.IVORN, cfg.IVORN)
			if err := WriteFrame(conn, resp); err != nil {
				return err
			}
			cfg.Metrics.framesSent.Inc()
			cfg.Logger.Info("received VOEvent", "ivorn", msg.IVORN)

			if cfg.Handler != nil {
				dispatchSafely(cfg.Logger, cfg.Handler, payload, root)
			}
			cfg.Metrics.voeventsDispatched.Inc()

		default:
			// Transport/other, VOEvent-without-ivorn, and Unknown all
			// fall here: no reply, no dispatch, connection continues.
		}
	}
}

// dispatchSafely invokes handler and recovers from any panic, matching
// spec §4.5/§7's requirement that handler errors are logged and swallowed,
// never killing the connection. A panicking handler is this codebase's
// closest analog to original_source's bare "except:" around handler(...).
func dispatchSafely(log *slog.Logger, handler Handler, payload []byte, root *etree.Element) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic in payload handler", "panic", r)
		}
	}()
	handler(payload, root)
}

// isRecoverable reports whether err is one of the expected connection-loop
// errors (frame, parse, or network errors). The supervisor reconnects
// after any error; this only decides how the error is logged.
func isRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFrameClosed) || errors.Is(err, ErrFrameTimeout) ||
		errors.Is(err, ErrEmptyFrame) || errors.Is(err, ErrFrameTooLarge) {
		return true
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
