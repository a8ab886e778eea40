// Package replay implements the VTP test server (C8): a minimal,
// single-connection-at-a-time server that replays a fixed list of VOEvent
// payloads, framed per the wire protocol, to exercise a client end-to-end.
package replay

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/nasa-gcn/pygcn/internal/vtp"
)

// Config configures a replay Server.
type Config struct {
	Logger *slog.Logger

	// Payloads is the fixed, non-empty list of frame payloads replayed
	// in order, cyclically, to each connecting client.
	Payloads [][]byte

	// RetransmitTimeout is the pause between successive payloads on a
	// connection.
	RetransmitTimeout time.Duration

	// MaxAccepts bounds how many connections Serve accepts before
	// returning, strictly as a testing override (spec §9's Open
	// Question): 0 means loop forever, the production default.
	MaxAccepts int
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.RetransmitTimeout <= 0 {
		c.RetransmitTimeout = time.Second
	}
}

// Server is a rudimentary VTP server for testing purposes. It serves one
// connection at a time and replays the same payloads, in order, cyclically,
// for each connection it accepts. State machine: Bound -> Accepting ->
// Serving[conn] -> Accepting | Closed.
type Server struct {
	log        *slog.Logger
	payloads   [][]byte
	interval   time.Duration
	maxAccepts int
}

// New constructs a Server. cfg.Payloads must be non-empty.
func New(cfg Config) (*Server, error) {
	if len(cfg.Payloads) == 0 {
		return nil, errors.New("replay: at least one payload is required")
	}
	cfg.setDefaults()

	return &Server{
		log:        cfg.Logger,
		payloads:   cfg.Payloads,
		interval:   cfg.RetransmitTimeout,
		maxAccepts: cfg.MaxAccepts,
	}, nil
}

// ListenAndServe binds addr and serves forever, or until MaxAccepts
// connections have been handled. The reference implementation passes a
// listen backlog of 0 to refuse extra connection attempts at the kernel
// level while one client is being served; net.Listen doesn't expose
// backlog control, so the same one-at-a-time behavior is enforced in
// Serve's accept loop instead (no Accept call is outstanding while a
// connection is being served).
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("replay: bind %s: %w", addr, err)
	}
	defer lis.Close()
	s.log.Info("bound", "address", lis.Addr().String())

	return s.Serve(lis)
}

// Serve accepts connections from lis, one at a time, replaying the
// configured payloads on each until the peer disconnects or a transport
// error occurs, then accepts again.
func (s *Server) Serve(lis net.Listener) error {
	for i := 0; s.maxAccepts <= 0 || i < s.maxAccepts; i++ {
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("replay: accept: %w", err)
		}
		s.log.Info("client connected", "peer", conn.RemoteAddr())
		s.serveConn(conn)
	}
	return nil
}

// serveConn replays payloads cyclically on conn until a write fails, then
// tears the connection down, preparing it for a prompt RST via SO_LINGER
// the way original_source/gcn/voeventclient.py's serve() does, so the
// client observes closure promptly rather than waiting on a graceful
// FIN/ACK exchange.
func (s *Server) serveConn(conn net.Conn) {
	defer s.closeConn(conn)

	i := 0
	for {
		if err := vtp.WriteFrame(conn, s.payloads[i]); err != nil {
			s.log.Error("error communicating with peer", "error", err)
			return
		}
		i = (i + 1) % len(s.payloads)
		time.Sleep(s.interval)
	}
}

func (s *Server) closeConn(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetLinger(0); err != nil {
			s.log.Error("could not prepare to reset socket", "error", err)
		} else {
			s.log.Info("prepared to reset socket")
		}
	}
	if err := conn.Close(); err != nil {
		s.log.Error("could not close socket", "error", err)
		return
	}
	s.log.Info("closed socket")
}
