package vtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// Endpoint is an unordered (host, port) pair the client can connect to.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, fmt.Sprintf("%d", e.Port))
}

// ValidateHostPort applies the equal-length-broadcasting rule of spec §3:
// if one of (hosts, ports) has length 1 and the other length N>=1, the
// short side is broadcast to length N; otherwise the lengths must match.
// It mirrors original_source/gcn/voeventclient.py's _validate_host_port;
// a single host or port is passed as a one-element slice.
func ValidateHostPort(hosts []string, ports []int) ([]Endpoint, error) {
	if len(hosts) == 0 {
		return nil, errors.New("vtp: at least one host is required")
	}
	if len(ports) == 0 {
		return nil, errors.New("vtp: at least one port is required")
	}

	switch {
	case len(hosts) == 1 && len(ports) > 1:
		h := hosts[0]
		hosts = make([]string, len(ports))
		for i := range hosts {
			hosts[i] = h
		}
	case len(ports) == 1 && len(hosts) > 1:
		p := ports[0]
		ports = make([]int, len(hosts))
		for i := range ports {
			ports[i] = p
		}
	case len(hosts) != len(ports):
		return nil, fmt.Errorf("vtp: host list (%d) and port list (%d) are of unequal lengths", len(hosts), len(ports))
	}

	endpoints := make([]Endpoint, len(hosts))
	for i := range hosts {
		endpoints[i] = Endpoint{Host: hosts[i], Port: ports[i]}
	}
	return endpoints, nil
}

// PoolConfig configures an endpoint Pool.
type PoolConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// IamaliveTimeout is used as the connect timeout for each attempt.
	IamaliveTimeout time.Duration
	// MaxReconnectTimeout caps the exponential backoff between attempts.
	MaxReconnectTimeout time.Duration

	Metrics *Metrics
}

func (c *PoolConfig) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.IamaliveTimeout <= 0 {
		c.IamaliveTimeout = 150 * time.Second
	}
	if c.MaxReconnectTimeout <= 0 {
		c.MaxReconnectTimeout = 1024 * time.Second
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
}

// Pool is a cyclic iterator over a configured set of endpoints, sharing a
// single exponential-backoff state across calls (C4). Consecutive
// connection failures, even across different endpoints, keep doubling the
// backoff up to MaxReconnectTimeout; a successful connection resets it.
type Pool struct {
	log        *slog.Logger
	clock      clockwork.Clock
	endpoints  []Endpoint
	timeout    time.Duration
	maxBackoff time.Duration
	metrics    *Metrics

	next int
	bo   *backoff.ExponentialBackOff
}

// NewPool constructs a Pool over endpoints, which must be non-empty.
func NewPool(endpoints []Endpoint, cfg PoolConfig) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("vtp: pool requires at least one endpoint")
	}
	cfg.setDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.Clock = cfg.Clock
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0 // deterministic doubling, per spec §4.4/§8
	bo.MaxInterval = cfg.MaxReconnectTimeout
	bo.MaxElapsedTime = 0 // never give up
	bo.Reset()

	return &Pool{
		log:        cfg.Logger,
		clock:      cfg.Clock,
		endpoints:  endpoints,
		timeout:    cfg.IamaliveTimeout,
		maxBackoff: cfg.MaxReconnectTimeout,
		metrics:    cfg.Metrics,
		bo:         bo,
	}, nil
}

// NextConnected returns a newly connected socket to the next endpoint in
// the cycle, retrying forever with exponential backoff on failure. It only
// returns early if ctx is cancelled, in which case it returns ctx.Err().
func (p *Pool) NextConnected(ctx context.Context) (net.Conn, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)

		dialer := net.Dialer{Timeout: p.timeout}
		conn, err := dialer.DialContext(ctx, "tcp", ep.String())
		if err == nil {
			p.log.Info("connected", "endpoint", ep.String())
			p.bo.Reset()
			p.metrics.backoffSeconds.Set(0)
			return conn, nil
		}

		wait := p.bo.NextBackOff()
		p.metrics.reconnectAttempts.Inc()
		p.metrics.backoffSeconds.Set(wait.Seconds())
		p.log.Error("could not connect, will retry",
			"endpoint", ep.String(), "error", err, "retry_in", wait)

		timer := p.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.Chan():
		}
	}
}
