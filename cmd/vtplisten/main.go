// Command vtplisten is an anonymous VTP listener: it connects to one of
// several VOEvent Transport Protocol endpoints, acknowledges VOEvents as
// they arrive, and archives each one to disk under the current directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nasa-gcn/pygcn/internal/handlers"
	"github.com/nasa-gcn/pygcn/internal/vtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultPort            = 8099
	defaultIamaliveTimeout = 150 * time.Second
	defaultMaxReconnect    = 1024 * time.Second
)

var defaultAddrs = []string{"45.58.43.186:8099", "68.169.57.253:8099"}

type config struct {
	Addrs         []string
	IVORN         string
	Verbose       bool
	ShowVersion   bool
	MetricsEnable bool
	MetricsAddr   string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("vtplisten version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	endpoints, err := parseEndpoints(cfg.Addrs)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting vtplisten",
		"endpoints", cfg.Addrs,
		"ivorn", cfg.IVORN,
	)

	handler := handlers.Archive(log.With("component", "archive"))

	var registerer prometheus.Registerer
	if cfg.MetricsEnable {
		registerer = prometheus.DefaultRegisterer
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				log.Error("prometheus metrics server stopped", "error", err)
			}
		}()
		log.Info("serving prometheus metrics", "address", cfg.MetricsAddr)
	}

	err = vtp.Listen(ctx, vtp.ListenerConfig{
		Logger:              log,
		Endpoints:           endpoints,
		IVORN:               cfg.IVORN,
		IamaliveTimeout:     defaultIamaliveTimeout,
		MaxReconnectTimeout: defaultMaxReconnect,
		Handler:             handler,
		Registerer:          registerer,
	})
	if err != nil {
		return fmt.Errorf("listener stopped: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

// parseEndpoints parses HOST[:PORT] strings into vtp.Endpoint values,
// defaulting the port to defaultPort when omitted, per spec §6.3.
func parseEndpoints(addrs []string) ([]vtp.Endpoint, error) {
	endpoints := make([]vtp.Endpoint, 0, len(addrs))
	for _, addr := range addrs {
		host, portStr, found := strings.Cut(addr, ":")
		port := defaultPort
		if found {
			p, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, fmt.Errorf("%q: invalid port: %w", addr, err)
			}
			port = p
		}
		endpoints = append(endpoints, vtp.Endpoint{Host: host, Port: port})
	}
	return endpoints, nil
}

func parseFlags() *config {
	cfg := &config{}

	flag.StringVarP(&cfg.IVORN, "ivorn", "i", "ivo://python_voeventclient/anonymous",
		"IVORN this client identifies itself with in ack/iamalive responses")
	flag.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose (debug) logging")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")
	flag.BoolVar(&cfg.MetricsEnable, "metrics-enable", false, "Enable prometheus metrics")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", ":8080", "Address to listen on for prometheus metrics")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "vtplisten - Anonymous VTP listener that archives incoming VOEvents to disk\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  vtplisten [flags] [ADDR ...]\n\n")
		fmt.Fprintf(os.Stderr, "ADDR is one or more HOST[:PORT] pairs (default: %s)\n\n", strings.Join(defaultAddrs, ", "))
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg.Addrs = flag.Args()
	if len(cfg.Addrs) == 0 {
		cfg.Addrs = defaultAddrs
	}
	return cfg
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}
