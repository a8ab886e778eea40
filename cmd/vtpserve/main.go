// Command vtpserve is a rudimentary VTP test server: it replays a fixed
// list of VOEvent payload files, framed per the wire protocol, to whatever
// client connects, one connection at a time.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nasa-gcn/pygcn/internal/replay"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultHost = "127.0.0.1:8099"

type config struct {
	Host              string
	RetransmitTimeout time.Duration
	PayloadFiles      []string
	Verbose           bool
	ShowVersion       bool
	MetricsEnable     bool
	MetricsAddr       string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("vtpserve version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	if len(cfg.PayloadFiles) == 0 {
		return fmt.Errorf("at least one PAYLOAD.xml file is required")
	}

	payloads := make([][]byte, 0, len(cfg.PayloadFiles))
	for _, f := range cfg.PayloadFiles {
		b, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		payloads = append(payloads, b)
	}

	srv, err := replay.New(replay.Config{
		Logger:            log,
		Payloads:          payloads,
		RetransmitTimeout: cfg.RetransmitTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if cfg.MetricsEnable {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				log.Error("prometheus metrics server stopped", "error", err)
			}
		}()
		log.Info("serving prometheus metrics", "address", cfg.MetricsAddr)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Host)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info("server shutdown complete")
	return nil
}

func parseFlags() *config {
	cfg := &config{}

	flag.StringVar(&cfg.Host, "host", defaultHost, "HOST[:PORT] to bind and listen on")
	flag.DurationVar(&cfg.RetransmitTimeout, "retransmit-timeout", time.Second,
		"pause between successive payload retransmissions on a connection")
	flag.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose logging")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")
	flag.BoolVar(&cfg.MetricsEnable, "metrics-enable", false, "Enable prometheus metrics")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", ":8080", "Address to listen on for prometheus metrics")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "vtpserve - Rudimentary VTP test server that replays VOEvent payloads\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  vtpserve [flags] PAYLOAD.xml [PAYLOAD.xml ...]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()
	cfg.PayloadFiles = flag.Args()
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
