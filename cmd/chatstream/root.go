package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/omochice/chatstream/internal/config"
	"github.com/omochice/chatstream/internal/logging"
	"github.com/omochice/chatstream/internal/metrics"
	"github.com/omochice/chatstream/internal/session"
	"github.com/omochice/chatstream/internal/transport"
	"github.com/omochice/chatstream/internal/transport/netws"
	"github.com/omochice/chatstream/internal/transport/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	envFile          string
	url              string
	transport        string
	handshakeTimeout time.Duration
	metricsAddr      string
	logLevel         string
	logDev           bool
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "chatstream",
		Short: "Chat with a streaming websocket backend from the terminal",
		Long: "chatstream connects to a websocket chat backend, sends each line you type as one message " +
			"and renders streamed replies as they arrive.\n\n" +
			"Commands:\n" +
			"  /reconnect [url]  reconnect, optionally to a new address\n" +
			"  /status           show the connection status\n" +
			"  /quit             leave",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, cfg, in, out)
		},
	}

	// Flag defaults only document the built-in values; the environment wins
	// unless a flag is set explicitly.
	defaults := config.Default()
	flags := cmd.Flags()
	flags.StringVar(&opts.envFile, "env-file", "", "Load environment variables from this file (default .env)")
	flags.StringVarP(&opts.url, "url", "u", defaults.URL, "WebSocket address of the chat backend")
	flags.StringVar(&opts.transport, "transport", defaults.Transport, "WebSocket implementation: gorilla or gobwas")
	flags.DurationVar(&opts.handshakeTimeout, "handshake-timeout", defaults.HandshakeTimeout, "Give up on the opening handshake after this long (0 waits forever)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Serve Prometheus metrics on this address")
	flags.StringVar(&opts.logLevel, "log-level", defaults.Logging.Level, "Log level: debug, info, warn or error")
	flags.BoolVar(&opts.logDev, "log-dev", defaults.Logging.Development, "Human readable logs")

	return cmd
}

// resolveConfig loads the environment and applies explicitly set flags on top.
func resolveConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	var files []string
	if opts.envFile != "" {
		files = append(files, opts.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = opts.url
	}
	if flags.Changed("transport") {
		cfg.Transport = opts.transport
	}
	if flags.Changed("handshake-timeout") {
		cfg.HandshakeTimeout = opts.handshakeTimeout
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-dev") {
		cfg.Logging.Development = opts.logDev
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDialer(cfg *config.Config) transport.Dialer {
	if strings.EqualFold(cfg.Transport, config.TransportGobwas) {
		return netws.NewDialer(cfg.HandshakeTimeout)
	}
	return ws.NewDialer(cfg.HandshakeTimeout)
}

func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Development = cfg.Logging.Development
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		reg.MustRegister(collectors.NewGoCollector())
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	p := newPrinter(out)
	s := session.New(session.Options{
		Address: cfg.URL,
		Dialer:  newDialer(cfg),
		Logger:  logger,
		Metrics: m,
	}, session.WithObserver(p.handle))
	defer s.Close()

	p.linef("connecting to %s", cfg.URL)
	s.Start()

	// Input is read while connecting so /reconnect and /quit work against a
	// backend that never finishes the handshake.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("error reading input", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(s, p, line); quit {
				return nil
			}
		}
	}
}

// handleLine runs one line of input. It reports whether the user asked to leave.
func handleLine(s *session.Session, p *printer, line string) bool {
	text := strings.TrimSpace(line)
	command, arg, _ := strings.Cut(text, " ")

	switch command {
	case "/quit", "/exit":
		return true
	case "/status":
		p.status(s.Snapshot(), true)
	case "/reconnect":
		address := strings.TrimSpace(arg)
		if address == "" {
			address = s.Address()
		}
		s.Reconnect(address)
	default:
		if err := s.Submit(text); err != nil {
			p.errorf("failed to send: %v", err)
		}
	}
	return false
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
