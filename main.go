package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kndndrj/snowgate/adapters"
	"github.com/kndndrj/snowgate/audit"
	"github.com/kndndrj/snowgate/config"
	"github.com/kndndrj/snowgate/core"
	"github.com/kndndrj/snowgate/handler"
	"github.com/kndndrj/snowgate/metrics"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultEnvFile         = ".env"
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "path to a YAML config file")
	envFileFlag := flag.String("env-file", "", "path to a dotenv file (defaults to .env when it exists)")
	listenAddrFlag := flag.String("listen-addr", "", "serve MCP over streamable HTTP on this address instead of stdio")
	metricsAddrFlag := flag.String("metrics-addr", "", "address to listen on for prometheus metrics")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	flag.Parse()

	envFile := *envFileFlag
	if envFile == "" {
		if _, err := os.Stat(defaultEnvFile); err == nil {
			envFile = defaultEnvFile
		}
	}

	cfg, err := config.Load(config.LoadOptions{
		File:    *configFlag,
		EnvFile: envFile,
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if *verboseFlag {
		level = slog.LevelDebug
	}
	log := newLogger(level)

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	resolution, err := config.Resolve(cfg)
	if err != nil {
		return fmt.Errorf("failed to resolve credentials: %w", err)
	}
	if len(resolution.Shadowed) > 0 {
		log.Warn("config: more than one credential set configured", "using", resolution.Strategy.Name(), "ignored", resolution.Shadowed)
	}
	params := cfg.ConnectionParams(resolution.Strategy)

	log.Info("config: loaded",
		"account", cfg.Account,
		"user", cfg.User,
		"auth", resolution.Strategy.Name(),
		"max_rows", cfg.MaxRows,
		"query_timeout", cfg.QueryTimeout,
		"pool_size", cfg.PoolSize,
		"disabled_risk_classes", cfg.Policy().Disabled(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsServerErrCh := make(chan error, 1)
	if *metricsAddrFlag != "" {
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
				return
			}
		}()
	}

	sink, closeSink, err := newAuditSink(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open audit sink: %w", err)
	}
	defer closeSink()

	clock := clockwork.NewRealClock()

	pool, err := adapters.NewPool(core.PoolConfig{
		Params:         params,
		Size:           cfg.PoolSize,
		AcquireTimeout: cfg.PoolAcquireTimeout,
		Logger:         log,
		Clock:          clock,
	})
	if err != nil {
		return fmt.Errorf("failed to create session pool: %w", err)
	}

	engine, err := core.NewEngine(core.EngineConfig{
		Logger:          log,
		Clock:           clock,
		DefaultRowLimit: cfg.MaxRows,
		MaxRowLimit:     cfg.MaxRowLimit,
		DefaultTimeout:  cfg.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	gateway, err := core.NewGateway(core.GatewayConfig{
		Logger: log,
		Clock:  clock,
		Pool:   pool,
		Engine: engine,
		Policy: cfg.Policy(),
		Audit:  sink,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer shutdownCancel()
		if err := gateway.Close(shutdownCtx); err != nil {
			log.Error("failed to close gateway", "error", err)
		}
		log.Info("server: gateway closed")
	}()

	h, err := handler.New(handler.Config{
		Logger:   log,
		Clock:    clock,
		Executor: gateway,
	})
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "snowgate",
		Version: version,
	}, nil)
	if err := h.Register(server); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- serve(ctx, log, server, *listenAddrFlag)
	}()

	select {
	case <-ctx.Done():
		log.Info("server: shutting down", "reason", ctx.Err())
		return nil
	case err := <-serverErrCh:
		if err != nil {
			log.Error("server: server error causing shutdown", "error", err)
		}
		return err
	case err := <-metricsServerErrCh:
		log.Error("server: metrics server error causing shutdown", "error", err)
		return err
	}
}

// serve runs the MCP server on stdio, or on streamable HTTP when listenAddr
// is set. It returns nil when the stdio client disconnects.
func serve(ctx context.Context, log *slog.Logger, server *mcp.Server, listenAddr string) error {
	if listenAddr == "" {
		log.Info("server: mcp listening on stdio")
		err := server.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to serve stdio: %w", err)
		}
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok\n")); err != nil {
			log.Error("failed to write healthz response", "error", err)
		}
	})

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()
	log.Info("server: mcp streamable http listening", "listenAddr", listenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	case err := <-serveErrCh:
		return err
	}
}

func newAuditSink(cfg *config.Config, log *slog.Logger) (audit.Sink, func(), error) {
	slogSink := audit.NewSlogSink(log, slog.LevelInfo)
	if cfg.AuditFile == "" {
		return slogSink, func() {}, nil
	}

	fileSink, err := audit.OpenFile(cfg.AuditFile, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("audit: writing records", "path", cfg.AuditFile)

	closeFn := func() {
		if err := fileSink.Close(); err != nil {
			log.Error("failed to close audit file", "error", err)
		}
	}
	return audit.Multi{slogSink, fileSink}, closeFn, nil
}

// newLogger writes to stderr, stdout carries the stdio transport.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
