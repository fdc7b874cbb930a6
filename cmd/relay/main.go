package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rickgao/peerlink/internal/audit"
	"github.com/rickgao/peerlink/internal/config"
	"github.com/rickgao/peerlink/internal/database"
	"github.com/rickgao/peerlink/internal/registry"
	"github.com/rickgao/peerlink/internal/reporter"
	"github.com/rickgao/peerlink/internal/router"
	"github.com/rickgao/peerlink/internal/server"
	"github.com/rickgao/peerlink/internal/version"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (defaults apply when empty)")
	listen := pflag.StringP("listen", "l", "", "listen address, overrides server.listen_addr")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println("relay", version.String())
		return
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var recorder audit.Recorder = audit.Nop{}
	var auditWriter *audit.Writer
	if cfg.Audit.Enabled {
		logger.Info("connecting to audit database",
			"host", cfg.Audit.Database.Host,
			"database", cfg.Audit.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Audit.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		auditWriter = audit.NewWriter(audit.WriterConfig{
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
			BufferSize:    cfg.Audit.BufferSize,
		}, pool, logger.With("component", "audit"))

		if err := auditWriter.EnsureSchema(ctx); err != nil {
			return err
		}
		// Not tied to ctx: disconnects during shutdown are still recorded.
		if err := auditWriter.Start(context.Background()); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := auditWriter.Stop(stopCtx); err != nil {
				logger.Warn("audit writer stop", "error", err)
			}
		}()
		recorder = auditWriter
		logger.Info("audit trail enabled")
	}

	rt := router.New(registry.New(), recorder, logger.With("component", "router"))
	srv := server.New(cfg, rt, logger)
	if auditWriter != nil {
		srv.SetAuditStats(auditWriter.Stats)
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}

	if cfg.Log.StatsInterval > 0 {
		rep := reporter.New(reporter.Config{Interval: cfg.Log.StatsInterval},
			reporter.SourceFunc(func() reporter.Sample {
				sample := reporter.Sample{
					Connections: srv.ActiveConnections(),
					Peers:       rt.Registry().Len(),
					Router:      rt.Stats(),
				}
				if auditWriter != nil {
					st := auditWriter.Stats()
					sample.Audit = &st
				}
				return sample
			}),
			logger,
		)
		rep.Start(ctx)
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
			defer stopCancel()
			rep.Stop(stopCtx)
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case err, ok := <-srv.Errors():
		if ok {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	}

	logger.Info("shutting down...", "connections", srv.ActiveConnections())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}

	return serveErr
}

// newLogger builds the process logger from the log config.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
}
