package reporter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/peerlink/internal/audit"
	"github.com/rickgao/peerlink/internal/router"
)

// Sample is one reading of relay state.
type Sample struct {
	Connections int64
	Peers       int
	Router      router.RouterStats
	Audit       *audit.WriterMetrics // nil when auditing is off
}

// Source provides samples.
type Source interface {
	Sample() Sample
}

// SourceFunc is a function adapter for Source.
type SourceFunc func() Sample

func (f SourceFunc) Sample() Sample {
	return f()
}

// Config holds reporter configuration.
type Config struct {
	Interval time.Duration // Report interval (default: 1m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: time.Minute}
}

// Reporter periodically logs a stats line.
type Reporter struct {
	cfg    Config
	source Source
	logger *slog.Logger

	// Owned by run.
	last Sample

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Reporter.
func New(cfg Config, source Source, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Reporter{
		cfg:    cfg,
		source: source,
		logger: logger,
	}
}

// Start begins the reporting loop.
func (r *Reporter) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.last = r.source.Sample()

	r.wg.Add(1)
	go r.run()

	r.logger.Debug("stats reporter started", "interval", r.cfg.Interval)
	return nil
}

// Stop halts the loop and writes one final report.
func (r *Reporter) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reporter) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.report()
			return
		case <-ticker.C:
			r.report()
		}
	}
}

// report logs the current sample and the change since the previous one.
func (r *Reporter) report() {
	cur := r.source.Sample()
	prev := r.last
	r.last = cur

	attrs := []any{
		"connections", cur.Connections,
		"peers", cur.Peers,
		"commands", cur.Router.CommandsReceived - prev.Router.CommandsReceived,
		"registrations", cur.Router.Registrations - prev.Router.Registrations,
		"deliveries", cur.Router.Deliveries - prev.Router.Deliveries,
		"misses", cur.Router.Misses - prev.Router.Misses,
		"released", cur.Router.Released - prev.Router.Released,
	}
	if cur.Audit != nil {
		attrs = append(attrs,
			"audit_inserts", cur.Audit.Inserts,
			"audit_errors", cur.Audit.Errors,
			"audit_dropped", cur.Audit.Dropped,
		)
	}

	r.logger.Info("relay stats", attrs...)
}
