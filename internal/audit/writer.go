package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/peerlink/internal/metrics"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS rendezvous_events (
	id          UUID PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	kind        TEXT NOT NULL,
	conn_id     UUID NOT NULL,
	nickname    TEXT NOT NULL,
	peer        TEXT NOT NULL DEFAULT '',
	ticket_len  INTEGER NOT NULL DEFAULT 0
)`

const createIndexSQL = `
CREATE INDEX IF NOT EXISTS rendezvous_events_occurred_at_idx
	ON rendezvous_events (occurred_at)`

const insertSQL = `
INSERT INTO rendezvous_events (id, occurred_at, kind, conn_id, nickname, peer, ticket_len)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

// finalFlushTimeout bounds the flush performed on Stop.
const finalFlushTimeout = 5 * time.Second

// DB is the subset of *pgxpool.Pool the Writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig configures batching.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int // Queue capacity; records beyond it are dropped
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
		BufferSize:    10000,
	}
}

// WriterMetrics contains writer statistics.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Dropped   int64
}

// Writer batches audit records into the rendezvous_events table.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger
	db     DB

	input   chan Record
	started atomic.Bool
	stopped atomic.Bool

	// Lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	metrics WriterMetrics
}

// NewWriter creates a Writer. Call EnsureSchema and Start before use.
func NewWriter(cfg WriterConfig, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = cfg.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &Writer{
		cfg:    cfg,
		logger: logger,
		db:     db,
		input:  make(chan Record, cfg.BufferSize),
	}
}

// EnsureSchema creates the audit table if it does not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, createTableSQL); err != nil {
		return err
	}
	_, err := w.db.Exec(ctx, createIndexSQL)
	return err
}

// Start begins consuming records.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("audit writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop flushes queued records and shuts the writer down.
func (w *Writer) Stop(ctx context.Context) error {
	w.stopped.Store(true)
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("audit writer stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("audit writer stop timed out")
		return ctx.Err()
	}
}

// Record queues r for insertion. It never blocks.
func (w *Writer) Record(r Record) {
	if w.stopped.Load() {
		w.drop()
		return
	}
	select {
	case w.input <- r:
	default:
		w.drop()
	}
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *Writer) drop() {
	metrics.AuditDropped.Inc()
	w.mu.Lock()
	w.metrics.Dropped++
	w.mu.Unlock()
}

// run owns the batch; no other goroutine touches it.
func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, w.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			batch = w.drain(batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			w.flush(flushCtx, batch)
			cancel()
			return

		case r := <-w.input:
			batch = append(batch, r)
			if len(batch) >= w.cfg.BatchSize {
				w.flush(ctx, batch)
				batch = make([]Record, 0, w.cfg.BatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = make([]Record, 0, w.cfg.BatchSize)
			}
		}
	}
}

// drain moves whatever is still queued into batch.
func (w *Writer) drain(batch []Record) []Record {
	for {
		select {
		case r := <-w.input:
			batch = append(batch, r)
		default:
			return batch
		}
	}
}

func (w *Writer) flush(ctx context.Context, rows []Record) {
	if len(rows) == 0 {
		return
	}

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, rows)
	metrics.AuditFlushDuration.Observe(time.Since(start).Seconds())

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.metrics.Errors++
		w.logger.Error("audit batch insert failed", "error", err, "count", len(rows))
		return
	}

	w.metrics.Inserts += int64(len(rows) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++

	w.logger.Debug("flushed audit records",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []Record) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL, r.ID, r.OccurredAt, string(r.Kind), r.ConnID, r.Nickname, r.Peer, r.TicketLen)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
