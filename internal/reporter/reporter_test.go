package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/peerlink/internal/audit"
	"github.com/rickgao/peerlink/internal/router"
)

// syncBuffer is a bytes.Buffer safe for the reporter goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err == nil && m["msg"] == "relay stats" {
			out = append(out, m)
		}
	}
	return out
}

func jsonLogger(w *syncBuffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}

func TestReporter_ReportDeltas(t *testing.T) {
	var deliveries atomic.Int64
	source := SourceFunc(func() Sample {
		return Sample{
			Connections: 3,
			Peers:       2,
			Router:      router.RouterStats{Deliveries: deliveries.Load()},
		}
	})

	var out syncBuffer
	r := New(Config{Interval: time.Hour}, source, jsonLogger(&out))
	r.last = source.Sample()

	deliveries.Store(5)
	r.report()
	deliveries.Store(7)
	r.report()

	lines := out.lines()
	if len(lines) != 2 {
		t.Fatalf("got %d stats lines, want 2", len(lines))
	}
	if got := lines[0]["deliveries"]; got != float64(5) {
		t.Errorf("first deliveries = %v, want 5", got)
	}
	if got := lines[1]["deliveries"]; got != float64(2) {
		t.Errorf("second deliveries = %v, want 2", got)
	}
	if got := lines[1]["peers"]; got != float64(2) {
		t.Errorf("peers = %v, want 2", got)
	}
	if _, ok := lines[0]["audit_inserts"]; ok {
		t.Error("audit fields present with auditing off")
	}
}

func TestReporter_AuditFields(t *testing.T) {
	source := SourceFunc(func() Sample {
		return Sample{Audit: &audit.WriterMetrics{Inserts: 10, Dropped: 1}}
	})

	var out syncBuffer
	r := New(DefaultConfig(), source, jsonLogger(&out))
	r.report()

	lines := out.lines()
	if len(lines) != 1 {
		t.Fatalf("got %d stats lines, want 1", len(lines))
	}
	if got := lines[0]["audit_inserts"]; got != float64(10) {
		t.Errorf("audit_inserts = %v, want 10", got)
	}
	if got := lines[0]["audit_dropped"]; got != float64(1) {
		t.Errorf("audit_dropped = %v, want 1", got)
	}
}

func TestReporter_StartStop(t *testing.T) {
	var samples atomic.Int32
	source := SourceFunc(func() Sample {
		samples.Add(1)
		return Sample{}
	})

	var out syncBuffer
	r := New(Config{Interval: 10 * time.Millisecond}, source, jsonLogger(&out))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Initial sample, at least one tick, and the final report on Stop.
	if got := samples.Load(); got < 3 {
		t.Errorf("samples = %d, want at least 3", got)
	}
	if len(out.lines()) < 2 {
		t.Errorf("got %d stats lines, want at least 2", len(out.lines()))
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	r := New(Config{}, SourceFunc(func() Sample { return Sample{} }), nil)
	if r.cfg.Interval != time.Minute {
		t.Errorf("Interval = %v, want 1m", r.cfg.Interval)
	}
}
