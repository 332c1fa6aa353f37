package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounce is the minimum interval between anomaly-triggered passes.
const DefaultDebounce = 5 * time.Minute

// triggerTimeout bounds a background pass so a hung collaborator cannot pin
// the goroutine forever.
const triggerTimeout = 30 * time.Second

// Trigger runs a full diagnostic pass in the background when a query reports
// an anomaly, debounced so repeated anomalies cannot stampede. Observe never
// blocks the calling query.
type Trigger struct {
	runner   *Runner
	debounce time.Duration

	mu      sync.Mutex
	lastRun time.Time
	running bool
}

// NewTrigger creates a trigger over the given runner. Non-positive debounce
// falls back to the default.
func NewTrigger(runner *Runner, debounce time.Duration) *Trigger {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Trigger{runner: runner, debounce: debounce}
}

// Observe schedules a background diagnostic pass unless one ran within the
// debounce window or is already in flight.
func (t *Trigger) Observe(reason string) {
	t.mu.Lock()
	if t.running || time.Since(t.lastRun) < t.debounce {
		t.mu.Unlock()
		slog.Debug("diagnostics_suppressed", slog.String("reason", reason))
		return
	}
	t.running = true
	t.mu.Unlock()

	go t.run(reason)
}

func (t *Trigger) run(reason string) {
	defer func() {
		t.mu.Lock()
		t.lastRun = time.Now()
		t.running = false
		t.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()

	report := t.runner.Diagnose(ctx)
	level := slog.LevelInfo
	if !report.Healthy() {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "diagnostics_completed",
		slog.String("trigger", reason),
		slog.Int("findings", len(report.Findings)),
		slog.Bool("healthy", report.Healthy()),
		slog.Int("index_documents", report.IndexDocuments),
		slog.Int("file_vectors", report.FileVectors),
		slog.Int("chunk_vectors", report.ChunkVectors))
	for _, f := range report.Findings {
		slog.Log(ctx, level, "diagnostic_finding",
			slog.String("check", f.Check),
			slog.String("severity", string(f.Severity)),
			slog.String("message", f.Message))
	}
}
