package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bqtools/bucket2bq/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// ProgressTracker tracks table-load progress with an ETA derived from a
// moving average of recent job durations. Safe for concurrent use.
type ProgressTracker struct {
	total     int64
	created   atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64
	startTime time.Time
	log       zerolog.Logger

	mu              sync.Mutex
	recentDurations []time.Duration
	maxRecent       int
}

// NewProgressTracker creates a tracker for total tables.
func NewProgressTracker(phase string, total int64, log zerolog.Logger) *ProgressTracker {
	return &ProgressTracker{
		total:           total,
		startTime:       time.Now(),
		log:             log.With().Str("phase", phase).Logger(),
		recentDurations: make([]time.Duration, 0, 10),
		maxRecent:       10,
	}
}

// RecordCreated records a table load that succeeded, with its job
// duration and source bytes.
func (pt *ProgressTracker) RecordCreated(d time.Duration, bytes int64) {
	pt.created.Add(1)
	pt.bytes.Add(bytes)

	pt.mu.Lock()
	if len(pt.recentDurations) >= pt.maxRecent {
		pt.recentDurations = pt.recentDurations[1:]
	}
	pt.recentDurations = append(pt.recentDurations, d)
	pt.mu.Unlock()
}

// RecordSkip records a table that was not loaded.
func (pt *ProgressTracker) RecordSkip() {
	pt.skipped.Add(1)
}

// RecordFailure records a table whose load failed terminally.
func (pt *ProgressTracker) RecordFailure() {
	pt.failed.Add(1)
}

// Done returns the number of tables with a terminal outcome.
func (pt *ProgressTracker) Done() int64 {
	return pt.created.Load() + pt.skipped.Load() + pt.failed.Load()
}

// ETA estimates the remaining time from the recent job durations.
// Returns 0 when no completions have been observed yet.
func (pt *ProgressTracker) ETA() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if len(pt.recentDurations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range pt.recentDurations {
		sum += d
	}
	avg := sum / time.Duration(len(pt.recentDurations))
	remaining := pt.total - pt.Done()
	if remaining < 0 {
		remaining = 0
	}
	return avg * time.Duration(remaining)
}

// LogProgress emits one progress line at info level.
func (pt *ProgressTracker) LogProgress() {
	done := pt.Done()
	pt.log.Info().
		Int64("done", done).
		Int64("total", pt.total).
		Int64("created", pt.created.Load()).
		Int64("skipped", pt.skipped.Load()).
		Int64("failed", pt.failed.Load()).
		Str("loaded", humanfmt.Bytes(pt.bytes.Load())).
		Str("elapsed", humanfmt.Duration(time.Since(pt.startTime))).
		Str("eta", humanfmt.Duration(pt.ETA())).
		Msg("load progress")
}
