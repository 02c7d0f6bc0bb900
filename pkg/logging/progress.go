package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/basemapper/basemapper/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// ProgressTracker tracks progress for a set of quads with ETA calculation.
// It is safe for concurrent use.
type ProgressTracker struct {
	total     int64
	completed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	startTime time.Time
	log       zerolog.Logger
	window    string

	// For moving average of quad transfer durations
	mu              sync.Mutex
	recentDurations []time.Duration
	maxRecent       int
}

// NewProgressTracker creates a new progress tracker for a download window.
func NewProgressTracker(window string, total int64, log zerolog.Logger) *ProgressTracker {
	return &ProgressTracker{
		total:           total,
		startTime:       time.Now(),
		log:             log,
		window:          window,
		recentDurations: make([]time.Duration, 0, 10),
		maxRecent:       10,
	}
}

// RecordCompletion records that a quad finished downloading with the given duration.
func (pt *ProgressTracker) RecordCompletion(d time.Duration) {
	pt.completed.Add(1)

	pt.mu.Lock()
	if len(pt.recentDurations) >= pt.maxRecent {
		pt.recentDurations = pt.recentDurations[1:]
	}
	pt.recentDurations = append(pt.recentDurations, d)
	pt.mu.Unlock()
}

// RecordSkip records that a quad was already present on disk.
func (pt *ProgressTracker) RecordSkip() {
	pt.skipped.Add(1)
}

// RecordFailure records that a quad download failed.
func (pt *ProgressTracker) RecordFailure() {
	pt.failed.Add(1)
}

// Progress returns current progress stats.
func (pt *ProgressTracker) Progress() (completed, skipped, failed, total int64) {
	return pt.completed.Load(), pt.skipped.Load(), pt.failed.Load(), pt.total
}

// ProgressPct returns the progress percentage (0-100).
func (pt *ProgressTracker) ProgressPct() float64 {
	done := pt.completed.Load() + pt.skipped.Load() + pt.failed.Load()
	if pt.total == 0 {
		return 100.0
	}
	return float64(done) * 100.0 / float64(pt.total)
}

// ETA returns the estimated time remaining based on average transfer rate.
func (pt *ProgressTracker) ETA() time.Duration {
	completed := pt.completed.Load()
	if completed == 0 {
		return 0
	}

	remaining := pt.total - completed - pt.skipped.Load() - pt.failed.Load()
	if remaining <= 0 {
		return 0
	}

	// Use moving average if available, else overall average
	pt.mu.Lock()
	var avgDuration time.Duration
	if len(pt.recentDurations) > 0 {
		var sum time.Duration
		for _, d := range pt.recentDurations {
			sum += d
		}
		avgDuration = sum / time.Duration(len(pt.recentDurations))
	} else {
		elapsed := time.Since(pt.startTime)
		avgDuration = elapsed / time.Duration(completed)
	}
	pt.mu.Unlock()

	return avgDuration * time.Duration(remaining)
}

// Elapsed returns time since tracking started.
func (pt *ProgressTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}

// Remaining returns how many quads are remaining.
func (pt *ProgressTracker) Remaining() int64 {
	return pt.total - pt.completed.Load() - pt.skipped.Load() - pt.failed.Load()
}

// Total returns the total count.
func (pt *ProgressTracker) Total() int64 {
	return pt.total
}

// LogProgress emits a progress event for the window.
func (pt *ProgressTracker) LogProgress() {
	completed, skipped, failed, total := pt.Progress()

	e := pt.log.Info().
		Str("event", "download_progress").
		Str("window", pt.window).
		Int64("completed", completed).
		Int64("skipped", skipped).
		Int64("failed", failed).
		Int64("total", total).
		Float64("progress_pct", pt.ProgressPct())

	if eta := pt.ETA(); eta > 0 {
		e = e.Int64("eta_ms", eta.Milliseconds())
		if IsPrettyMode() {
			e = e.Str("eta_h", humanfmt.Duration(eta))
		}
	}

	e.Msg("download progress")
}

// LogSummary emits a final summary event for the window, including the total
// transfer size.
func (pt *ProgressTracker) LogSummary(bytes int64) {
	completed, skipped, failed, total := pt.Progress()
	elapsed := pt.Elapsed()

	e := pt.log.Info().
		Str("event", "download_completed").
		Str("window", pt.window).
		Int64("completed", completed).
		Int64("skipped", skipped).
		Int64("failed", failed).
		Int64("total", total).
		Int64("bytes", bytes).
		Int64("duration_ms", elapsed.Milliseconds())

	if IsPrettyMode() {
		e = e.Str("bytes_h", humanfmt.Bytes(bytes)).
			Str("duration_h", humanfmt.Duration(elapsed)).
			Str("throughput_h", humanfmt.Throughput(bytes, elapsed))
	}

	e.Msg("window download complete")
}
