// Package download fetches mosaic quads to local disk with skip-if-present
// and tmp+mv semantics, so interrupted runs resume without re-transferring.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/basemapper/basemapper/pkg/catalog"
	"github.com/basemapper/basemapper/pkg/fileutil"
	"github.com/basemapper/basemapper/pkg/logging"
	"github.com/basemapper/basemapper/pkg/window"
)

// DefaultTimeout is the default per-quad transfer timeout.
const DefaultTimeout = 10 * time.Minute

// DefaultProgressInterval is how often a progress event is emitted during a
// window's downloads.
const DefaultProgressInterval = 30 * time.Second

// Config holds configuration for a Downloader.
type Config struct {
	// HTTPClient executes quad transfers (optional). If nil, a plain client
	// with Timeout is used.
	HTTPClient catalog.HTTPDoer

	// Timeout applies when HTTPClient is nil.
	Timeout time.Duration

	// ProgressInterval controls progress event frequency (optional).
	ProgressInterval time.Duration

	// Logger for download operations.
	Logger zerolog.Logger
}

// Downloader fetches quads for a window into its quad directory.
type Downloader struct {
	httpClient       catalog.HTTPDoer
	progressInterval time.Duration
	logger           zerolog.Logger
}

// New creates a Downloader, filling in defaults for unset config fields.
func New(cfg Config) *Downloader {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	interval := cfg.ProgressInterval
	if interval == 0 {
		interval = DefaultProgressInterval
	}

	return &Downloader{
		httpClient:       httpClient,
		progressInterval: interval,
		logger:           cfg.Logger,
	}
}

// Failure records a single quad that could not be fetched.
type Failure struct {
	QuadID string
	Err    error
}

// Result summarizes a window's download pass.
type Result struct {
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
	Duration   time.Duration
	Failures   []Failure
}

// QuadPath returns the on-disk path for a quad within a window's quad
// directory: <dir>/<id>_<tag>.tiff.
func QuadPath(dir string, quadID string, tag window.Tag) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.tiff", quadID, tag))
}

// FetchQuad downloads a single quad into dir unless its final file already
// exists with non-zero size. It returns the number of bytes transferred,
// zero when the quad was skipped.
func (d *Downloader) FetchQuad(ctx context.Context, quad catalog.Quad, dir string, tag window.Tag) (int64, bool, error) {
	outPath := QuadPath(dir, quad.ID, tag)

	if fileutil.IsNonEmpty(outPath) {
		return 0, true, nil
	}

	var transferred int64
	err := fileutil.WriteTmpThenMove(outPath, func(tmpPath string) error {
		n, err := d.transfer(ctx, quad.DownloadURL, tmpPath)
		transferred = n
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("fetch quad %s: %w", quad.ID, err)
	}
	return transferred, false, nil
}

// transfer streams url into path and returns the byte count.
func (d *Downloader) transfer(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quad request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quad server returned status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("write quad body: %w", err)
	}
	return n, nil
}

// FetchAll downloads every quad in the listing into dir, one at a time.
// Individual failures are recorded and do not stop the pass; a non-nil error
// is returned only when the context is cancelled.
func (d *Downloader) FetchAll(ctx context.Context, quads []catalog.Quad, dir string, win window.Window) (*Result, error) {
	log := d.logger.With().Str("window", win.String()).Logger()
	tracker := logging.NewProgressTracker(win.String(), int64(len(quads)), log)

	start := time.Now()
	result := &Result{}
	lastProgress := start

	for _, quad := range quads {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		quadStart := time.Now()
		n, skipped, err := d.FetchQuad(ctx, quad, dir, win.Tag)
		switch {
		case err != nil:
			// Context cancellation surfaces through the transfer; stop the
			// pass instead of recording every remaining quad as failed.
			if ctx.Err() != nil {
				result.Duration = time.Since(start)
				return result, ctx.Err()
			}
			result.Failed++
			result.Failures = append(result.Failures, Failure{QuadID: quad.ID, Err: err})
			tracker.RecordFailure()
			log.Warn().Err(err).Str("quad_id", quad.ID).Msg("quad download failed")
		case skipped:
			result.Skipped++
			tracker.RecordSkip()
		default:
			result.Downloaded++
			result.Bytes += n
			tracker.RecordCompletion(time.Since(quadStart))
		}

		if time.Since(lastProgress) >= d.progressInterval {
			tracker.LogProgress()
			lastProgress = time.Now()
		}
	}

	result.Duration = time.Since(start)
	tracker.LogSummary(result.Bytes)
	return result, nil
}
