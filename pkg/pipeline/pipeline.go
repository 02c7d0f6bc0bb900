// Package pipeline orchestrates the full acquisition run: area resolution,
// window bracketing, quad download, merge, and terrain enrichment, one
// inventory at a time.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/basemapper/basemapper/internal/logctx"
	"github.com/basemapper/basemapper/pkg/area"
	"github.com/basemapper/basemapper/pkg/catalog"
	"github.com/basemapper/basemapper/pkg/config"
	"github.com/basemapper/basemapper/pkg/download"
	"github.com/basemapper/basemapper/pkg/fileutil"
	"github.com/basemapper/basemapper/pkg/window"
)

// WindowStatus is the terminal state of one (inventory, window) unit.
type WindowStatus string

const (
	// StatusMerged: quads downloaded and merged into the window raster.
	StatusMerged WindowStatus = "merged"
	// StatusSkippedExists: the merged raster was already on disk.
	StatusSkippedExists WindowStatus = "skipped_exists"
	// StatusNoMosaic: the catalog has no mosaic for the window's month.
	StatusNoMosaic WindowStatus = "no_mosaic"
	// StatusNoQuads: the mosaic has no quads intersecting the area, or the
	// listing could not be fetched.
	StatusNoQuads WindowStatus = "no_quads"
	// StatusMergeFailed: quads were downloaded but could not be merged.
	StatusMergeFailed WindowStatus = "merge_failed"
	// StatusAreaFailed: the inventory's area could not be resolved, so the
	// window was never attempted.
	StatusAreaFailed WindowStatus = "area_failed"
)

// AreaResolver resolves an inventory name to its bounding box.
type AreaResolver interface {
	Resolve(inventory, layer string) (area.BBox, error)
}

// CatalogClient is the catalog surface the pipeline needs.
type CatalogClient interface {
	ResolveMosaic(ctx context.Context, name string) (string, error)
	ListQuads(ctx context.Context, mosaicID string, bbox area.BBox) ([]catalog.Quad, error)
}

// QuadFetcher downloads a window's quads into a directory.
type QuadFetcher interface {
	FetchAll(ctx context.Context, quads []catalog.Quad, dir string, win window.Window) (*download.Result, error)
}

// WindowMerger merges a quad directory into a single raster.
type WindowMerger interface {
	Merge(ctx context.Context, quadDir, outPath string) error
}

// TerrainEnricher fetches a DTM clipped to a merged raster's extent.
type TerrainEnricher interface {
	Enrich(ctx context.Context, mergedPath, dtmPath string) error
}

// Deps are the pipeline's collaborators. Terrain may be nil to disable
// enrichment.
type Deps struct {
	Areas     AreaResolver
	Catalog   CatalogClient
	Downloads QuadFetcher
	Merger    WindowMerger
	Terrain   TerrainEnricher
}

// WindowResult records the outcome of one (inventory, window) unit.
type WindowResult struct {
	Inventory string
	Window    window.Window
	Status    WindowStatus
	MosaicID  string
	QuadCount int
	Download  *download.Result
	Err       error
}

// Summary aggregates a full run.
type Summary struct {
	Windows []WindowResult

	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64

	TerrainFetched int
	TerrainFailed  int

	Duration time.Duration
}

// CountByStatus returns how many windows ended in the given status.
func (s *Summary) CountByStatus(status WindowStatus) int {
	n := 0
	for _, w := range s.Windows {
		if w.Status == status {
			n++
		}
	}
	return n
}

// Pipeline runs the acquisition for every configured inventory.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
}

// New creates a pipeline over the given configuration and collaborators.
func New(cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps}
}

// Run processes every inventory sequentially. Per-unit failures are recorded
// in the summary and never abort the run; the returned error is non-nil only
// when the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}
	log := logctx.FromContext(ctx)

	for _, inv := range p.cfg.Inventories {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		invCtx := logctx.WithStr(ctx, "inventory", inv.Name)
		p.runInventory(invCtx, inv, summary)
	}

	summary.Duration = time.Since(start)

	log.Info().
		Str("event", "run_completed").
		Int("windows", len(summary.Windows)).
		Int("merged", summary.CountByStatus(StatusMerged)).
		Int("skipped_exists", summary.CountByStatus(StatusSkippedExists)).
		Int("no_mosaic", summary.CountByStatus(StatusNoMosaic)).
		Int("no_quads", summary.CountByStatus(StatusNoQuads)).
		Int("merge_failed", summary.CountByStatus(StatusMergeFailed)).
		Int("area_failed", summary.CountByStatus(StatusAreaFailed)).
		Int("quads_downloaded", summary.Downloaded).
		Int("quads_skipped", summary.Skipped).
		Int("quads_failed", summary.Failed).
		Int64("bytes", summary.Bytes).
		Int64("duration_ms", summary.Duration.Milliseconds()).
		Msg("acquisition run complete")

	return summary, nil
}

// runInventory processes both windows of one inventory. Failures stay
// contained to the inventory.
func (p *Pipeline) runInventory(ctx context.Context, inv config.Inventory, summary *Summary) {
	log := logctx.FromContext(ctx)

	invDir := filepath.Join(p.cfg.DownloadDir, inv.Name)
	if fileutil.Exists(invDir) {
		if err := fileutil.CleanupTmpFiles(invDir); err != nil {
			log.Warn().Err(err).Msg("tmp cleanup incomplete")
		}
	}

	pre, post := window.Bracket(inv.Dates())
	log.Info().
		Str("pre_window", pre.String()).
		Str("post_window", post.String()).
		Msg("processing inventory")

	bbox, err := p.deps.Areas.Resolve(inv.Name, inv.AreaLayer)
	if err != nil {
		log.Error().Err(err).Msg("area resolution failed, skipping inventory")
		for _, win := range []window.Window{pre, post} {
			summary.Windows = append(summary.Windows, WindowResult{
				Inventory: inv.Name, Window: win, Status: StatusAreaFailed, Err: err,
			})
		}
		return
	}
	log.Debug().Str("bbox", bbox.String()).Msg("resolved study area")

	for _, win := range []window.Window{pre, post} {
		winCtx := logctx.WithStr(ctx, "window", win.String())
		result := p.runWindow(winCtx, inv.Name, win, bbox)
		summary.Windows = append(summary.Windows, result)
		if result.Download != nil {
			summary.Downloaded += result.Download.Downloaded
			summary.Skipped += result.Download.Skipped
			summary.Failed += result.Download.Failed
			summary.Bytes += result.Download.Bytes
		}
	}

	p.enrichTerrain(ctx, inv.Name, pre, summary)
}

// runWindow takes one window from mosaic lookup to merged raster.
func (p *Pipeline) runWindow(ctx context.Context, inventory string, win window.Window, bbox area.BBox) WindowResult {
	log := logctx.FromContext(ctx)
	result := WindowResult{Inventory: inventory, Window: win}

	mergedPath := win.MergedPath(p.cfg.DownloadDir, inventory)
	if fileutil.IsNonEmpty(mergedPath) {
		log.Info().Str("merged", mergedPath).Msg("window already merged, skipping")
		result.Status = StatusSkippedExists
		return result
	}

	mosaicName := win.MosaicName()
	ctx = logctx.WithStr(ctx, "mosaic_name", mosaicName)
	log = logctx.FromContext(ctx)

	mosaicID, err := p.deps.Catalog.ResolveMosaic(ctx, mosaicName)
	if err != nil {
		log.Warn().Err(err).Msg("no mosaic for window")
		result.Status = StatusNoMosaic
		result.Err = err
		return result
	}
	result.MosaicID = mosaicID

	quads, err := p.deps.Catalog.ListQuads(ctx, mosaicID, bbox)
	if err != nil || len(quads) == 0 {
		log.Warn().Err(err).Msg("no quads for window")
		result.Status = StatusNoQuads
		result.Err = err
		return result
	}
	result.QuadCount = len(quads)

	quadDir := win.QuadDir(p.cfg.DownloadDir, inventory)
	dl, err := p.deps.Downloads.FetchAll(ctx, quads, quadDir, win)
	result.Download = dl
	if err != nil {
		// Only context cancellation aborts a download pass.
		result.Status = StatusMergeFailed
		result.Err = err
		return result
	}

	if err := p.deps.Merger.Merge(ctx, quadDir, mergedPath); err != nil {
		log.Error().Err(err).Msg("merge failed")
		result.Status = StatusMergeFailed
		result.Err = err
		return result
	}

	result.Status = StatusMerged
	return result
}

// enrichTerrain fetches the inventory's DTM off the pre window's merged
// raster. Best effort: failures are logged and counted, never propagated.
func (p *Pipeline) enrichTerrain(ctx context.Context, inventory string, pre window.Window, summary *Summary) {
	if p.deps.Terrain == nil {
		return
	}
	log := logctx.FromContext(ctx)

	mergedPath := pre.MergedPath(p.cfg.DownloadDir, inventory)
	if !fileutil.IsNonEmpty(mergedPath) {
		log.Debug().Msg("no pre-window raster, skipping terrain")
		return
	}

	dtmPath := filepath.Join(p.cfg.DownloadDir, inventory, "dtm.tif")
	if err := p.deps.Terrain.Enrich(ctx, mergedPath, dtmPath); err != nil {
		log.Warn().Err(err).Msg("terrain enrichment failed")
		summary.TerrainFailed++
		return
	}
	summary.TerrainFetched++
}

// Describe returns a one-line human description of a window result.
func (r WindowResult) Describe() string {
	switch r.Status {
	case StatusMerged:
		return fmt.Sprintf("%s %s: merged %d quads", r.Inventory, r.Window, r.QuadCount)
	case StatusSkippedExists:
		return fmt.Sprintf("%s %s: already merged", r.Inventory, r.Window)
	default:
		return fmt.Sprintf("%s %s: %s", r.Inventory, r.Window, r.Status)
	}
}
