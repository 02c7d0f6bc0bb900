// Package mosaic merges a directory of downloaded quads into one seamless
// GeoTIFF covering their combined extent.
package mosaic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/rs/zerolog"

	"github.com/basemapper/basemapper/pkg/fileutil"
)

// translateSwitches are the GDAL creation switches for merged outputs. LZW
// keeps the files compact; BIGTIFF is required because merged windows
// routinely exceed 4 GiB.
var translateSwitches = []string{
	"-of", "GTiff",
	"-co", "COMPRESS=LZW",
	"-co", "BIGTIFF=YES",
}

// MergeError indicates a window's quads could not be merged. No partial
// output file exists when it is returned.
type MergeError struct {
	QuadDir string
	Err     error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge quads in %s: %v", e.QuadDir, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Merger assembles merged rasters from quad directories.
type Merger struct {
	Logger zerolog.Logger
}

// Merge combines every .tiff in quadDir into a single raster at outPath.
// It is a no-op when outPath already exists with non-zero size, and when
// quadDir holds no quads. Quads are merged in filename order, so a later
// quad wins where extents overlap; with catalog quads the extents tile
// without overlap and the order is immaterial.
func (m Merger) Merge(ctx context.Context, quadDir, outPath string) error {
	log := m.Logger.With().Str("quad_dir", quadDir).Logger()

	if fileutil.IsNonEmpty(outPath) {
		log.Info().Str("out", outPath).Msg("merged raster already present, skipping")
		return nil
	}

	quads, err := listQuads(quadDir)
	if err != nil {
		return &MergeError{QuadDir: quadDir, Err: err}
	}
	if len(quads) == 0 {
		log.Warn().Msg("no quads to merge")
		return nil
	}

	if err := validateQuads(quads); err != nil {
		return &MergeError{QuadDir: quadDir, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err = fileutil.WriteTmpThenMove(outPath, func(tmpPath string) error {
		return translateQuads(quads, tmpPath)
	})
	if err != nil {
		return &MergeError{QuadDir: quadDir, Err: err}
	}

	log.Info().
		Str("event", "merge_completed").
		Str("out", outPath).
		Int("quad_count", len(quads)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("merged window raster")
	return nil
}

// listQuads returns the .tiff files in dir sorted by filename.
func listQuads(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read quad dir: %w", err)
	}

	var quads []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".tiff" {
			continue
		}
		quads = append(quads, filepath.Join(dir, e.Name()))
	}
	sort.Strings(quads)
	return quads, nil
}

// validateQuads opens every quad to catch truncated or corrupt files before
// any output is produced.
func validateQuads(quads []string) error {
	for _, path := range quads {
		ds, err := godal.Open(path)
		if err != nil {
			return fmt.Errorf("invalid quad %s: %w", filepath.Base(path), err)
		}
		ds.Close()
	}
	return nil
}

// translateQuads builds a virtual mosaic over the quads and materializes it
// at outPath.
func translateQuads(quads []string, outPath string) error {
	// The .tmp suffix keeps the intermediate VRT inside the cleanup sweep
	// for killed runs.
	vrtPath := outPath + ".vrt.tmp"
	defer os.Remove(vrtPath)

	vrt, err := godal.BuildVRT(vrtPath, quads, nil)
	if err != nil {
		return fmt.Errorf("build vrt: %w", err)
	}
	defer vrt.Close()

	out, err := vrt.Translate(outPath, translateSwitches)
	if err != nil {
		return fmt.Errorf("translate vrt: %w", err)
	}
	return out.Close()
}
