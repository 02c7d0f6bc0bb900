// Package terrain fetches a digital terrain model clipped to a merged
// raster's extent. Enrichment is best effort; callers log failures and
// keep going.
package terrain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/rs/zerolog"

	"github.com/basemapper/basemapper/pkg/catalog"
	"github.com/basemapper/basemapper/pkg/fileutil"
)

const (
	// DefaultBaseURL is the OpenTopography global DEM endpoint.
	DefaultBaseURL = "https://portal.opentopography.org/API/globaldem"

	// DefaultDEMType is the DEM product requested when none is configured.
	DefaultDEMType = "SRTMGL1"

	// DefaultTimeout is the default DEM transfer timeout.
	DefaultTimeout = 5 * time.Minute
)

// Config holds configuration for an elevation source.
type Config struct {
	// BaseURL is the DEM endpoint (optional).
	BaseURL string

	// DEMType selects the DEM product (optional).
	DEMType string

	// APIKey authenticates DEM requests (required by the public endpoint).
	APIKey string

	// HTTPClient executes DEM transfers (optional). If nil, a plain client
	// with Timeout is used.
	HTTPClient catalog.HTTPDoer

	// Timeout applies when HTTPClient is nil.
	Timeout time.Duration

	// Logger for terrain operations.
	Logger zerolog.Logger
}

// Elevations fetches clipped DEM rasters for merged windows.
type Elevations struct {
	baseURL    string
	demType    string
	apiKey     string
	httpClient catalog.HTTPDoer
	logger     zerolog.Logger
}

// New creates an elevation source, filling in defaults for unset fields.
func New(cfg Config) *Elevations {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	demType := cfg.DEMType
	if demType == "" {
		demType = DefaultDEMType
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Elevations{
		baseURL:    baseURL,
		demType:    demType,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Enrich downloads the DEM clipped to the extent of the raster at
// mergedPath and writes it to dtmPath. It is a no-op when dtmPath already
// exists with non-zero size.
func (e *Elevations) Enrich(ctx context.Context, mergedPath, dtmPath string) error {
	if fileutil.IsNonEmpty(dtmPath) {
		e.logger.Info().Str("dtm", dtmPath).Msg("terrain model already present, skipping")
		return nil
	}

	bounds, err := rasterBounds(mergedPath)
	if err != nil {
		return fmt.Errorf("terrain extent from %s: %w", mergedPath, err)
	}

	reqURL := fmt.Sprintf("%s?%s", e.baseURL, url.Values{
		"demtype":      {e.demType},
		"west":         {formatCoord(bounds[0])},
		"south":        {formatCoord(bounds[1])},
		"east":         {formatCoord(bounds[2])},
		"north":        {formatCoord(bounds[3])},
		"outputFormat": {"GTiff"},
		"API_Key":      {e.apiKey},
	}.Encode())

	start := time.Now()
	var transferred int64
	err = fileutil.WriteTmpThenMove(dtmPath, func(tmpPath string) error {
		n, err := e.transfer(ctx, reqURL, tmpPath)
		transferred = n
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch terrain model: %w", err)
	}

	e.logger.Info().
		Str("event", "terrain_completed").
		Str("dtm", dtmPath).
		Str("dem_type", e.demType).
		Int64("bytes", transferred).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("fetched terrain model")
	return nil
}

func (e *Elevations) transfer(ctx context.Context, reqURL, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("terrain request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("terrain server returned status %d", resp.StatusCode)
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
		return 0, fmt.Errorf("write terrain body: %w", err)
	}
	return n, nil
}

// rasterBounds returns the geographic extent of a raster in EPSG:4326 as
// (west, south, east, north).
func rasterBounds(path string) ([4]float64, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return [4]float64{}, fmt.Errorf("open raster: %w", err)
	}
	defer ds.Close()

	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return [4]float64{}, fmt.Errorf("spatial ref: %w", err)
	}
	defer sr.Close()

	bounds, err := ds.Bounds(godal.BoundsFromSRS(sr))
	if err != nil {
		return [4]float64{}, fmt.Errorf("raster bounds: %w", err)
	}
	return bounds, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
