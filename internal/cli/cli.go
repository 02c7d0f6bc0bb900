// Package cli implements the command-line interface for basemapper.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/airbusgeo/godal"

	"github.com/basemapper/basemapper/internal/logctx"
	"github.com/basemapper/basemapper/pkg/area"
	"github.com/basemapper/basemapper/pkg/catalog"
	"github.com/basemapper/basemapper/pkg/config"
	"github.com/basemapper/basemapper/pkg/convert"
	"github.com/basemapper/basemapper/pkg/download"
	"github.com/basemapper/basemapper/pkg/logging"
	"github.com/basemapper/basemapper/pkg/mosaic"
	"github.com/basemapper/basemapper/pkg/pipeline"
	"github.com/basemapper/basemapper/pkg/terrain"
)

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: basemapper <command> [options]\ncommands: run, convert")
	}

	switch args[0] {
	case "run":
		return runAcquisition(args[1:])
	case "convert":
		return runConvert(args[1:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runAcquisition(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "run.yaml", "run configuration file")
	keyPath := fs.String("key", "", "credentials file (overrides config)")
	outDir := fs.String("out", "", "download root directory (overrides config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-friendly console output")

	if err := fs.Parse(args); err != nil {
		return err
	}

	logging.Init(*debug, *human)
	godal.RegisterAll()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *keyPath != "" {
		cfg.CredentialsPath = *keyPath
	}
	if *outDir != "" {
		cfg.DownloadDir = *outDir
	}

	apiKey, err := config.LoadCredentials(cfg.CredentialsPath)
	if err != nil {
		return err
	}

	log := logging.L()
	deps := pipeline.Deps{
		Areas: area.Resolver{Dir: cfg.InventoryDir},
		Catalog: catalog.NewClient(catalog.ClientConfig{
			APIKey:  apiKey,
			BaseURL: cfg.CatalogURL,
			Logger:  *log,
		}),
		Downloads: download.New(download.Config{Logger: *log}),
		Merger:    mosaic.Merger{Logger: *log},
	}
	if cfg.Elevation.IsEnabled() {
		deps.Terrain = terrain.New(terrain.Config{
			BaseURL: cfg.Elevation.BaseURL,
			DEMType: cfg.Elevation.DEMType,
			APIKey:  cfg.Elevation.APIKey,
			Logger:  *log,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logctx.WithLogger(ctx, *log)

	// Per-window failures are reported in the summary and logged; only a
	// cancelled run exits non-zero.
	_, err = pipeline.New(cfg, deps).Run(ctx)
	return err
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	gpkgPath := fs.String("gpkg", "", "output GeoPackage path")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-friendly console output")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *gpkgPath == "" {
		return errors.New("--gpkg is required")
	}

	layers, err := parseLayerArgs(fs.Args())
	if err != nil {
		return err
	}
	if len(layers) == 0 {
		return errors.New("at least one layer=shapefile argument is required")
	}

	logging.Init(*debug, *human)
	godal.RegisterAll()

	return convert.ToGeoPackage(layers, *gpkgPath, *logging.L())
}

// parseLayerArgs turns positional name=path arguments into layers, keeping
// argument order.
func parseLayerArgs(args []string) ([]convert.Layer, error) {
	layers := make([]convert.Layer, 0, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("malformed layer argument %q, want name=path.shp", arg)
		}
		layers = append(layers, convert.Layer{Name: name, Path: path})
	}
	return layers, nil
}
