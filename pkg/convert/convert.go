// Package convert assembles a study-area GeoPackage from shapefile layers,
// the format inventories are usually published in.
package convert

import (
	"fmt"
	"os"

	"github.com/airbusgeo/godal"
	"github.com/rs/zerolog"

	"github.com/basemapper/basemapper/pkg/fileutil"
)

// Layer names one shapefile to import and the layer name it gets in the
// output GeoPackage.
type Layer struct {
	Name string
	Path string
}

// ToGeoPackage writes each source layer into a single GeoPackage at outPath,
// replacing any existing file. Missing source shapefiles are logged and
// skipped; the output is produced as long as at least one layer imports.
func ToGeoPackage(layers []Layer, outPath string, logger zerolog.Logger) error {
	if len(layers) == 0 {
		return fmt.Errorf("no layers to convert")
	}

	var present []Layer
	for _, l := range layers {
		if !fileutil.Exists(l.Path) {
			logger.Warn().Str("layer", l.Name).Str("path", l.Path).Msg("source shapefile missing, skipping")
			continue
		}
		present = append(present, l)
	}
	if len(present) == 0 {
		return fmt.Errorf("none of the %d source shapefiles exist", len(layers))
	}

	err := fileutil.WriteTmpThenMove(outPath, func(tmpPath string) error {
		for i, l := range present {
			if err := importLayer(l, tmpPath, i > 0); err != nil {
				return fmt.Errorf("import layer %q: %w", l.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("event", "convert_completed").
		Str("out", outPath).
		Int("layers", len(present)).
		Msg("wrote geopackage")
	return nil
}

// importLayer copies one shapefile into the GeoPackage. update appends to
// an output that already holds earlier layers.
func importLayer(l Layer, outPath string, update bool) error {
	src, err := godal.Open(l.Path, godal.VectorOnly())
	if err != nil {
		return fmt.Errorf("open shapefile: %w", err)
	}
	defer src.Close()

	switches := []string{"-f", "GPKG", "-nln", l.Name}
	if update {
		switches = append(switches, "-update")
	}

	dst, err := src.VectorTranslate(outPath, switches)
	if err != nil {
		// A half-written first layer would leave a broken container for
		// the next import.
		if !update {
			os.Remove(outPath)
		}
		return fmt.Errorf("vector translate: %w", err)
	}
	return dst.Close()
}
