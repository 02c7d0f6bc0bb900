// Package area resolves a study-area GeoPackage layer to a geographic
// bounding box.
package area

import (
	"fmt"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

// TargetEPSG is the coordinate system all bounding boxes are expressed in.
const TargetEPSG = 4326

// BBox is an axis-aligned bounding box (minX, minY, maxX, maxY) in the
// target coordinate system.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// Valid reports whether the box is non-degenerate.
func (b BBox) Valid() bool {
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

// String returns the box in "minx,miny,maxx,maxy" query form.
func (b BBox) String() string {
	return fmt.Sprintf("%v,%v,%v,%v", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Union returns the smallest box enclosing both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		MinX: min(b.MinX, o.MinX),
		MinY: min(b.MinY, o.MinY),
		MaxX: max(b.MaxX, o.MaxX),
		MaxY: max(b.MaxY, o.MaxY),
	}
}

// GeometryError indicates the area source file or layer could not be read.
type GeometryError struct {
	Path  string
	Layer string
	Err   error
}

func (e *GeometryError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("read area layer %q from %s: %v", e.Layer, e.Path, e.Err)
	}
	return fmt.Sprintf("read area source %s: %v", e.Path, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

// ReprojectionError indicates the area geometry could not be expressed in
// the target coordinate system.
type ReprojectionError struct {
	Path string
	Err  error
}

func (e *ReprojectionError) Error() string {
	return fmt.Sprintf("reproject area %s to EPSG:%d: %v", e.Path, TargetEPSG, e.Err)
}

func (e *ReprojectionError) Unwrap() error { return e.Err }

// Resolver turns inventory names into bounding boxes. It has no state
// beyond its configuration; every Resolve is an independent read.
type Resolver struct {
	// Dir holds one GeoPackage per inventory, named <inventory>.gpkg.
	Dir string
}

// Resolve loads the named layer from the inventory's GeoPackage and returns
// the bounding box enclosing all its features, reprojected to EPSG:4326.
func (r Resolver) Resolve(inventory, layer string) (BBox, error) {
	path := filepath.Join(r.Dir, inventory+".gpkg")

	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return BBox{}, &GeometryError{Path: path, Err: err}
	}
	defer ds.Close()

	var found *godal.Layer
	for _, l := range ds.Layers() {
		if l.Name() == layer {
			found = &l
			break
		}
	}
	if found == nil {
		return BBox{}, &GeometryError{Path: path, Layer: layer, Err: fmt.Errorf("layer not found")}
	}

	target, err := godal.NewSpatialRefFromEPSG(TargetEPSG)
	if err != nil {
		return BBox{}, &ReprojectionError{Path: path, Err: err}
	}
	defer target.Close()

	var bbox BBox
	count := 0
	found.ResetReading()
	for f := found.NextFeature(); f != nil; f = found.NextFeature() {
		g := f.Geometry()
		if g == nil {
			f.Close()
			continue
		}
		bounds, err := g.Bounds(godal.BoundsFromSRS(target))
		f.Close()
		if err != nil {
			return BBox{}, &ReprojectionError{Path: path, Err: err}
		}

		fb := BBox{MinX: bounds[0], MinY: bounds[1], MaxX: bounds[2], MaxY: bounds[3]}
		if count == 0 {
			bbox = fb
		} else {
			bbox = bbox.Union(fb)
		}
		count++
	}

	if count == 0 {
		return BBox{}, &GeometryError{Path: path, Layer: layer, Err: fmt.Errorf("layer has no features")}
	}
	return bbox, nil
}
