package composite

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
)

// GeoRasterLoadError reports a site whose raster, legend or placement could
// not be turned into a GeoRaster. It is isolated to one site; the caller
// decides whether to skip the site or abort the run.
type GeoRasterLoadError struct {
	SiteID string
	Err    error
}

func (e *GeoRasterLoadError) Error() string {
	return fmt.Sprintf("site %s: %v", e.SiteID, e.Err)
}

func (e *GeoRasterLoadError) Unwrap() error { return e.Err }

// BoundingBox is the geographic rectangle a raster is draped over, in
// decimal degrees. North must exceed south and east must exceed west;
// antimeridian wrapping is not supported.
type BoundingBox struct {
	North float64
	South float64
	East  float64
	West  float64
}

func (b BoundingBox) Validate() error {
	for _, v := range [4]float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bounding box has non-finite corner: %+v", b)
		}
	}
	if b.North <= b.South {
		return fmt.Errorf("bounding box north %g must exceed south %g", b.North, b.South)
	}
	if b.East <= b.West {
		return fmt.Errorf("bounding box east %g must exceed west %g", b.East, b.West)
	}
	return nil
}

// LatSpan is the north-south extent in degrees.
func (b BoundingBox) LatSpan() float64 { return b.North - b.South }

// LonSpan is the east-west extent in degrees.
func (b BoundingBox) LonSpan() float64 { return b.East - b.West }

// Union returns the smallest bounding box containing both.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		North: math.Max(b.North, o.North),
		South: math.Min(b.South, o.South),
		East:  math.Max(b.East, o.East),
		West:  math.Min(b.West, o.West),
	}
}

// GeoRaster is one site's decoded coverage surface: a Height×Width grid of
// path-loss values in dB positioned over Bounds. Cells hold NaN where the
// source pixel carried no data. Read-only after LoadGeoRaster.
type GeoRaster struct {
	SiteID string
	Bounds BoundingBox
	Width  int
	Height int
	Cells  *mat.Dense
}

// LatPerPixel is the vertical resolution in degrees per pixel.
func (g *GeoRaster) LatPerPixel() float64 { return g.Bounds.LatSpan() / float64(g.Height) }

// LonPerPixel is the horizontal resolution in degrees per pixel.
func (g *GeoRaster) LonPerPixel() float64 { return g.Bounds.LonSpan() / float64(g.Width) }

// LoadGeoRaster decodes every pixel of img through the color scale and
// positions the resulting value grid over bounds. No resampling happens
// here; the grid keeps the source raster's dimensions.
func LoadGeoRaster(siteID string, img image.Image, scale *ColorScale, bounds BoundingBox) (*GeoRaster, error) {
	if img == nil {
		return nil, &GeoRasterLoadError{SiteID: siteID, Err: fmt.Errorf("nil image")}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, &GeoRasterLoadError{SiteID: siteID, Err: fmt.Errorf("image dimensions %dx%d must be positive", w, h)}
	}
	if err := bounds.Validate(); err != nil {
		return nil, &GeoRasterLoadError{SiteID: siteID, Err: err}
	}
	cells := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			db, ok := scale.Decode(img.At(b.Min.X+x, b.Min.Y+y))
			if !ok {
				db = math.NaN()
			}
			cells.Set(y, x, db)
		}
	}
	return &GeoRaster{
		SiteID: siteID,
		Bounds: bounds,
		Width:  w,
		Height: h,
		Cells:  cells,
	}, nil
}
