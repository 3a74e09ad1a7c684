package composite

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// AlignmentError reports that no common grid could be derived from the
// inputs. It is fatal: nothing downstream can run without a shared grid.
type AlignmentError struct {
	Msg string
}

func (e *AlignmentError) Error() string { return "alignment: " + e.Msg }

// CommonGrid is the shared pixel grid every site is resampled onto. Cells
// tile Bounds exactly: width and height are fixed at construction and the
// per-axis step is derived from them.
type CommonGrid struct {
	Bounds BoundingBox
	Width  int
	Height int
}

// LatStep is the vertical cell size in degrees.
func (g CommonGrid) LatStep() float64 { return g.Bounds.LatSpan() / float64(g.Height) }

// LonStep is the horizontal cell size in degrees.
func (g CommonGrid) LonStep() float64 { return g.Bounds.LonSpan() / float64(g.Width) }

// CellLat returns the latitude of the row's cell centers.
func (g CommonGrid) CellLat(row int) float64 {
	return g.Bounds.North - (float64(row)+0.5)*g.LatStep()
}

// CellLon returns the longitude of the column's cell centers.
func (g CommonGrid) CellLon(col int) float64 {
	return g.Bounds.West + (float64(col)+0.5)*g.LonStep()
}

// BuildCommonGrid computes the union bounding box of the loaded rasters and
// sizes the grid at resolutionDeg degrees per pixel on both axes. When
// resolutionDeg is zero the finest per-axis resolution among the inputs is
// used, so no site loses detail.
func BuildCommonGrid(rasters []*GeoRaster, resolutionDeg float64) (CommonGrid, error) {
	if len(rasters) == 0 {
		return CommonGrid{}, &AlignmentError{Msg: "no input rasters"}
	}
	if resolutionDeg < 0 || math.IsNaN(resolutionDeg) || math.IsInf(resolutionDeg, 0) {
		return CommonGrid{}, &AlignmentError{Msg: fmt.Sprintf("resolution %g degrees/pixel must be positive", resolutionDeg)}
	}
	bounds := rasters[0].Bounds
	resLat := rasters[0].LatPerPixel()
	resLon := rasters[0].LonPerPixel()
	for _, r := range rasters[1:] {
		bounds = bounds.Union(r.Bounds)
		resLat = math.Min(resLat, r.LatPerPixel())
		resLon = math.Min(resLon, r.LonPerPixel())
	}
	if resolutionDeg > 0 {
		resLat = resolutionDeg
		resLon = resolutionDeg
	}
	return CommonGrid{
		Bounds: bounds,
		Width:  spanCells(bounds.LonSpan(), resLon),
		Height: spanCells(bounds.LatSpan(), resLat),
	}, nil
}

// spanCells counts the cells of size step covering span. The epsilon keeps
// an exact multiple from spilling into an extra cell through float rounding.
func spanCells(span, step float64) int {
	return max(1, int(math.Ceil(span/step-1e-9)))
}

// Resample maps every grid cell center back into the source raster through
// the inverse affine transform of its bounding box and samples the nearest
// source pixel. Path-loss bands are categorical, so no interpolation: a
// blended value would sit between two incompatible bands. Cells whose center
// falls outside the source extent come back NaN. Deterministic: halfway
// points round toward the lower pixel index.
func Resample(g *GeoRaster, grid CommonGrid) *mat.Dense {
	out := mat.NewDense(grid.Height, grid.Width, nil)
	latPP := g.LatPerPixel()
	lonPP := g.LonPerPixel()
	for row := 0; row < grid.Height; row++ {
		lat := grid.CellLat(row)
		srcRow := nearestIndex((g.Bounds.North-lat)/latPP - 0.5)
		if srcRow < 0 || srcRow >= g.Height {
			for col := 0; col < grid.Width; col++ {
				out.Set(row, col, math.NaN())
			}
			continue
		}
		for col := 0; col < grid.Width; col++ {
			lon := grid.CellLon(col)
			srcCol := nearestIndex((lon-g.Bounds.West)/lonPP - 0.5)
			if srcCol < 0 || srcCol >= g.Width {
				out.Set(row, col, math.NaN())
				continue
			}
			out.Set(row, col, g.Cells.At(srcRow, srcCol))
		}
	}
	return out
}

// nearestIndex rounds a fractional pixel coordinate to the nearest integer,
// breaking .5 ties toward the lower index.
func nearestIndex(v float64) int {
	return int(math.Ceil(v - 0.5))
}
