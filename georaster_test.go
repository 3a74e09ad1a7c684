package composite

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniformImage fills a w×h raster with one color.
func uniformImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestLoadGeoRaster(t *testing.T) {
	t.Parallel()
	cs := mustScale(t, testScaleSrc)
	bounds := BoundingBox{North: 1, South: 0, East: 1, West: 0}

	t.Run("decodes pixels and marks no-data", func(t *testing.T) {
		t.Parallel()
		img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
		img.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})   // 80 dB
		img.SetNRGBA(1, 0, color.NRGBA{0, 0, 255, 255})   // 160 dB
		img.SetNRGBA(0, 1, color.NRGBA{0, 0, 0, 0})       // transparent
		img.SetNRGBA(1, 1, color.NRGBA{13, 37, 42, 255})  // off-palette

		g, err := LoadGeoRaster("siteA", img, cs, bounds)
		require.NoError(t, err)
		assert.Equal(t, "siteA", g.SiteID)
		assert.Equal(t, 2, g.Width)
		assert.Equal(t, 2, g.Height)
		assert.Equal(t, 80.0, g.Cells.At(0, 0))
		assert.Equal(t, 160.0, g.Cells.At(0, 1))
		assert.True(t, math.IsNaN(g.Cells.At(1, 0)))
		assert.True(t, math.IsNaN(g.Cells.At(1, 1)))
	})

	t.Run("resolution helpers", func(t *testing.T) {
		t.Parallel()
		img := uniformImage(4, 2, color.NRGBA{255, 0, 0, 255})
		g, err := LoadGeoRaster("siteA", img, cs, BoundingBox{North: 2, South: 0, East: 8, West: 0})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, g.LatPerPixel(), 1e-12)
		assert.InDelta(t, 2.0, g.LonPerPixel(), 1e-12)
	})

	t.Run("invalid bounding box", func(t *testing.T) {
		t.Parallel()
		img := uniformImage(1, 1, color.NRGBA{255, 0, 0, 255})
		_, err := LoadGeoRaster("siteB", img, cs, BoundingBox{North: 0, South: 1, East: 1, West: 0})
		var lerr *GeoRasterLoadError
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, "siteB", lerr.SiteID)
	})

	t.Run("nil image", func(t *testing.T) {
		t.Parallel()
		_, err := LoadGeoRaster("siteC", nil, cs, bounds)
		var lerr *GeoRasterLoadError
		require.ErrorAs(t, err, &lerr)
	})

	t.Run("empty image", func(t *testing.T) {
		t.Parallel()
		_, err := LoadGeoRaster("siteD", image.NewNRGBA(image.Rect(0, 0, 0, 0)), cs, bounds)
		var lerr *GeoRasterLoadError
		require.ErrorAs(t, err, &lerr)
	})
}

func TestBoundingBoxUnion(t *testing.T) {
	t.Parallel()
	a := BoundingBox{North: 2, South: 0, East: 2, West: 0}
	b := BoundingBox{North: 3, South: 1, East: 3, West: 1}
	got := a.Union(b)
	assert.Equal(t, BoundingBox{North: 3, South: 0, East: 3, West: 0}, got)
	assert.Equal(t, got, b.Union(a))
}

func TestBoundingBoxValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, BoundingBox{North: 1, South: 0, East: 1, West: 0}.Validate())
	assert.Error(t, BoundingBox{North: 0, South: 0, East: 1, West: 0}.Validate())
	assert.Error(t, BoundingBox{North: 1, South: 0, East: 0, West: 0}.Validate())
	assert.Error(t, BoundingBox{North: math.NaN(), South: 0, East: 1, West: 0}.Validate())
}
