package composite

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestRenderValuesThreshold(t *testing.T) {
	t.Parallel()
	cs := mustScale(t, testScaleSrc)
	values := mat.NewDense(1, 4, []float64{150, 150.0001, 120, math.NaN()})

	img := RenderValues(values, cs, 150)

	// Exactly at the threshold is still acceptable loss.
	assert.Equal(t, color.NRGBA{0, 128, 128, 255}, img.NRGBAAt(0, 0))
	// Epsilon over the threshold is masked.
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{255, 255, 0, 255}, img.NRGBAAt(2, 0))
	// No-data renders transparent.
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(3, 0))
}

func TestRenderOwners(t *testing.T) {
	t.Parallel()
	values := mat.NewDense(1, 3, []float64{120, 160, math.NaN()})
	owners := []int{1, 0, NoOwner}

	img := RenderOwners(values, owners, 150)

	assert.Equal(t, SiteColor(1), img.NRGBAAt(0, 0))
	// Over threshold: masked even though a site won the cell.
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(2, 0))
}

func TestRenderScaleLegend(t *testing.T) {
	t.Parallel()
	cs := mustScale(t, testScaleSrc)
	img := RenderScaleLegend(cs)

	bounds := img.Bounds()
	require.Equal(t, len(cs.Stops())*legendEntryHeight+2*legendPadding, bounds.Dy())
	require.Greater(t, bounds.Dx(), legendBoxWidth+legendPadding+legendMargin)

	// Sample inside the first swatch: the strongest stop's color.
	x := bounds.Dx() - legendBoxWidth/2
	y := legendPadding + legendBoxHeight/2
	assert.Equal(t, cs.Stops()[0].Color, img.NRGBAAt(x, y))
}

func TestRenderSiteLegend(t *testing.T) {
	t.Parallel()
	img := RenderSiteLegend([]string{"alpha", "bravo", "charlie"})

	bounds := img.Bounds()
	require.Equal(t, 3*legendEntryHeight+2*legendPadding, bounds.Dy())

	x := bounds.Dx() - legendBoxWidth/2
	for i := 0; i < 3; i++ {
		y := legendPadding + i*legendEntryHeight + legendBoxHeight/2
		assert.Equal(t, SiteColor(i), img.NRGBAAt(x, y), "site %d swatch", i)
	}
}
