package composite

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/mat"
)

// RenderValues paints the output grid through the color scale. Cells that
// are NaN or exceed thresholdDB (exclusive: a value exactly at the threshold
// is still acceptable loss) come out fully transparent. The threshold is
// enforced here, once, so strategies never duplicate it.
func RenderValues(values *mat.Dense, scale *ColorScale, thresholdDB float64) *image.NRGBA {
	h, w := values.Dims()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := values.At(y, x)
			if math.IsNaN(v) || v > thresholdDB {
				continue // stays transparent
			}
			img.SetNRGBA(x, y, scale.Encode(v))
		}
	}
	return img
}

// RenderOwners paints a best-server dominance map: each cell takes the
// winning site's palette color, masked by the same NaN/threshold rule as
// RenderValues so both renderings agree on coverage extent.
func RenderOwners(values *mat.Dense, owners []int, thresholdDB float64) *image.NRGBA {
	h, w := values.Dims()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := values.At(y, x)
			if math.IsNaN(v) || v > thresholdDB {
				continue
			}
			owner := owners[y*w+x]
			if owner == NoOwner {
				continue
			}
			img.SetNRGBA(x, y, SiteColor(owner))
		}
	}
	return img
}

// Legend strip layout, shared by the dB and site legends.
const (
	legendEntryHeight = 30
	legendBoxWidth    = 40
	legendBoxHeight   = 25
	legendPadding     = 5
	legendMargin      = 5
)

// RenderScaleLegend draws one row per color stop: a right-aligned dB label
// next to a swatch of the stop's color, on a transparent background.
func RenderScaleLegend(scale *ColorScale) *image.NRGBA {
	stops := scale.Stops()
	labels := make([]string, len(stops))
	swatches := make([]color.NRGBA, len(stops))
	for i, s := range stops {
		labels[i] = fmt.Sprintf("%.0f dB", s.LossDB)
		swatches[i] = s.Color
	}
	return renderLegendStrip(labels, swatches)
}

// RenderSiteLegend draws one row per site name with its assigned palette
// color, in loading order, to accompany a best-server dominance map.
func RenderSiteLegend(siteIDs []string) *image.NRGBA {
	swatches := make([]color.NRGBA, len(siteIDs))
	for i := range siteIDs {
		swatches[i] = SiteColor(i)
	}
	return renderLegendStrip(siteIDs, swatches)
}

func renderLegendStrip(labels []string, swatches []color.NRGBA) *image.NRGBA {
	face := basicfont.Face7x13
	maxTextWidth := 0
	for _, label := range labels {
		if w := font.MeasureString(face, label).Ceil(); w > maxTextWidth {
			maxTextWidth = w
		}
	}
	totalWidth := legendMargin + maxTextWidth + legendPadding + legendBoxWidth
	totalHeight := len(labels)*legendEntryHeight + 2*legendPadding
	img := image.NewNRGBA(image.Rect(0, 0, totalWidth, totalHeight))

	y := legendPadding
	for i, label := range labels {
		textWidth := font.MeasureString(face, label).Ceil()
		textX := totalWidth - legendBoxWidth - legendPadding - textWidth
		baseline := y + face.Metrics().Ascent.Ceil() + (legendBoxHeight-face.Metrics().Height.Ceil())/2

		// Black outline behind white text keeps labels legible over
		// whatever map imagery the overlay lands on.
		for _, off := range [4][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}} {
			drawString(img, label, face, textX+off[0], baseline+off[1], color.NRGBA{0, 0, 0, 255})
		}
		drawString(img, label, face, textX, baseline, color.NRGBA{255, 255, 255, 255})

		swatch := image.Rect(totalWidth-legendBoxWidth, y, totalWidth, y+legendBoxHeight)
		draw.Draw(img, swatch, image.NewUniform(swatches[i]), image.Point{}, draw.Src)
		drawRectOutline(img, swatch, color.NRGBA{0, 0, 0, 255})

		y += legendEntryHeight
	}
	return img
}

func drawString(dst draw.Image, s string, face font.Face, x, y int, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawRectOutline(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetNRGBA(x, r.Min.Y, c)
		img.SetNRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetNRGBA(r.Min.X, y, c)
		img.SetNRGBA(r.Max.X-1, y, c)
	}
}
