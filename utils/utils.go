// Package utils holds the file-boundary helpers around the compositing
// engine: raster decoding (PNG, BMP, TIFF and SPLAT!'s PPM output), image
// persistence, and palette tooling for rasters whose colors drifted off the
// discrete legend palette through lossy recompression.
package utils

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ReadRaster decodes a coverage raster from disk. PNG, BMP and TIFF go
// through the standard decoder registry; .ppm files (SPLAT!'s native
// output) are decoded directly.
func ReadRaster(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".ppm") {
		img, err := DecodePPM(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, nil
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// DecodePPM reads a P6 (binary) or P3 (ASCII) PPM image with an 8-bit
// maxval. SPLAT! emits P6/255, so deeper samples are rejected rather than
// quietly truncated.
func DecodePPM(r io.Reader) (image.Image, error) {
	br := bufio.NewReader(r)
	magic, err := ppmToken(br)
	if err != nil {
		return nil, fmt.Errorf("ppm: %w", err)
	}
	if magic != "P6" && magic != "P3" {
		return nil, fmt.Errorf("ppm: unsupported magic %q", magic)
	}
	var w, h, maxval int
	for _, dst := range []*int{&w, &h, &maxval} {
		tok, err := ppmToken(br)
		if err != nil {
			return nil, fmt.Errorf("ppm: %w", err)
		}
		if _, err := fmt.Sscanf(tok, "%d", dst); err != nil {
			return nil, fmt.Errorf("ppm: bad header field %q", tok)
		}
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("ppm: dimensions %dx%d must be positive", w, h)
	}
	if maxval <= 0 || maxval > 255 {
		return nil, fmt.Errorf("ppm: maxval %d out of 8-bit range", maxval)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	scale := 255.0 / float64(maxval)
	if magic == "P6" {
		buf := make([]byte, w*h*3)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("ppm: short pixel data: %w", err)
		}
		for i := 0; i < len(buf); i += 3 {
			p := i / 3 * 4
			img.Pix[p] = uint8(float64(buf[i])*scale + 0.5)
			img.Pix[p+1] = uint8(float64(buf[i+1])*scale + 0.5)
			img.Pix[p+2] = uint8(float64(buf[i+2])*scale + 0.5)
			img.Pix[p+3] = 255
		}
		return img, nil
	}
	for p := 0; p < w*h*4; p += 4 {
		for ch := 0; ch < 3; ch++ {
			tok, err := ppmToken(br)
			if err != nil {
				return nil, fmt.Errorf("ppm: short pixel data: %w", err)
			}
			var v int
			if _, err := fmt.Sscanf(tok, "%d", &v); err != nil || v < 0 || v > maxval {
				return nil, fmt.Errorf("ppm: bad sample %q", tok)
			}
			img.Pix[p+ch] = uint8(float64(v)*scale + 0.5)
		}
		img.Pix[p+3] = 255
	}
	return img, nil
}

// ppmToken returns the next whitespace-delimited token, skipping #-comments.
func ppmToken(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			if sb.Len() > 0 && err == io.EOF {
				return sb.String(), nil
			}
			return "", err
		}
		switch {
		case b == '#':
			if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
				return "", err
			}
		case b == ' ' || b == '\t' || b == '\r' || b == '\n':
			if sb.Len() > 0 {
				return sb.String(), nil
			}
		default:
			sb.WriteByte(b)
		}
	}
}

// SaveImage writes img to filename as PNG.
func SaveImage(img image.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// SnapToPalette maps every pixel onto the nearest palette color within
// maxDist (Lab distance). Pixels farther than maxDist from every palette
// color, and fully transparent pixels, come out transparent. This repairs
// rasters that picked up off-palette colors through recompression so the
// legend decoder can keep exact matching.
func SnapToPalette(img image.Image, palette []colorful.Color, maxDist float64) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r16, g16, b16, a16 := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if a16 == 0 {
				continue
			}
			px := colorful.Color{
				R: float64(r16>>8) / 255.0,
				G: float64(g16>>8) / 255.0,
				B: float64(b16>>8) / 255.0,
			}
			best := -1
			bestDist := math.Inf(1)
			for i, pc := range palette {
				if d := px.DistanceLab(pc); d < bestDist {
					bestDist = d
					best = i
				}
			}
			if best < 0 || bestDist > maxDist {
				continue
			}
			c := palette[best]
			out.SetNRGBA(x, y, color.NRGBA{
				R: uint8(c.R*255 + 0.5),
				G: uint8(c.G*255 + 0.5),
				B: uint8(c.B*255 + 0.5),
				A: 255,
			})
		}
	}
	return out
}

// UnmatchedColors extracts the dominant colors of a raster and reports the
// ones farther than maxDist (Lab distance) from every palette color. A
// non-empty result means the raster carries colors its legend cannot
// explain, usually a legend/raster mismatch or recompression damage.
func UnmatchedColors(img image.Image, palette []colorful.Color, maxDist float64) []colorful.Color {
	var unmatched []colorful.Color
	for _, c := range ExtractPalette(img, 12, PaletteMethodDominantColor) {
		matched := false
		for _, pc := range palette {
			if c.DistanceLab(pc) <= maxDist {
				matched = true
				break
			}
		}
		if !matched {
			unmatched = append(unmatched, c)
		}
	}
	return unmatched
}

type PaletteMethod int

const (
	PaletteMethodDominantColor PaletteMethod = iota
	PaletteMethodKMeans
)

func (m PaletteMethod) String() string {
	switch m {
	case PaletteMethodKMeans:
		return "kmeans"
	default:
		return "dominantcolor"
	}
}

// ExtractPalette estimates the k most prominent colors in a raster.
func ExtractPalette(img image.Image, k int, method PaletteMethod) []colorful.Color {
	switch method {
	case PaletteMethodKMeans:
		p := ExtractKMeansPalette(img, k)
		if len(p) != 0 {
			return p
		}
		log.Println("palette warning: kmeans returned empty palette, falling back to dominantcolor")
		return ExtractDominantPalette(img, k)
	default:
		return ExtractDominantPalette(img, k)
	}
}

// ExtractDominantPalette ranks candidate colors by coverage weight.
func ExtractDominantPalette(img image.Image, k int) []colorful.Color {
	if k <= 0 {
		return nil
	}
	candidates := dominantcolor.FindWeight(img, max(k, 8))
	out := make([]colorful.Color, 0, min(k, len(candidates)))
	for _, c := range candidates {
		col, ok := colorful.MakeColor(c.RGBA)
		if !ok {
			continue
		}
		out = append(out, col.Clamped())
		if len(out) == k {
			break
		}
	}
	return out
}

// ExtractKMeansPalette clusters a pixel subsample and returns cluster
// centers ordered by population. Coverage rasters have large flat regions,
// so the big clusters land on the legend bands.
func ExtractKMeansPalette(img image.Image, k int) []colorful.Color {
	if k <= 0 {
		return nil
	}
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	// Subsample to keep kmeans tractable on large coverage maps.
	maxSamples := 12000
	step := 1
	if width*height > maxSamples {
		step = int(math.Sqrt(float64(width*height)/float64(maxSamples))) + 1
	}
	dataset := make(clusters.Observations, 0, min(width*height, maxSamples))
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r16, g16, b16, a16 := img.At(x, y).RGBA()
			if a16 == 0 {
				continue
			}
			dataset = append(dataset, clusters.Coordinates{
				float64(r16) / 65535.0,
				float64(g16) / 65535.0,
				float64(b16) / 65535.0,
			})
		}
	}
	if len(dataset) < k {
		return nil
	}

	km := kmeans.New()
	cc, err := km.Partition(dataset, k)
	if err != nil || len(cc) == 0 {
		return nil
	}
	slices.SortFunc(cc, func(a, b clusters.Cluster) int {
		return len(b.Observations) - len(a.Observations)
	})

	out := make([]colorful.Color, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 {
			continue
		}
		out = append(out, colorful.Color{
			R: c.Center[0],
			G: c.Center[1],
			B: c.Center[2],
		}.Clamped())
	}
	return out
}
