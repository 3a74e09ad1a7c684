package composite

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// LegendParseError reports a malformed color-scale source. Parsing stops at
// the first bad entry: a broken scale would silently corrupt every decoded
// pixel downstream, so it is never recoverable.
type LegendParseError struct {
	Line int
	Msg  string
}

func (e *LegendParseError) Error() string {
	return fmt.Sprintf("color scale: line %d: %s", e.Line, e.Msg)
}

// Stop pairs a path-loss value in dB with the raster color that encodes it.
type Stop struct {
	LossDB float64
	Color  color.NRGBA
}

// ColorScale is an immutable ordered color band mapping raster pixel colors
// to path-loss values and back. Stops are ordered by non-decreasing loss;
// the first stop is the strongest signal.
type ColorScale struct {
	// Tolerance is the maximum Lab-space distance at which a pixel color
	// still matches a stop. Zero means exact RGB matches only, which is
	// correct for rasters that kept their discrete palette.
	Tolerance float64

	stops []Stop
	lab   []colorful.Color
	exact map[[3]uint8]float64
}

// Entry fields may be separated by semicolons, colons or commas, as in
// SPLAT! .lcf scale files: "150; 0; 255, 0".
var stopSeparator = regexp.MustCompile(`[;:,]\s*`)

// ParseColorScale reads an LCF-style color band: one "loss_db; r; g; b"
// entry per line, blank lines and #-comments ignored. Entries must appear in
// non-decreasing loss order.
func ParseColorScale(r io.Reader) (*ColorScale, error) {
	cs := &ColorScale{exact: make(map[[3]uint8]float64)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	prev := math.Inf(-1)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		parts := stopSeparator.Split(line, -1)
		if len(parts) < 4 {
			return nil, &LegendParseError{Line: lineNo, Msg: fmt.Sprintf("want loss;r;g;b, got %q", line)}
		}
		db, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, &LegendParseError{Line: lineNo, Msg: fmt.Sprintf("bad loss value %q", parts[0])}
		}
		var rgb [3]uint8
		for i := 0; i < 3; i++ {
			v, err := strconv.Atoi(strings.TrimSpace(parts[i+1]))
			if err != nil || v < 0 || v > 255 {
				return nil, &LegendParseError{Line: lineNo, Msg: fmt.Sprintf("bad channel value %q", parts[i+1])}
			}
			rgb[i] = uint8(v)
		}
		if db < prev {
			return nil, &LegendParseError{Line: lineNo, Msg: fmt.Sprintf("loss %g dB out of order (previous %g dB)", db, prev)}
		}
		prev = db
		c := color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}
		cs.stops = append(cs.stops, Stop{LossDB: db, Color: c})
		cs.lab = append(cs.lab, colorful.Color{
			R: float64(rgb[0]) / 255.0,
			G: float64(rgb[1]) / 255.0,
			B: float64(rgb[2]) / 255.0,
		})
		if _, dup := cs.exact[rgb]; !dup {
			// First occurrence wins ties: lower loss, stronger signal.
			cs.exact[rgb] = db
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &LegendParseError{Line: lineNo, Msg: err.Error()}
	}
	if len(cs.stops) == 0 {
		return nil, &LegendParseError{Line: lineNo, Msg: "no color stops found"}
	}
	return cs, nil
}

// Stops returns the ordered color band.
func (cs *ColorScale) Stops() []Stop { return cs.stops }

// Palette returns the stop colors in band order, for palette audits and
// snapping in the utils package.
func (cs *ColorScale) Palette() []colorful.Color {
	out := make([]colorful.Color, len(cs.lab))
	copy(out, cs.lab)
	return out
}

// Decode maps a pixel color to its path-loss value. The second return is
// false for no-data pixels: fully transparent sources, and colors farther
// than Tolerance from every stop (background, ocean fill).
func (cs *ColorScale) Decode(c color.Color) (float64, bool) {
	r16, g16, b16, a16 := c.RGBA()
	if a16 == 0 {
		return 0, false
	}
	rgb := [3]uint8{uint8(r16 >> 8), uint8(g16 >> 8), uint8(b16 >> 8)}
	if db, ok := cs.exact[rgb]; ok {
		return db, true
	}
	if cs.Tolerance <= 0 {
		return 0, false
	}
	px := colorful.Color{
		R: float64(rgb[0]) / 255.0,
		G: float64(rgb[1]) / 255.0,
		B: float64(rgb[2]) / 255.0,
	}
	bestDB := 0.0
	bestDist := math.Inf(1)
	for i, lc := range cs.lab {
		// Strict < keeps the first (lowest-loss) stop on distance ties.
		if d := px.DistanceLab(lc); d < bestDist {
			bestDist = d
			bestDB = cs.stops[i].LossDB
		}
	}
	if bestDist > cs.Tolerance {
		return 0, false
	}
	return bestDB, true
}

// Encode maps a path-loss value back to its band color, clamping below the
// strongest stop. Values worse than the last stop return the transparent
// no-data color.
func (cs *ColorScale) Encode(db float64) color.NRGBA {
	if math.IsNaN(db) || db > cs.stops[len(cs.stops)-1].LossDB {
		return color.NRGBA{}
	}
	best := 0
	bestDist := math.Inf(1)
	for i, s := range cs.stops {
		// Strict < prefers the lower-loss stop when db is equidistant.
		if d := math.Abs(db - s.LossDB); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return cs.stops[best].Color
}
