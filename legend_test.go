package composite

import (
	"errors"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScaleSrc = `# SPLAT! path-loss color scale
80; 255; 0; 0
100: 255: 165: 0
120, 255, 255, 0
140; 0; 255; 0
150; 0; 128; 128
160; 0; 0; 255
`

func mustScale(t *testing.T, src string) *ColorScale {
	t.Helper()
	cs, err := ParseColorScale(strings.NewReader(src))
	require.NoError(t, err)
	return cs
}

func TestParseColorScale(t *testing.T) {
	t.Parallel()

	t.Run("mixed separators and comments", func(t *testing.T) {
		t.Parallel()
		cs := mustScale(t, testScaleSrc)
		require.Len(t, cs.Stops(), 6)
		assert.Equal(t, 80.0, cs.Stops()[0].LossDB)
		assert.Equal(t, color.NRGBA{255, 165, 0, 255}, cs.Stops()[1].Color)
		assert.Equal(t, 160.0, cs.Stops()[5].LossDB)
	})

	t.Run("equal losses are allowed", func(t *testing.T) {
		t.Parallel()
		cs := mustScale(t, "100;1;2;3\n100;4;5;6\n")
		assert.Len(t, cs.Stops(), 2)
	})

	t.Run("non-monotonic stops", func(t *testing.T) {
		t.Parallel()
		_, err := ParseColorScale(strings.NewReader("120;0;0;255\n100;255;0;0\n"))
		var perr *LegendParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, 2, perr.Line)
	})

	t.Run("unparsable loss", func(t *testing.T) {
		t.Parallel()
		_, err := ParseColorScale(strings.NewReader("abc; 0; 0; 255\n"))
		var perr *LegendParseError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("channel out of range", func(t *testing.T) {
		t.Parallel()
		_, err := ParseColorScale(strings.NewReader("100; 300; 0; 0\n"))
		var perr *LegendParseError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("too few fields", func(t *testing.T) {
		t.Parallel()
		_, err := ParseColorScale(strings.NewReader("100; 10; 20\n"))
		assert.Error(t, err)
	})

	t.Run("no stops", func(t *testing.T) {
		t.Parallel()
		_, err := ParseColorScale(strings.NewReader("# only a comment\n\n"))
		var perr *LegendParseError
		require.True(t, errors.As(err, &perr))
	})
}

func TestColorScaleRoundTrip(t *testing.T) {
	t.Parallel()
	cs := mustScale(t, testScaleSrc)
	for _, stop := range cs.Stops() {
		got, ok := cs.Decode(stop.Color)
		require.True(t, ok)
		assert.Equal(t, stop.LossDB, got)

		back, ok := cs.Decode(cs.Encode(stop.LossDB))
		require.True(t, ok)
		assert.Equal(t, stop.LossDB, back)
	}
}

func TestColorScaleDecode(t *testing.T) {
	t.Parallel()
	cs := mustScale(t, testScaleSrc)

	t.Run("transparent pixel is no-data", func(t *testing.T) {
		t.Parallel()
		_, ok := cs.Decode(color.NRGBA{255, 0, 0, 0})
		assert.False(t, ok)
	})

	t.Run("unknown color with exact matching is no-data", func(t *testing.T) {
		t.Parallel()
		_, ok := cs.Decode(color.NRGBA{7, 7, 7, 255})
		assert.False(t, ok)
	})

	t.Run("tolerance matches near-miss colors", func(t *testing.T) {
		t.Parallel()
		loose := mustScale(t, testScaleSrc)
		loose.Tolerance = 0.1
		got, ok := loose.Decode(color.NRGBA{250, 3, 2, 255}) // almost the 80 dB red
		require.True(t, ok)
		assert.Equal(t, 80.0, got)

		_, ok = loose.Decode(color.NRGBA{128, 128, 128, 255}) // far from every stop
		assert.False(t, ok)
	})

	t.Run("duplicate color decodes to the lower loss", func(t *testing.T) {
		t.Parallel()
		dup := mustScale(t, "110; 9; 9; 9\n130; 9; 9; 9\n")
		got, ok := dup.Decode(color.NRGBA{9, 9, 9, 255})
		require.True(t, ok)
		assert.Equal(t, 110.0, got)
	})
}

func TestColorScaleEncode(t *testing.T) {
	t.Parallel()
	cs := mustScale(t, testScaleSrc)

	t.Run("clamps below the strongest stop", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, color.NRGBA{255, 0, 0, 255}, cs.Encode(40))
	})

	t.Run("beyond the worst stop is the no-data color", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, color.NRGBA{}, cs.Encode(161))
	})

	t.Run("nearest stop wins", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, color.NRGBA{0, 255, 0, 255}, cs.Encode(138))
	})

	t.Run("midpoint tie prefers the lower loss", func(t *testing.T) {
		t.Parallel()
		// 110 sits exactly between the 100 and 120 stops.
		assert.Equal(t, color.NRGBA{255, 165, 0, 255}, cs.Encode(110))
	})
}
