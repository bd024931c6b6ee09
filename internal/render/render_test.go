package render

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, amplitude float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = amplitude * math.Sin(2*math.Pi*float64(i)/100)
	}
	return s
}

func hasColor(img *image.RGBA, area image.Rectangle, c color.Color) bool {
	want := color.RGBAModel.Convert(c)
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if img.At(x, y) == want {
				return true
			}
		}
	}
	return false
}

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer(Config{Width: 400, LaneHeight: 80, Location: time.UTC})
	require.NoError(t, err)

	pwm := make([]uint32, 200)
	for i := range pwm {
		if i%100 < 25 {
			pwm[i] = 1 << 2
		}
	}

	traceColor := color.RGBA{R: 0xff, A: 0xff}
	c := &Capture{
		Title:      "Transient",
		Timestamp:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		SampleRate: 2e7,
		Traces: []Trace{
			{Label: "TX Current", Unit: "A", Samples: sine(1000, 2), Color: traceColor},
			{Label: "Supply", Unit: "V", Samples: []float64{24, 24, 24}},
		},
		Logic: &Logic{Samples: pwm, Line: 2, Rate: 1e6},
		Notes: []string{"RX Force: 12.3 mN", "TX Current RMS: 1.41 A"},
	}

	img, err := r.Render(c)
	require.NoError(t, err)

	b := r.config.BorderConfig
	assert.Equal(t, b.Left+400+b.Right, img.Bounds().Dx())
	assert.Greater(t, img.Bounds().Dy(), b.Top+3*80+b.Bottom)

	assert.True(t, hasColor(img, r.lane(0), traceColor), "trace must be drawn in its lane")
	assert.False(t, hasColor(img, r.lane(1), traceColor), "trace must stay in its lane")
	assert.True(t, hasColor(img, r.lane(2), DefaultColors[len(DefaultColors)-1]), "force line must be drawn")
}

func TestRenderer_RenderErrors(t *testing.T) {
	r, err := NewRenderer(Config{})
	require.NoError(t, err)

	_, err = r.Render(&Capture{})
	assert.Error(t, err)

	_, err = r.Render(&Capture{Traces: []Trace{{Samples: []float64{1}}}})
	assert.Error(t, err)

	_, err = r.Render(&Capture{Logic: &Logic{Samples: []uint32{1}}})
	assert.Error(t, err)

	_, err = NewRenderer(Config{Width: 5})
	assert.Error(t, err)
}

func TestRenderer_NaNSamples(t *testing.T) {
	r, err := NewRenderer(Config{Width: 100, LaneHeight: 40})
	require.NoError(t, err)

	_, err = r.Render(&Capture{
		SampleRate: 1e3,
		Traces:     []Trace{{Label: "RX", Unit: "V", Samples: []float64{math.NaN(), math.NaN()}}},
	})
	assert.NoError(t, err)
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.png")
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	require.NoError(t, SavePNG(path, img))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, SavePNG(filepath.Join(t.TempDir(), "missing", "capture.png"), img))
}

func TestNiceStep(t *testing.T) {
	tests := []struct {
		span  float64
		width int
		want  float64
	}{
		{50e-6, 1200, 5e-6},
		{50e-6, 400, 20e-6},
		{2e-3, 1200, 200e-6},
		{1, 120, 1},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, niceStep(tt.span, tt.width), tt.want*1e-9, "span %g width %d", tt.span, tt.width)
	}
}

func TestBounds(t *testing.T) {
	lo, hi := bounds([]float64{3, math.NaN(), -1, math.Inf(1), 2})
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 3.0, hi)

	lo, _ = bounds(nil)
	assert.True(t, math.IsNaN(lo))
}
