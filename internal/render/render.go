// Package render draws a single capture the way a scope screen shows it: one
// lane per channel, a time scale and an info bar with the measurements.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	dpi            = 120.0
	fontSize       = 9.0
	tickMarkHeight = 5
	pixelsPerLabel = 120.0
	lineSpacing    = 1.4

	defaultWidth      = 1200
	defaultLaneHeight = 140

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 150
	defaultBottomBorder = 40
	defaultRightBorder  = 30

	defaultDatetimeFormat = time.DateTime
)

var (
	gridColor  = color.RGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
	frameColor = color.RGBA{R: 0x66, G: 0x66, B: 0x66, A: 0xff}

	// DefaultColors are the trace colours of the scope channels and the force line
	DefaultColors = []color.Color{
		color.RGBA{R: 0xd4, G: 0xa0, B: 0x00, A: 0xff}, // supply
		color.RGBA{R: 0x00, G: 0x8a, B: 0x3e, A: 0xff}, // TX current
		color.RGBA{R: 0x1f, G: 0x5f, B: 0xd0, A: 0xff}, // TX voltage
		color.RGBA{R: 0xc0, G: 0x20, B: 0x60, A: 0xff}, // RX voltage
		color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}, // force line
	}
)

// BorderConfig defines the sizes of white space around the lanes
type BorderConfig struct {
	Top    int // Title
	Left   int // Lane labels
	Bottom int // Time scale
	Right  int // Right padding
}

// Config holds the layout of the rendered image
type Config struct {
	Width          int     // Width of the lanes in pixels, one column per pixel
	LaneHeight     int     // Height of every lane in pixels
	FontSize       float64 // Font size in points
	DatetimeFormat string
	Location       *time.Location

	BorderConfig BorderConfig
}

// Trace is an analog channel, already scaled to its unit
type Trace struct {
	Label   string
	Unit    string
	Samples []float64
	Color   color.Color
}

// Logic is one line of the logic analyser
type Logic struct {
	Label   string
	Samples []uint32
	Line    int
	Rate    float64 // Sa/s
	Color   color.Color
}

// Capture is what gets drawn
type Capture struct {
	Title      string
	Timestamp  time.Time
	SampleRate float64 // Analog Sa/s
	Traces     []Trace
	Logic      *Logic
	Notes      []string // Printed below the time scale, one per line
}

// Renderer draws captures
type Renderer struct {
	config Config
}

// NewRenderer creates a renderer, zero config values take defaults
func NewRenderer(config Config) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.LaneHeight == 0 {
		config.LaneHeight = defaultLaneHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	if config.Width < 10 || config.LaneHeight < 20 {
		return nil, fmt.Errorf("render: image too small: %dx%d", config.Width, config.LaneHeight)
	}

	return &Renderer{config: config}, nil
}

// Render creates an image of the capture with annotations
func (r *Renderer) Render(c *Capture) (*image.RGBA, error) {
	if len(c.Traces) == 0 && c.Logic == nil {
		return nil, fmt.Errorf("render: nothing to draw")
	}
	if len(c.Traces) > 0 && c.SampleRate <= 0 {
		return nil, fmt.Errorf("render: sample rate must be positive: %g", c.SampleRate)
	}
	if c.Logic != nil && c.Logic.Rate <= 0 {
		return nil, fmt.Errorf("render: logic rate must be positive: %g", c.Logic.Rate)
	}

	ann, err := newAnnotator(r.config)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	lanes := len(c.Traces)
	if c.Logic != nil {
		lanes++
	}

	b := r.config.BorderConfig
	notesHeight := int(math.Ceil(float64(len(c.Notes)) * ann.lineHeight()))
	fullWidth := b.Left + r.config.Width + b.Right
	fullHeight := b.Top + lanes*r.config.LaneHeight + b.Bottom + notesHeight

	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	ann.context.SetClip(img.Bounds())
	ann.context.SetDst(img)

	for i, tr := range c.Traces {
		area := r.lane(i)
		r.drawFrame(img, area)
		if err := ann.drawTraceLabels(img, area, tr, colorOf(tr.Color, i)); err != nil {
			return nil, fmt.Errorf("drawing %s labels: %w", tr.Label, err)
		}
		drawTrace(img, area, tr.Samples, colorOf(tr.Color, i))
	}

	if c.Logic != nil {
		area := r.lane(len(c.Traces))
		r.drawFrame(img, area)
		if err := ann.drawLogicLabels(area, c.Logic); err != nil {
			return nil, fmt.Errorf("drawing logic labels: %w", err)
		}
		drawLogic(img, area, c.Logic, colorOf(c.Logic.Color, len(DefaultColors)-1))
	}

	if err := ann.drawTitle(c); err != nil {
		return nil, fmt.Errorf("drawing title: %w", err)
	}

	duration := captureDuration(c)
	timeArea := image.Rect(b.Left, b.Top, b.Left+r.config.Width, b.Top+lanes*r.config.LaneHeight)
	if err := ann.drawTimeScale(img, timeArea, duration); err != nil {
		return nil, fmt.Errorf("drawing time scale: %w", err)
	}

	if err := ann.drawNotes(timeArea.Max.Y+b.Bottom, c.Notes); err != nil {
		return nil, fmt.Errorf("drawing notes: %w", err)
	}

	return img, nil
}

// lane returns the area of the i-th lane
func (r *Renderer) lane(i int) image.Rectangle {
	b := r.config.BorderConfig
	top := b.Top + i*r.config.LaneHeight
	return image.Rect(b.Left, top+4, b.Left+r.config.Width, top+r.config.LaneHeight-4)
}

func (r *Renderer) drawFrame(img *image.RGBA, area image.Rectangle) {
	mid := (area.Min.Y + area.Max.Y) / 2
	hline(img, area.Min.X, area.Max.X, mid, gridColor)

	hline(img, area.Min.X, area.Max.X, area.Min.Y, frameColor)
	hline(img, area.Min.X, area.Max.X, area.Max.Y-1, frameColor)
	vline(img, area.Min.X, area.Min.Y, area.Max.Y, frameColor)
	vline(img, area.Max.X-1, area.Min.Y, area.Max.Y, frameColor)
}

// drawTrace draws samples scaled to fit the lane. Every pixel column spans
// the minimum and maximum of the samples falling into it.
func drawTrace(img *image.RGBA, area image.Rectangle, samples []float64, c color.Color) {
	lo, hi := bounds(samples)
	if len(samples) == 0 || math.IsNaN(lo) {
		return
	}

	width := area.Dx() - 2
	height := float64(area.Dy() - 4)
	toY := func(v float64) int {
		if hi == lo {
			return (area.Min.Y + area.Max.Y) / 2
		}
		return area.Max.Y - 2 - int(math.Round((v-lo)/(hi-lo)*height))
	}

	prev := -1
	for x := 0; x < width; x++ {
		from := x * len(samples) / width
		to := max((x+1)*len(samples)/width, from+1)
		if from >= len(samples) {
			break
		}

		colLo, colHi := bounds(samples[from:min(to, len(samples))])
		if math.IsNaN(colLo) {
			continue
		}

		y0, y1 := toY(colHi), toY(colLo)
		if prev >= 0 { // connect to the previous column
			y0, y1 = min(y0, prev), max(y1, prev)
		}
		vline(img, area.Min.X+1+x, y0, y1+1, c)
		prev = toY(samples[min(to, len(samples))-1])
	}
}

func drawLogic(img *image.RGBA, area image.Rectangle, l *Logic, c color.Color) {
	levels := make([]float64, len(l.Samples))
	for i, s := range l.Samples {
		levels[i] = float64((s >> uint(l.Line)) & 1)
	}

	// keep a flat line in the middle of the lane when the level never changes
	if lo, hi := bounds(levels); lo == hi {
		inner := area.Inset(area.Dy() / 4)
		if lo == 0 {
			inner.Min.Y = inner.Max.Y - 1
		} else {
			inner.Max.Y = inner.Min.Y + 1
		}
		hline(img, inner.Min.X, inner.Max.X, inner.Min.Y, c)
		return
	}

	drawTrace(img, area.Inset(area.Dy()/6), levels, c)
}

// bounds returns the minimum and maximum of the values which are not NaN
func bounds(values []float64) (float64, float64) {
	lo, hi := math.NaN(), math.NaN()
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if math.IsNaN(lo) || v < lo {
			lo = v
		}
		if math.IsNaN(hi) || v > hi {
			hi = v
		}
	}
	return lo, hi
}

func captureDuration(c *Capture) float64 {
	var d float64
	if len(c.Traces) > 0 {
		d = float64(len(c.Traces[0].Samples)) / c.SampleRate
	}
	if c.Logic != nil {
		d = max(d, float64(len(c.Logic.Samples))/c.Logic.Rate)
	}
	return d
}

func colorOf(c color.Color, i int) color.Color {
	if c != nil {
		return c
	}
	return DefaultColors[i%len(DefaultColors)]
}

func hline(img *image.RGBA, x0, x1, y int, c color.Color) {
	for x := x0; x < x1; x++ {
		img.Set(x, y, c)
	}
}

func vline(img *image.RGBA, x, y0, y1 int, c color.Color) {
	for y := y0; y < y1; y++ {
		img.Set(x, y, c)
	}
}

// SavePNG writes img to path
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}

	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding image: %w", err)
	}

	return f.Close()
}

// Internal annotator implementation
type annotator struct {
	context  *freetype.Context
	config   Config
	fontFace font.Face
}

func newAnnotator(config Config) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) lineHeight() float64 {
	return a.config.FontSize * dpi / 72 * lineSpacing
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawString(s string, x, y int, src image.Image) error {
	a.context.SetSrc(src)
	_, err := a.context.DrawString(s, freetype.Pt(x, y))
	return err
}

func (a *annotator) drawTitle(c *Capture) error {
	title := c.Title
	if !c.Timestamp.IsZero() {
		title += " " + c.Timestamp.In(a.config.Location).Format(a.config.DatetimeFormat)
	}

	y := a.config.BorderConfig.Top/2 + a.fontHeight()/2
	return a.drawString(title, a.config.BorderConfig.Left, y, image.Black)
}

// drawTraceLabels prints the name, the range and the peak-to-peak swing of
// the trace left of its lane.
func (a *annotator) drawTraceLabels(img *image.RGBA, area image.Rectangle, tr Trace, c color.Color) error {
	lo, hi := bounds(tr.Samples)

	lines := []string{tr.Label}
	if !math.IsNaN(lo) {
		lines = append(lines,
			"max "+humanize.SIWithDigits(hi, 2, tr.Unit),
			"min "+humanize.SIWithDigits(lo, 2, tr.Unit),
		)
	}

	// tick marks on the top and bottom of the lane
	for x := area.Min.X - tickMarkHeight; x < area.Min.X; x++ {
		img.Set(x, area.Min.Y+2, frameColor)
		img.Set(x, area.Max.Y-3, frameColor)
	}

	return a.drawLines(lines, area, image.NewUniform(c))
}

func (a *annotator) drawLogicLabels(area image.Rectangle, l *Logic) error {
	label := l.Label
	if label == "" {
		label = fmt.Sprintf("DIO %d", l.Line)
	}
	return a.drawLines([]string{label}, area, image.NewUniform(colorOf(l.Color, len(DefaultColors)-1)))
}

func (a *annotator) drawLines(lines []string, area image.Rectangle, src image.Image) error {
	step := int(a.lineHeight())
	y := area.Min.Y + a.fontHeight() + 2

	for _, line := range lines {
		if y > area.Max.Y {
			break
		}
		if err := a.drawString(line, 8, y, src); err != nil {
			return err
		}
		y += step
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area image.Rectangle, duration float64) error {
	if duration <= 0 {
		return nil
	}

	step := niceStep(duration, area.Dx())
	textY := area.Max.Y + tickMarkHeight + a.fontHeight() + 2

	for t := 0.0; t <= duration*(1+1e-9); t += step {
		x := area.Min.X + int(math.Round(t/duration*float64(area.Dx()-1)))

		// Draw tick mark
		vline(img, x, area.Max.Y, area.Max.Y+tickMarkHeight, color.Black)

		label := humanize.SIWithDigits(t, 1, "s")
		width := font.MeasureString(a.fontFace, label)
		if err := a.drawString(label, x-width.Round()/2, textY, image.Black); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawNotes(top int, notes []string) error {
	y := top
	for _, note := range notes {
		if err := a.drawString(note, a.config.BorderConfig.Left, y, image.Black); err != nil {
			return err
		}
		y += int(a.lineHeight())
	}
	return nil
}

// niceStep returns a 1-2-5 step giving a label every pixelsPerLabel pixels
func niceStep(span float64, width int) float64 {
	target := span / math.Max(1, float64(width)/pixelsPerLabel)
	magnitude := math.Pow(10, math.Floor(math.Log10(target)))

	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= target*(1-1e-9) {
			return step
		}
	}
	return 10 * magnitude
}
