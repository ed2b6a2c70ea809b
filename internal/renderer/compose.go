package renderer

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

// Composer rasterizes frames: the scene visual cover-fitted and zoomed around
// its center, then the subtitle near the bottom edge.
type Composer struct {
	Width, Height int
	Background    color.Color
	Face          font.Face
	Scaler        draw.Transformer
	// SubtitleWidth is the wrap width as a fraction of the frame width.
	SubtitleWidth float64
}

// NewComposer creates a composer with a subtitle size proportional to the frame height.
func NewComposer(width, height int) (*Composer, error) {
	face, err := NewSubtitleFace(math.Max(12, float64(height)/18))
	if err != nil {
		return nil, err
	}
	return &Composer{
		Width:         width,
		Height:        height,
		Background:    color.Black,
		Face:          face,
		Scaler:        draw.BiLinear,
		SubtitleWidth: 0.8,
	}, nil
}

func (c *Composer) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.Width, c.Height)
}

// Render draws the frame for st into dst. visual may be nil.
func (c *Composer) Render(dst *image.RGBA, st FrameState, visual image.Image) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c.Background), image.Point{}, draw.Src)

	if visual != nil {
		c.drawVisual(dst, visual, st.Zoom)
	}
	if st.Script != "" && c.Face != nil {
		c.drawSubtitle(dst, st.Script)
	}
}

// CoverScale is the factor that makes a src of sw x sh fill dw x dh.
func CoverScale(sw, sh, dw, dh int) float64 {
	if sw <= 0 || sh <= 0 {
		return 1
	}
	return math.Max(float64(dw)/float64(sw), float64(dh)/float64(sh))
}

func (c *Composer) drawVisual(dst *image.RGBA, visual image.Image, zoom float64) {
	sb := visual.Bounds()
	if sb.Empty() {
		return
	}
	if zoom <= 0 {
		zoom = 1
	}

	scale := CoverScale(sb.Dx(), sb.Dy(), c.Width, c.Height) * zoom
	srcCX := float64(sb.Min.X) + float64(sb.Dx())/2
	srcCY := float64(sb.Min.Y) + float64(sb.Dy())/2

	// source -> destination: scale about the source center onto the frame center
	s2d := f64.Aff3{
		scale, 0, float64(c.Width)/2 - scale*srcCX,
		0, scale, float64(c.Height)/2 - scale*srcCY,
	}
	c.Scaler.Transform(dst, s2d, visual, sb, draw.Over, nil)
}

func (c *Composer) drawSubtitle(dst *image.RGBA, text string) {
	maxWidth := int(float64(c.Width) * c.SubtitleWidth)
	lines := WrapText(c.Face, text, maxWidth)
	if len(lines) == 0 {
		return
	}

	metrics := c.Face.Metrics()
	lineHeight := int(math.Ceil(float64(metrics.Height.Ceil()) * 1.2))
	bottom := c.Height - int(float64(c.Height)*0.08)
	top := bottom - lineHeight*len(lines)

	pad := lineHeight / 3
	band := image.Rect(0, top-pad, c.Width, bottom+pad).Intersect(dst.Bounds())
	draw.Draw(dst, band, image.NewUniform(color.RGBA{0, 0, 0, 140}), image.Point{}, draw.Over)

	shadow := image.NewUniform(color.RGBA{0, 0, 0, 255})
	for i, line := range lines {
		w := font.MeasureString(c.Face, line).Ceil()
		x := (c.Width - w) / 2
		baseline := top + lineHeight*(i+1) - (lineHeight-metrics.Ascent.Ceil())/2

		d := &font.Drawer{Dst: dst, Src: shadow, Face: c.Face, Dot: fixed.P(x+2, baseline+2)}
		d.DrawString(line)

		d.Src = image.White
		d.Dot = fixed.P(x, baseline)
		d.DrawString(line)
	}
}
