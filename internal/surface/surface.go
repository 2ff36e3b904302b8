// Package surface implements the scene canvas on top of an ebiten image.
package surface

import (
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/cbegin/musicaura-go/internal/render"
)

const (
	gradientRes = 128
	haloRings   = 4
)

// Surface is an offscreen ebiten image that persists between frames, so the
// translucent fade leaves motion trails.
type Surface struct {
	img *ebiten.Image

	glowBlur  float64
	glowColor color.NRGBA

	gradient *ebiten.Image
	pix      []byte
}

var _ render.Canvas = (*Surface)(nil)

func New(w, h int) *Surface {
	s := &Surface{
		gradient: ebiten.NewImage(gradientRes, gradientRes),
		pix:      make([]byte, gradientRes*gradientRes*4),
	}
	s.Resize(w, h)
	return s
}

// Resize reallocates the backing image when the size changes. The previous
// contents are dropped.
func (s *Surface) Resize(w, h int) {
	w, h = max(1, w), max(1, h)
	if s.img != nil {
		b := s.img.Bounds()
		if b.Dx() == w && b.Dy() == h {
			return
		}
		s.img.Deallocate()
	}
	s.img = ebiten.NewImage(w, h)
	s.img.Fill(color.Black)
}

func (s *Surface) Image() *ebiten.Image { return s.img }

func (s *Surface) Size() (float64, float64) {
	b := s.img.Bounds()
	return float64(b.Dx()), float64(b.Dy())
}

func (s *Surface) Fade(c color.NRGBA) {
	w, h := s.Size()
	vector.DrawFilledRect(s.img, 0, 0, float32(w), float32(h), c, false)
}

func (s *Surface) SetGlow(blur float64, c color.NRGBA) {
	s.glowBlur = math.Max(0, blur)
	s.glowColor = c
}

func (s *Surface) RadialGradient(cx, cy, radius, disc float64, stops []render.GradientStop) {
	if radius <= 0 || disc <= 0 {
		return
	}
	s.halo(cx, cy, disc)

	// Rasterize the gradient once at a fixed resolution and scale it onto
	// the disc; linear filtering hides the upscale.
	half := float64(gradientRes) / 2
	for y := 0; y < gradientRes; y++ {
		for x := 0; x < gradientRes; x++ {
			dx := (float64(x) + 0.5 - half) / half * disc
			dy := (float64(y) + 0.5 - half) / half * disc
			d := math.Hypot(dx, dy)
			var c color.NRGBA
			if d <= disc {
				c = render.GradientAt(stops, d/radius)
			}
			i := (y*gradientRes + x) * 4
			a := uint32(c.A)
			s.pix[i+0] = uint8(uint32(c.R) * a / 255)
			s.pix[i+1] = uint8(uint32(c.G) * a / 255)
			s.pix[i+2] = uint8(uint32(c.B) * a / 255)
			s.pix[i+3] = c.A
		}
	}
	s.gradient.WritePixels(s.pix)

	op := &ebiten.DrawImageOptions{}
	op.Filter = ebiten.FilterLinear
	scale := 2 * disc / gradientRes
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(cx-disc, cy-disc)
	s.img.DrawImage(s.gradient, op)
}

func (s *Surface) StrokeLine(x0, y0, x1, y1, width float64, c color.NRGBA) {
	if x0 != x1 || y0 != y1 {
		vector.StrokeLine(s.img, float32(x0), float32(y0), float32(x1), float32(y1), float32(width), c, true)
	}
	// Round caps.
	r := float32(width / 2)
	vector.DrawFilledCircle(s.img, float32(x0), float32(y0), r, c, true)
	vector.DrawFilledCircle(s.img, float32(x1), float32(y1), r, c, true)
}

func (s *Surface) FillCircle(cx, cy, r float64, c color.NRGBA) {
	if r <= 0 {
		return
	}
	s.halo(cx, cy, r)
	vector.DrawFilledCircle(s.img, float32(cx), float32(cy), float32(r), c, true)
}

// halo approximates a blurred shadow with concentric translucent rings.
func (s *Surface) halo(cx, cy, r float64) {
	if s.glowBlur <= 0 || s.glowColor.A == 0 {
		return
	}
	for i := haloRings; i >= 1; i-- {
		f := float64(i) / haloRings
		c := render.WithAlpha(s.glowColor, (1-f)*0.5+0.1)
		vector.DrawFilledCircle(s.img, float32(cx), float32(cy), float32(r+s.glowBlur*f*0.5), c, true)
	}
}
