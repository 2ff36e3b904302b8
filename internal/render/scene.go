// Package render draws the audio-reactive aura scene from a byte frequency
// snapshot.
package render

import (
	"image/color"
	"math"
	"math/rand/v2"
)

const (
	NumBars          = 48
	DefaultParticles = 100

	maxBinValue = 255.0

	bassBins   = 10
	midBins    = 40
	trebleBins = 50

	auraGlowBlur = 30.0
	barWidth     = 3.0
)

var fadeColor = color.NRGBA{R: 5, G: 5, B: 15, A: 64} // rgba(5,5,15,0.25)

// Levels are the normalized band averages of one snapshot.
type Levels struct {
	Bass   float64
	Mid    float64
	Treble float64
	Energy float64
}

// Bands averages the low (first 10 bins), mid (next 40) and high (next 50)
// ranges of spectrum, each normalized to [0,1]. Indices wrap modulo the
// snapshot length.
func Bands(spectrum []uint8) Levels {
	bass := rangeMean(spectrum, 0, bassBins)
	mid := rangeMean(spectrum, bassBins, midBins)
	treble := rangeMean(spectrum, bassBins+midBins, trebleBins)
	return Levels{
		Bass:   bass,
		Mid:    mid,
		Treble: treble,
		Energy: (bass + mid + treble) / 3,
	}
}

func rangeMean(spectrum []uint8, start, count int) float64 {
	n := len(spectrum)
	if n == 0 {
		return 0
	}
	sum := 0
	for i := start; i < start+count; i++ {
		sum += int(spectrum[i%n])
	}
	return float64(sum) / float64(count) / maxBinValue
}

// binValue returns spectrum[i mod len] normalized, or 0 for an empty snapshot.
func binValue(spectrum []uint8, i int) float64 {
	if len(spectrum) == 0 {
		return 0
	}
	return float64(spectrum[i%len(spectrum)]) / maxBinValue
}

// Particle is one member of the swarm.
type Particle struct {
	X, Y   float64
	VX, VY float64
	Size   float64
	Hue    float64
}

type SceneOption func(*sceneConfig)

type sceneConfig struct {
	rng       *rand.Rand
	particles int
}

// WithRand sets the random source used to spawn particles.
func WithRand(rng *rand.Rand) SceneOption {
	return func(cfg *sceneConfig) {
		cfg.rng = rng
	}
}

func WithParticleCount(n int) SceneOption {
	return func(cfg *sceneConfig) {
		if n >= 0 {
			cfg.particles = n
		}
	}
}

type Scene struct {
	rng       *rand.Rand
	count     int
	particles []Particle
	levels    Levels
}

func NewScene(opts ...SceneOption) *Scene {
	cfg := sceneConfig{particles: DefaultParticles}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Scene{rng: cfg.rng, count: cfg.particles}
}

// Particles exposes the swarm; callers must not retain it across frames.
func (s *Scene) Particles() []Particle { return s.particles }

// Levels returns the band levels of the last drawn frame.
func (s *Scene) Levels() Levels { return s.levels }

// Reset drops the swarm; it is respawned on the next frame.
func (s *Scene) Reset() { s.particles = s.particles[:0] }

// Resize clamps the swarm into a w×h surface after the container changed.
func (s *Scene) Resize(w, h float64) {
	for i := range s.particles {
		p := &s.particles[i]
		p.X = clamp(p.X, 0, w)
		p.Y = clamp(p.Y, 0, h)
	}
}

func (s *Scene) spawn(w, h float64) {
	s.particles = s.particles[:0]
	for i := 0; i < s.count; i++ {
		s.particles = append(s.particles, Particle{
			X:    s.rng.Float64() * w,
			Y:    s.rng.Float64() * h,
			VX:   (s.rng.Float64() - 0.5) * 1.5,
			VY:   (s.rng.Float64() - 0.5) * 1.5,
			Size: s.rng.Float64()*2 + 1,
			Hue:  s.rng.Float64()*60 + 200,
		})
	}
}

// Draw renders one frame of the scene for spectrum onto c.
func (s *Scene) Draw(c Canvas, spectrum []uint8) {
	w, h := c.Size()
	if w <= 0 || h <= 0 {
		return
	}
	if len(s.particles) == 0 {
		s.spawn(w, h)
	}
	s.levels = Bands(spectrum)

	cx, cy := w/2, h/2
	maxRadius := math.Min(w, h) * 0.35

	c.Fade(fadeColor)
	s.drawAura(c, cx, cy, maxRadius)
	drawBars(c, spectrum, cx, cy, maxRadius)
	s.Advance(spectrum, w, h)
	s.drawParticles(c, spectrum)
	c.SetGlow(0, color.NRGBA{})
}

func (s *Scene) drawAura(c Canvas, cx, cy, maxRadius float64) {
	lv := s.levels
	stops := []GradientStop{
		{Offset: 0, Color: HSLA(270+lv.Bass*80, 0.85, 0.65, 0.9)},
		{Offset: 0.4, Color: HSLA(230+lv.Mid*60, 0.75, 0.55, 0.5)},
		{Offset: 0.8, Color: HSLA(190+lv.Treble*50, 0.65, 0.50, 0.2)},
		{Offset: 1, Color: color.NRGBA{}},
	}
	c.SetGlow(auraGlowBlur, HSLA(250+lv.Bass*80, 1, 0.6, 0.5))
	c.RadialGradient(cx, cy,
		maxRadius*(1.2+lv.Energy*0.4),
		maxRadius*(1+lv.Energy*0.5),
		stops)
	c.SetGlow(0, color.NRGBA{})
}

// Bar is one radial frequency bar.
type Bar struct {
	X0, Y0, X1, Y1 float64
	Value          float64
	Color          color.NRGBA
}

// Bars lays out NumBars bars evenly around (cx, cy), starting at the top.
func Bars(spectrum []uint8, cx, cy, maxRadius float64) []Bar {
	bins := len(spectrum)
	step := 2 * math.Pi / NumBars
	startRadius := maxRadius * 0.7
	out := make([]Bar, NumBars)
	for i := range out {
		index := 0
		if bins > 0 {
			index = int(math.Floor(float64(i) * float64(bins) / NumBars))
		}
		value := binValue(spectrum, index)
		angle := float64(i)*step - math.Pi/2
		length := maxRadius * 0.4 * value
		cos, sin := math.Cos(angle), math.Sin(angle)
		hue := float64(i)/NumBars*120 + 200
		out[i] = Bar{
			X0:    cx + cos*startRadius,
			Y0:    cy + sin*startRadius,
			X1:    cx + cos*(startRadius+length),
			Y1:    cy + sin*(startRadius+length),
			Value: value,
			Color: HSLA(hue, 0.8, 0.6, 0.6+value*0.4),
		}
	}
	return out
}

func drawBars(c Canvas, spectrum []uint8, cx, cy, maxRadius float64) {
	for _, b := range Bars(spectrum, cx, cy, maxRadius) {
		c.StrokeLine(b.X0, b.Y0, b.X1, b.Y1, barWidth, b.Color)
	}
}

// Advance integrates every particle by one frame inside a w×h surface.
// Louder bins speed their particle up; edges reflect the velocity and clamp
// the position, so particles never leave the surface.
func (s *Scene) Advance(spectrum []uint8, w, h float64) {
	for i := range s.particles {
		p := &s.particles[i]
		freq := binValue(spectrum, i)

		p.X += p.VX * (1 + freq*2)
		p.Y += p.VY * (1 + freq*2)

		if p.X < 0 || p.X > w {
			p.VX = reflect(p.VX, p.X < 0)
			p.X = clamp(p.X, 0, w)
		}
		if p.Y < 0 || p.Y > h {
			p.VY = reflect(p.VY, p.Y < 0)
			p.Y = clamp(p.Y, 0, h)
		}
	}
}

// reflect points v back inside: positive after crossing the low edge,
// negative after crossing the high edge.
func reflect(v float64, low bool) float64 {
	if low {
		return math.Abs(v)
	}
	return -math.Abs(v)
}

func (s *Scene) drawParticles(c Canvas, spectrum []uint8) {
	for i, p := range s.particles {
		freq := binValue(spectrum, i)
		c.SetGlow(10+freq*15, HSLA(p.Hue, 1, 0.7, 0.8))
		c.FillCircle(p.X, p.Y, p.Size*(1+freq*1.2), HSLA(p.Hue+freq*60, 0.9, 0.7, 0.7+freq*0.3))
	}
}
