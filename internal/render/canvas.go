package render

import "image/color"

// GradientStop is one color stop of a radial gradient, Offset in [0,1].
type GradientStop struct {
	Offset float64
	Color  color.NRGBA
}

// Canvas is the 2D drawing surface the scene renders onto. It keeps a glow
// state like a canvas shadow: while the blur is positive, filled shapes are
// drawn with a soft halo of the glow color.
type Canvas interface {
	Size() (w, h float64)
	// Fade composites c over the whole surface.
	Fade(c color.NRGBA)
	// RadialGradient fills the disc of radius disc around (cx, cy) with a
	// gradient whose stops are spread over radius.
	RadialGradient(cx, cy, radius, disc float64, stops []GradientStop)
	// StrokeLine draws a round-capped line.
	StrokeLine(x0, y0, x1, y1, width float64, c color.NRGBA)
	FillCircle(cx, cy, r float64, c color.NRGBA)
	SetGlow(blur float64, c color.NRGBA)
}

// GradientAt samples stops at t in [0,1]. Stops must be sorted by Offset.
func GradientAt(stops []GradientStop, t float64) color.NRGBA {
	if len(stops) == 0 {
		return color.NRGBA{}
	}
	if t <= stops[0].Offset {
		return stops[0].Color
	}
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].Offset {
			a, b := stops[i-1], stops[i]
			span := b.Offset - a.Offset
			if span <= 0 {
				return b.Color
			}
			return Lerp(a.Color, b.Color, (t-a.Offset)/span)
		}
	}
	return stops[len(stops)-1].Color
}
