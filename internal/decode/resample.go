package decode

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/resample"
)

// resample converts interleaved samples between rates, preserving the
// channel count. Each channel runs through a polyphase FIR so content above
// the output Nyquist frequency is filtered instead of folded back.
func resample(in []float32, channels, srcRate, dstRate int) ([]float32, error) {
	if srcRate == dstRate || len(in) == 0 || channels <= 0 {
		return in, nil
	}
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("resample %d -> %d Hz: %w", srcRate, dstRate, resample.ErrInvalidRate)
	}
	frames := len(in) / channels
	if frames == 0 {
		return in, nil
	}

	base, err := resample.NewForRates(float64(srcRate), float64(dstRate))
	if err != nil {
		return nil, fmt.Errorf("resample %d -> %d Hz: %w", srcRate, dstRate, err)
	}
	up, down := base.Ratio()
	outFrames := int(int64(frames) * int64(up) / int64(down))

	// The prototype filter is linear phase, delayed by half its length at
	// the upsampled rate. Edges are held so the filter sees no step.
	taps := len(base.Prototype())
	delay := float64(taps-1) / 2
	lead := (taps-1)/(2*up) + 2
	skip := int((float64(lead*up)+delay)/float64(down) + 0.5)

	out := make([]float32, outFrames*channels)
	ch := make([]float64, frames+2*lead)
	for c := 0; c < channels; c++ {
		first, last := float64(in[c]), float64(in[(frames-1)*channels+c])
		for i := 0; i < lead; i++ {
			ch[i] = first
			ch[lead+frames+i] = last
		}
		for f := 0; f < frames; f++ {
			ch[lead+f] = float64(in[f*channels+c])
		}

		r := base
		if c > 0 {
			if r, err = resample.NewRational(up, down); err != nil {
				return nil, err
			}
		}
		y := r.Process(ch)
		for i := 0; i < outFrames; i++ {
			j := min(skip+i, len(y)-1)
			out[i*channels+c] = float32(y[j])
		}
	}
	return out, nil
}
