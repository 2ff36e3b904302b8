package aura

import (
	"fmt"
	"math"
)

// FormatTime renders seconds as m:ss. Minutes do not roll over into hours.
// Negative and non-finite inputs render as 0:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	var total int64 = math.MaxInt64
	if seconds < math.MaxInt64 {
		total = int64(seconds)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// SeekFraction maps a pointer offset within a progress track of the given
// width to a fraction in [0,1].
func SeekFraction(offsetX, width float64) float64 {
	if width <= 0 || math.IsNaN(width) {
		return 0
	}
	return clampUnit(offsetX / width)
}

// Progress is the filled fraction of the progress track.
func Progress(position, duration float64) float64 {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0
	}
	return clampUnit(position / duration)
}
