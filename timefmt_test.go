package aura

import (
	"math"
	"testing"
)

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{0.99, "0:00"},
		{5, "0:05"},
		{65, "1:05"},
		{599.9, "9:59"},
		{3605, "60:05"},
		{-3, "0:00"},
		{math.NaN(), "0:00"},
		{math.Inf(1), "0:00"},
		{1e19, "153722867280912930:07"},
		{math.MaxFloat64, "153722867280912930:07"},
	}
	for _, tc := range tests {
		if got := FormatTime(tc.in); got != tc.want {
			t.Fatalf("FormatTime(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSeekFraction(t *testing.T) {
	tests := []struct {
		x, width, want float64
	}{
		{50, 200, 0.25},
		{0, 200, 0},
		{-10, 200, 0},
		{250, 200, 1},
		{10, 0, 0},
	}
	for _, tc := range tests {
		if got := SeekFraction(tc.x, tc.width); got != tc.want {
			t.Fatalf("SeekFraction(%v, %v) = %v, want %v", tc.x, tc.width, got, tc.want)
		}
	}
}

func TestProgress(t *testing.T) {
	if got := Progress(30, 120); got != 0.25 {
		t.Fatalf("Progress = %v, want 0.25", got)
	}
	if got := Progress(30, 0); got != 0 {
		t.Fatalf("Progress with unknown duration = %v, want 0", got)
	}
	if got := Progress(200, 120); got != 1 {
		t.Fatalf("Progress past end = %v, want 1", got)
	}
}
