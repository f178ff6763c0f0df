package model

import "math"

// Band scores live on a fixed discrete grid: 0.0 to 9.0 in 0.5 steps.
const (
	BandMin  = 0.0
	BandMax  = 9.0
	BandStep = 0.5
)

// RoundToBand rounds x to the nearest grid point using round-half-to-even,
// then clamps to the band range. Half-to-even avoids systematic drift when
// averaging the two middle votes of an even-sized pass set.
func RoundToBand(x float64) float64 {
	steps := math.RoundToEven(x / BandStep)
	return ClampBand(steps * BandStep)
}

// ClampBand limits x to [BandMin, BandMax].
func ClampBand(x float64) float64 {
	if x < BandMin {
		return BandMin
	}
	if x > BandMax {
		return BandMax
	}
	return x
}

// OnBandGrid reports whether x is exactly a grid point.
func OnBandGrid(x float64) bool {
	if x < BandMin || x > BandMax {
		return false
	}
	steps := x / BandStep
	return math.Abs(steps-math.Round(steps)) < 1e-9
}

// BandIndex maps a band value to its ordinal index on the grid (0.0 -> 0,
// 0.5 -> 1, ..., 9.0 -> 18), clipping out-of-range values.
func BandIndex(x float64) int {
	idx := int(math.Round((ClampBand(x) - BandMin) / BandStep))
	if idx < 0 {
		idx = 0
	}
	if idx > BandGridSize()-1 {
		idx = BandGridSize() - 1
	}
	return idx
}

// BandGridSize returns the number of points on the band grid.
func BandGridSize() int {
	return int(math.Round((BandMax-BandMin)/BandStep)) + 1
}
