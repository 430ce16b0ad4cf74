// Package utils contains small helpers shared by the diffdrive packages.
package utils

import "math"

// Clamp returns x bounded to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(x, hi))
}
