package utils

import "gonum.org/v1/gonum/floats"

// RollingAverage is a fixed-size window of float64 samples. It never allocates after
// construction, so it is safe to use on the control path.
type RollingAverage struct {
	data  []float64
	pos   int
	count int
}

// NewRollingAverage returns a window holding at most numSamples samples. A size below one is
// treated as one, which makes Average return the latest sample.
func NewRollingAverage(numSamples int) *RollingAverage {
	if numSamples < 1 {
		numSamples = 1
	}
	return &RollingAverage{data: make([]float64, numSamples)}
}

// NumSamples returns the window size.
func (ra *RollingAverage) NumSamples() int {
	return len(ra.data)
}

// Count returns how many samples are currently held, at most NumSamples.
func (ra *RollingAverage) Count() int {
	return ra.count
}

// Add pushes a sample, discarding the oldest one when the window is full.
func (ra *RollingAverage) Add(x float64) {
	ra.data[ra.pos] = x
	ra.pos++
	if ra.pos >= len(ra.data) {
		ra.pos = 0
	}
	if ra.count < len(ra.data) {
		ra.count++
	}
}

// Average returns the mean of the held samples, or 0 when the window is empty.
func (ra *RollingAverage) Average() float64 {
	if ra.count == 0 {
		return 0
	}
	// Until the window wraps the samples occupy [0, count).
	return floats.Sum(ra.data[:ra.count]) / float64(ra.count)
}

// Reset empties the window.
func (ra *RollingAverage) Reset() {
	for i := range ra.data {
		ra.data[i] = 0
	}
	ra.pos = 0
	ra.count = 0
}
