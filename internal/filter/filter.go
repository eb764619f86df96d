// Package filter reduces noisy sensor reads to a single stable value.
// Nothing here touches hardware; reads and yields are supplied by the caller.
package filter

import (
	"errors"
	"sort"
)

// ErrNoSamples is returned when a filter pass produced no valid samples.
// Callers must treat it as a sensor fault, never as a reading of zero.
var ErrNoSamples = errors.New("filter: no valid samples")

// Result is the outcome of a filter pass.
type Result struct {
	Value float64
	Valid int
}

// ReadFunc takes one raw sample. A non-nil error discards the sample.
type ReadFunc func() (float64, error)

// Collect takes up to n reads, dropping failed ones. yield is called between
// reads so background work keeps running during the burst; it may be nil.
func Collect(n int, read ReadFunc, yield func()) []float64 {
	samples := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 && yield != nil {
			yield()
		}
		v, err := read()
		if err != nil {
			continue
		}
		samples = append(samples, v)
	}
	return samples
}

// Mean averages the samples.
func Mean(samples []float64) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrNoSamples
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return Result{Value: sum / float64(len(samples)), Valid: len(samples)}, nil
}

// Median returns the middle sample, or the mean of the two middle samples
// for an even count. The input slice is not modified.
func Median(samples []float64) (Result, error) {
	n := len(samples)
	if n == 0 {
		return Result{}, ErrNoSamples
	}
	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	v := sorted[n/2]
	if n%2 == 0 {
		v = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return Result{Value: v, Valid: n}, nil
}

// MeanOf collects n samples and averages them. Used for mass.
func MeanOf(n int, read ReadFunc, yield func()) (Result, error) {
	return Mean(Collect(n, read, yield))
}

// MedianOf collects n samples and takes the median. Used for distance, where
// an odd n rejects single-echo outliers.
func MedianOf(n int, read ReadFunc, yield func()) (Result, error) {
	return Median(Collect(n, read, yield))
}
