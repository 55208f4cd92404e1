// Package dsp holds the signal processing stages of the mastering chain.
//
// Every stage takes an *audio.Buffer and returns a new one; inputs are
// never modified in place.
package dsp

import (
	"errors"
	"fmt"
	"math"

	"github.com/audiolibrelab/masterweb/internal/audio"
)

// ErrInvalidCutoff is returned when a cutoff does not fall strictly between 0 Hz and Nyquist.
var ErrInvalidCutoff = errors.New("invalid cutoff frequency")

// FilterCoefficients is an IIR transfer function: B is the numerator,
// A the denominator with A[0] as the normalising term.
type FilterCoefficients struct {
	B []float64
	A []float64
}

// Validate checks that the coefficients describe a realisable filter
func (c FilterCoefficients) Validate() error {
	if len(c.B) == 0 || len(c.A) == 0 {
		return errors.New("filter coefficients must not be empty")
	}
	if c.A[0] == 0 {
		return errors.New("filter coefficient a[0] must not be zero")
	}
	return nil
}

// Order returns the filter order
func (c FilterCoefficients) Order() int {
	return max(len(c.B), len(c.A)) - 1
}

// HighPassCoefficients designs a first-order Butterworth high-pass via the
// bilinear transform. The cutoff is normalised against Nyquist and must lie
// in the open interval (0, 1); a non-positive sample rate is rejected with
// audio.ErrInvalidSampleRate before that.
func HighPassCoefficients(cutoffHz float64, sampleRate int) (FilterCoefficients, error) {
	if sampleRate <= 0 {
		return FilterCoefficients{}, fmt.Errorf("%w: %d", audio.ErrInvalidSampleRate, sampleRate)
	}
	nyquist := float64(sampleRate) / 2
	wn := cutoffHz / nyquist
	if math.IsNaN(wn) || wn <= 0 || wn >= 1 {
		return FilterCoefficients{}, fmt.Errorf("%w: %.2f Hz normalises to %.4f against %.0f Hz Nyquist",
			ErrInvalidCutoff, cutoffHz, wn, nyquist)
	}

	k := math.Tan(math.Pi * wn / 2)
	norm := 1 / (1 + k)

	return FilterCoefficients{
		B: []float64{norm, -norm},
		A: []float64{1, (k - 1) * norm},
	}, nil
}

// Filter runs x through the filter in a single causal pass using Direct
// Form II Transposed with zero initial state.
func Filter(c FilterCoefficients, x []float64) ([]float64, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	n := max(len(c.B), len(c.A))
	b := make([]float64, n)
	a := make([]float64, n)
	copy(b, c.B)
	copy(a, c.A)
	if a[0] != 1 {
		for i := range b {
			b[i] /= c.A[0]
			a[i] /= c.A[0]
		}
	}

	// z[n-1] stays zero and terminates the delay line
	z := make([]float64, n)
	y := make([]float64, len(x))
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for k := 1; k < n; k++ {
			z[k-1] = b[k]*xi + z[k] - a[k]*yi
		}
		y[i] = yi
	}
	return y, nil
}
