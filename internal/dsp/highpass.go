package dsp

import (
	"github.com/audiolibrelab/masterweb/internal/audio"
)

// ApplyHighPass high-passes the side (second) channel of a stereo buffer,
// which moves everything below cutoffHz into the first channel only. The
// first channel is passed through bit for bit.
func ApplyHighPass(b *audio.Buffer, cutoffHz float64) (*audio.Buffer, error) {
	if b == nil {
		return nil, errNilBuffer
	}
	coeffs, err := HighPassCoefficients(cutoffHz, b.SampleRate)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	cs, err := audio.Split(b)
	if err != nil {
		return nil, err
	}

	side, err := Filter(coeffs, cs.Right)
	if err != nil {
		return nil, err
	}
	for i, v := range side {
		side[i] = cs.Format.Clamp(v)
	}
	cs.Right = side

	return audio.Join(cs)
}
