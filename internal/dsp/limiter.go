package dsp

import (
	"errors"
	"fmt"
	"math"

	"github.com/audiolibrelab/masterweb/internal/audio"
	"gonum.org/v1/gonum/floats"
)

var errNilBuffer = errors.New("nil audio buffer")

// Limiter reduces the level of a buffer. releaseMs is the time the gain
// takes to recover after a peak; implementations may ignore it.
type Limiter interface {
	Limit(b *audio.Buffer, releaseMs float64) (*audio.Buffer, error)
}

// LimiterMode names a Limiter implementation in configuration
type LimiterMode string

const (
	LimiterStatic   LimiterMode = "static"
	LimiterEnvelope LimiterMode = "envelope"
)

// NewLimiter returns the limiter for a configured mode
func NewLimiter(mode LimiterMode) (Limiter, error) {
	switch mode {
	case "", LimiterStatic:
		return StaticLimiter{}, nil
	case LimiterEnvelope:
		return EnvelopeLimiter{CeilingDB: DefaultCeilingDB}, nil
	}
	return nil, fmt.Errorf("unknown limiter mode: %s", mode)
}

// StaticLimiter applies one fixed gain reduction to the whole buffer
type StaticLimiter struct{}

// Limit implements Limiter. releaseMs has no effect.
func (StaticLimiter) Limit(b *audio.Buffer, releaseMs float64) (*audio.Buffer, error) {
	return ApplyLimiter(b, releaseMs)
}

// ApplyLimiter attenuates every sample by the format's maximum amplitude
// taken as a decibel offset, so a 16-bit buffer is pulled down by 32768 dB.
// releaseTimeMs is accepted for interface parity but does not change the
// result.
func ApplyLimiter(b *audio.Buffer, releaseTimeMs float64) (*audio.Buffer, error) {
	if b == nil {
		return nil, errNilBuffer
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	gain := math.Pow(10, -b.Format.MaxAmplitude()/20)
	out := b.Clone()
	for _, ch := range out.Channels {
		floats.Scale(gain, ch)
		if !b.Format.Float {
			for i, v := range ch {
				ch[i] = math.Trunc(v)
			}
		}
	}
	return out, nil
}

// DefaultCeilingDB is the output ceiling of EnvelopeLimiter relative to full scale
const DefaultCeilingDB = -0.3

// EnvelopeLimiter is a peak limiter with instant attack and an exponential
// release. Both channels share one gain so the stereo image does not shift.
type EnvelopeLimiter struct {
	CeilingDB float64
}

// Limit implements Limiter
func (l EnvelopeLimiter) Limit(b *audio.Buffer, releaseMs float64) (*audio.Buffer, error) {
	if b == nil {
		return nil, errNilBuffer
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if releaseMs < 0 {
		return nil, fmt.Errorf("release time must be >= 0, got %.2f", releaseMs)
	}
	if l.CeilingDB > 0 {
		return nil, fmt.Errorf("ceiling must be <= 0 dBFS, got %.2f", l.CeilingDB)
	}

	threshold := b.Format.MaxAmplitude() * math.Pow(10, l.CeilingDB/20)
	release := 0.0
	if releaseMs > 0 {
		release = math.Exp(-1 / (releaseMs / 1000 * float64(b.SampleRate)))
	}

	out := b.Clone()
	env := 0.0
	for i := 0; i < out.Frames(); i++ {
		peak := 0.0
		for _, ch := range out.Channels {
			peak = math.Max(peak, math.Abs(ch[i]))
		}
		if peak >= env {
			env = peak
		} else {
			env = peak + release*(env-peak)
		}

		gain := 1.0
		if env > threshold {
			gain = threshold / env
		}
		for _, ch := range out.Channels {
			v := ch[i] * gain
			if !b.Format.Float {
				v = math.Trunc(v)
			}
			ch[i] = v
		}
	}
	return out, nil
}

// Peak returns the largest absolute sample value across all channels
func Peak(b *audio.Buffer) float64 {
	peak := 0.0
	for _, ch := range b.Channels {
		if len(ch) == 0 {
			continue
		}
		peak = math.Max(peak, math.Max(math.Abs(floats.Max(ch)), math.Abs(floats.Min(ch))))
	}
	return peak
}
