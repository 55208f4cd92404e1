package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrChannelCount is returned when a buffer lacks the channel layout an operation needs.
	ErrChannelCount = errors.New("unsupported channel count")
	// ErrChannelLengthMismatch is returned when channels of one buffer differ in length.
	ErrChannelLengthMismatch = errors.New("channel length mismatch")
	// ErrInvalidSampleRate is returned for a sample rate that is not positive.
	ErrInvalidSampleRate = errors.New("invalid sample rate")
)

// SampleFormat describes how samples are stored on disk
type SampleFormat struct {
	BitDepth int  `json:"bit_depth" yaml:"bit_depth"`
	Float    bool `json:"float" yaml:"float"`
}

var (
	FormatPCM8    = SampleFormat{BitDepth: 8}
	FormatPCM16   = SampleFormat{BitDepth: 16}
	FormatPCM24   = SampleFormat{BitDepth: 24}
	FormatPCM32   = SampleFormat{BitDepth: 32}
	FormatFloat32 = SampleFormat{BitDepth: 32, Float: true}
)

// Validate reports whether the format can be encoded and decoded
func (f SampleFormat) Validate() error {
	if f.Float {
		if f.BitDepth != 32 {
			return fmt.Errorf("unsupported float bit depth: %d", f.BitDepth)
		}
		return nil
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
		return nil
	}
	return fmt.Errorf("unsupported PCM bit depth: %d", f.BitDepth)
}

// MaxAmplitude returns the largest magnitude the format can represent.
// Samples of integer formats live in [-MaxAmplitude, MaxAmplitude-1].
func (f SampleFormat) MaxAmplitude() float64 {
	if f.Float {
		return 1.0
	}
	return float64(int64(1) << (f.BitDepth - 1))
}

// Clamp rounds v to the nearest representable value of the format
func (f SampleFormat) Clamp(v float64) float64 {
	if f.Float {
		return math.Max(-1, math.Min(1, v))
	}
	max := f.MaxAmplitude()
	v = math.Round(v)
	if v > max-1 {
		return max - 1
	}
	if v < -max {
		return -max
	}
	return v
}

func (f SampleFormat) String() string {
	if f.Float {
		return fmt.Sprintf("f%d", f.BitDepth)
	}
	return fmt.Sprintf("s%d", f.BitDepth)
}

// Buffer holds decoded audio as planar channels.
//
// Samples keep the numeric scale of their source format: a 16-bit file
// decodes to values in [-32768, 32767], a float file to [-1, 1].
type Buffer struct {
	Channels   [][]float64
	SampleRate int
	Format     SampleFormat
}

// NewBuffer allocates a silent buffer
func NewBuffer(channels, frames, sampleRate int, format SampleFormat) *Buffer {
	b := &Buffer{
		Channels:   make([][]float64, channels),
		SampleRate: sampleRate,
		Format:     format,
	}
	for i := range b.Channels {
		b.Channels[i] = make([]float64, frames)
	}
	return b
}

// NumChannels returns the channel count
func (b *Buffer) NumChannels() int {
	return len(b.Channels)
}

// Frames returns the number of samples per channel
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playing time of the buffer
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Validate checks the structural invariants of the buffer
func (b *Buffer) Validate() error {
	if b == nil {
		return errors.New("nil audio buffer")
	}
	if n := len(b.Channels); n < 1 || n > 2 {
		return fmt.Errorf("%w: %d", ErrChannelCount, n)
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, b.SampleRate)
	}
	if err := b.Format.Validate(); err != nil {
		return err
	}
	frames := len(b.Channels[0])
	for i, ch := range b.Channels[1:] {
		if len(ch) != frames {
			return fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d",
				ErrChannelLengthMismatch, i+1, len(ch), frames)
		}
	}
	return nil
}

// Clone returns a deep copy of the buffer
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{
		Channels:   make([][]float64, len(b.Channels)),
		SampleRate: b.SampleRate,
		Format:     b.Format,
	}
	for i, ch := range b.Channels {
		out.Channels[i] = append([]float64(nil), ch...)
	}
	return out
}

// Equal reports whether two buffers hold identical samples and metadata
func (b *Buffer) Equal(o *Buffer) bool {
	if b.SampleRate != o.SampleRate || b.Format != o.Format || len(b.Channels) != len(o.Channels) {
		return false
	}
	for i := range b.Channels {
		if len(b.Channels[i]) != len(o.Channels[i]) {
			return false
		}
		for j := range b.Channels[i] {
			if b.Channels[i][j] != o.Channels[i][j] {
				return false
			}
		}
	}
	return true
}

// Interleave returns the samples frame by frame (L R L R ...)
func (b *Buffer) Interleave() []float64 {
	n := b.NumChannels()
	out := make([]float64, b.Frames()*n)
	for c, ch := range b.Channels {
		for i, v := range ch {
			out[i*n+c] = v
		}
	}
	return out
}

// Deinterleave builds a buffer from frame-ordered samples
func Deinterleave(samples []float64, channels, sampleRate int, format SampleFormat) (*Buffer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrChannelCount, channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%w: %d samples do not divide into %d channels",
			ErrChannelLengthMismatch, len(samples), channels)
	}
	b := NewBuffer(channels, len(samples)/channels, sampleRate, format)
	for i, v := range samples {
		b.Channels[i%channels][i/channels] = v
	}
	return b, nil
}
