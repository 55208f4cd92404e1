package audio

import "fmt"

// ChannelSet is a stereo buffer taken apart into its two channels.
// Right is treated as the side signal by the mastering chain.
type ChannelSet struct {
	Left       []float64
	Right      []float64
	SampleRate int
	Format     SampleFormat
}

// Split decomposes a stereo buffer. Mono input has no side channel and is
// rejected rather than duplicated.
func Split(b *Buffer) (ChannelSet, error) {
	if b == nil || b.NumChannels() != 2 {
		n := 0
		if b != nil {
			n = b.NumChannels()
		}
		return ChannelSet{}, fmt.Errorf("%w: split needs 2 channels, got %d", ErrChannelCount, n)
	}
	if len(b.Channels[0]) != len(b.Channels[1]) {
		return ChannelSet{}, fmt.Errorf("%w: left %d, right %d",
			ErrChannelLengthMismatch, len(b.Channels[0]), len(b.Channels[1]))
	}

	return ChannelSet{
		Left:       append([]float64(nil), b.Channels[0]...),
		Right:      append([]float64(nil), b.Channels[1]...),
		SampleRate: b.SampleRate,
		Format:     b.Format,
	}, nil
}

// Join reassembles a channel set into a planar stereo buffer
func Join(cs ChannelSet) (*Buffer, error) {
	if len(cs.Left) != len(cs.Right) {
		return nil, fmt.Errorf("%w: left %d, right %d",
			ErrChannelLengthMismatch, len(cs.Left), len(cs.Right))
	}

	return &Buffer{
		Channels:   [][]float64{cs.Left, cs.Right},
		SampleRate: cs.SampleRate,
		Format:     cs.Format,
	}, nil
}
