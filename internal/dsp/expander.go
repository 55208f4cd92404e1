package dsp

import "github.com/audiolibrelab/masterweb/internal/audio"

// ApplyExpander is the multiband expander slot of the chain. It validates
// its input and passes it through unchanged.
//
// TODO: split into bands with crossover filters and apply a downward
// expansion curve per band once band settings exist in the config.
func ApplyExpander(b *audio.Buffer) (*audio.Buffer, error) {
	if b == nil {
		return nil, errNilBuffer
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
