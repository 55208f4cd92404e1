package dsp

import (
	"fmt"

	"github.com/audiolibrelab/masterweb/internal/audio"
)

// Stage is one named, fallible buffer transform
type Stage struct {
	Name  string
	Apply func(*audio.Buffer) (*audio.Buffer, error)
}

// Chain is an ordered list of stages
type Chain []Stage

// Names returns the stage names in order
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name
	}
	return names
}

// HighPassStage filters the side channel at cutoffHz
func HighPassStage(cutoffHz float64) Stage {
	return Stage{
		Name: "highpass",
		Apply: func(b *audio.Buffer) (*audio.Buffer, error) {
			return ApplyHighPass(b, cutoffHz)
		},
	}
}

// LimiterStage runs l with the given release time
func LimiterStage(l Limiter, releaseMs float64) Stage {
	return Stage{
		Name: fmt.Sprintf("limiter_%gms", releaseMs),
		Apply: func(b *audio.Buffer) (*audio.Buffer, error) {
			return l.Limit(b, releaseMs)
		},
	}
}

// ExpanderStage is the multiband expander slot
func ExpanderStage() Stage {
	return Stage{Name: "expander", Apply: ApplyExpander}
}
