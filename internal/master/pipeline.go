package master

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/audiolibrelab/masterweb/internal/audio"
	"github.com/audiolibrelab/masterweb/internal/dsp"
)

// Pipeline constants of the reference mastering chain
const (
	HighPassCutoffHz = 130
	FirstReleaseMs   = 30
	SecondReleaseMs  = 100
)

// StageEncode is the stage name reported when writing the output fails
const StageEncode = "encode"

// Request identifies a mastering run. Quality and AudioType are opaque
// labels that only feed the output name.
type Request struct {
	Quality   string `json:"quality"`
	AudioType string `json:"audio_type"`
	Filename  string `json:"filename"`
}

// OutputName returns the deterministic name of the mastered artifact
func (r Request) OutputName() string {
	return fmt.Sprintf("mastered_%s_%s_%s", r.Quality, r.AudioType, r.Filename)
}

// Result is what a mastering run hands back to its caller
type Result struct {
	OutputFilename string `json:"output_filename"`
	Success        bool   `json:"success"`
}

// Failed wraps the error of the stage that aborted a run
type Failed struct {
	Stage string
	Err   error
}

func (f *Failed) Error() string {
	return fmt.Sprintf("mastering failed at %s: %v", f.Stage, f.Err)
}

func (f *Failed) Unwrap() error { return f.Err }

// Sink receives the mastered buffer under its output name
type Sink interface {
	Write(name string, b *audio.Buffer) error
}

// FileSink writes WAV files into a directory, replacing existing ones
type FileSink struct {
	Dir string
}

// Write implements Sink
func (s FileSink) Write(name string, b *audio.Buffer) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return &audio.EncodeError{Path: s.Dir, Err: err}
	}
	return audio.WriteWAVFile(filepath.Join(s.Dir, name), b)
}

// DefaultStages returns the reference chain: side-channel high-pass, two
// limiters in series and the expander slot.
func DefaultStages(l dsp.Limiter) dsp.Chain {
	if l == nil {
		l = dsp.StaticLimiter{}
	}
	return dsp.Chain{
		dsp.HighPassStage(HighPassCutoffHz),
		dsp.LimiterStage(l, FirstReleaseMs),
		dsp.LimiterStage(l, SecondReleaseMs),
		dsp.ExpanderStage(),
	}
}

// Pipeline runs a chain of stages over a buffer and hands the result to a sink
type Pipeline struct {
	Stages dsp.Chain
	Sink   Sink
}

// New returns a pipeline with the reference stages writing into sink
func New(l dsp.Limiter, sink Sink) *Pipeline {
	return &Pipeline{Stages: DefaultStages(l), Sink: sink}
}

// Process runs every stage in order. Cancellation is checked between stages,
// a running stage is never interrupted.
func (p *Pipeline) Process(ctx context.Context, in *audio.Buffer) (*audio.Buffer, error) {
	buf := in
	for _, stage := range p.Stages {
		if err := ctx.Err(); err != nil {
			return nil, &Failed{Stage: stage.Name, Err: err}
		}
		out, err := stage.Apply(buf)
		if err != nil {
			return nil, &Failed{Stage: stage.Name, Err: err}
		}
		buf = out
	}
	return buf, nil
}

// Master processes in and writes it to the sink under req.OutputName().
// Nothing is written unless every stage succeeded.
func (p *Pipeline) Master(ctx context.Context, in *audio.Buffer, req Request) (Result, error) {
	if req.Filename == "" {
		return Result{}, errors.New("request has no filename")
	}

	out, err := p.Process(ctx, in)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, &Failed{Stage: StageEncode, Err: err}
	}

	name := req.OutputName()
	if p.Sink != nil {
		if err := p.Sink.Write(name, out); err != nil {
			return Result{}, &Failed{Stage: StageEncode, Err: err}
		}
	}

	return Result{OutputFilename: name, Success: true}, nil
}
