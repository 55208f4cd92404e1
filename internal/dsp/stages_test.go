package dsp

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/audiolibrelab/masterweb/internal/audio"
)

func noise(seed int64, frames, channels int, format audio.SampleFormat) *audio.Buffer {
	rng := rand.New(rand.NewSource(seed))
	b := audio.NewBuffer(channels, frames, 44100, format)
	max := format.MaxAmplitude()
	for _, ch := range b.Channels {
		for i := range ch {
			ch[i] = format.Clamp((rng.Float64()*2 - 1) * max)
		}
	}
	return b
}

func TestApplyHighPass_LeavesFirstChannel(t *testing.T) {
	in := noise(1, 4096, 2, audio.FormatPCM16)
	orig := in.Clone()

	out, err := ApplyHighPass(in, 130)
	if err != nil {
		t.Fatalf("ApplyHighPass failed: %v", err)
	}

	for i := range in.Channels[0] {
		if out.Channels[0][i] != in.Channels[0][i] {
			t.Fatalf("first channel changed at sample %d", i)
		}
	}
	changed := false
	for i := range in.Channels[1] {
		if out.Channels[1][i] != in.Channels[1][i] {
			changed = true
			break
		}
	}
	if !changed {
		t.Error("second channel was not filtered")
	}
	if !in.Equal(orig) {
		t.Error("ApplyHighPass modified its input")
	}
	if out.SampleRate != in.SampleRate || out.Format != in.Format {
		t.Errorf("metadata changed: got %d/%s", out.SampleRate, out.Format)
	}
}

func TestApplyHighPass_QuantisesSide(t *testing.T) {
	out, err := ApplyHighPass(noise(2, 512, 2, audio.FormatPCM16), 130)
	if err != nil {
		t.Fatalf("ApplyHighPass failed: %v", err)
	}
	for i, v := range out.Channels[1] {
		if v != math.Round(v) || v > 32767 || v < -32768 {
			t.Fatalf("side sample %d = %v is not a valid 16-bit value", i, v)
		}
	}
}

func TestApplyHighPass_Silence(t *testing.T) {
	in := audio.NewBuffer(2, 88200, 44100, audio.FormatPCM16)

	out, err := ApplyHighPass(in, 130)
	if err != nil {
		t.Fatalf("ApplyHighPass failed: %v", err)
	}
	if !out.Equal(in) {
		t.Error("filtering silence did not produce silence")
	}
}

func TestApplyHighPass_Mono(t *testing.T) {
	mono := audio.NewBuffer(1, 100, 44100, audio.FormatPCM16)

	_, err := ApplyHighPass(mono, 130)
	if !errors.Is(err, audio.ErrChannelCount) {
		t.Errorf("Expected ErrChannelCount, got: %v", err)
	}
}

func TestApplyHighPass_InvalidCutoff(t *testing.T) {
	in := noise(3, 64, 2, audio.FormatPCM16)
	orig := in.Clone()

	for _, cutoff := range []float64{0, 22050, 50000} {
		_, err := ApplyHighPass(in, cutoff)
		if !errors.Is(err, ErrInvalidCutoff) {
			t.Errorf("cutoff %v: expected ErrInvalidCutoff, got: %v", cutoff, err)
		}
	}
	if !in.Equal(orig) {
		t.Error("input modified by a rejected call")
	}

	// The cutoff is checked before the channel layout
	mono := audio.NewBuffer(1, 64, 44100, audio.FormatPCM16)
	if _, err := ApplyHighPass(mono, 0); !errors.Is(err, ErrInvalidCutoff) {
		t.Errorf("Expected ErrInvalidCutoff for mono input with bad cutoff, got: %v", err)
	}
}

func TestApplyHighPass_InvalidBuffer(t *testing.T) {
	zeroFormat := noise(4, 64, 2, audio.FormatPCM16)
	zeroFormat.Format = audio.SampleFormat{}

	wide := noise(5, 64, 2, audio.FormatPCM16)
	wide.Format = audio.SampleFormat{BitDepth: 64}

	ragged := noise(6, 64, 2, audio.FormatPCM16)
	ragged.Channels[1] = ragged.Channels[1][:10]

	for name, in := range map[string]*audio.Buffer{
		"zero format": zeroFormat,
		"64-bit PCM":  wide,
		"ragged":      ragged,
	} {
		if _, err := ApplyHighPass(in, 130); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	if _, err := ApplyHighPass(nil, 130); err == nil {
		t.Error("Expected error for nil buffer")
	}

	noRate := noise(7, 64, 2, audio.FormatPCM16)
	noRate.SampleRate = 0
	_, err := ApplyHighPass(noRate, 130)
	if !errors.Is(err, audio.ErrInvalidSampleRate) || errors.Is(err, ErrInvalidCutoff) {
		t.Errorf("Expected ErrInvalidSampleRate, got: %v", err)
	}
}

func TestApplyLimiter_PeakNeverGrows(t *testing.T) {
	formats := []audio.SampleFormat{audio.FormatPCM8, audio.FormatPCM16, audio.FormatPCM24, audio.FormatFloat32}
	for seed, format := range formats {
		for _, channels := range []int{1, 2} {
			in := noise(int64(seed), 1000, channels, format)
			out, err := ApplyLimiter(in, 30)
			if err != nil {
				t.Fatalf("%s/%dch: ApplyLimiter failed: %v", format, channels, err)
			}
			if Peak(out) > Peak(in) {
				t.Errorf("%s/%dch: output peak %v exceeds input peak %v", format, channels, Peak(out), Peak(in))
			}
		}
	}
}

func TestApplyLimiter_StaticGain(t *testing.T) {
	// 32768 dB of attenuation leaves nothing of a 16-bit signal
	in := noise(4, 256, 2, audio.FormatPCM16)
	out, err := ApplyLimiter(in, 30)
	if err != nil {
		t.Fatalf("ApplyLimiter failed: %v", err)
	}
	if Peak(out) != 0 {
		t.Errorf("16-bit peak after limiting = %v, want 0", Peak(out))
	}

	// Float formats have a max amplitude of 1, i.e. 1 dB of reduction
	f := audio.NewBuffer(1, 1, 48000, audio.FormatFloat32)
	f.Channels[0][0] = 0.5
	out, err = ApplyLimiter(f, 30)
	if err != nil {
		t.Fatalf("ApplyLimiter failed: %v", err)
	}
	want := 0.5 * math.Pow(10, -1.0/20)
	if math.Abs(out.Channels[0][0]-want) > 1e-12 {
		t.Errorf("float sample = %v, want %v", out.Channels[0][0], want)
	}
	if f.Channels[0][0] != 0.5 {
		t.Error("ApplyLimiter modified its input")
	}
}

func TestApplyLimiter_ReleaseIgnored(t *testing.T) {
	in := noise(5, 512, 2, audio.FormatFloat32)

	a, _ := ApplyLimiter(in, 30)
	b, _ := ApplyLimiter(in, 100)
	if !a.Equal(b) {
		t.Error("release time changed the static limiter output")
	}
}

func TestEnvelopeLimiter(t *testing.T) {
	l := EnvelopeLimiter{CeilingDB: -6}
	in := noise(6, 4096, 2, audio.FormatPCM16)
	threshold := 32768 * math.Pow(10, -6.0/20)

	out, err := l.Limit(in, 100)
	if err != nil {
		t.Fatalf("Limit failed: %v", err)
	}
	if p := Peak(out); p > threshold || p > Peak(in) {
		t.Errorf("peak %v exceeds threshold %v or input peak %v", p, threshold, Peak(in))
	}

	// Signals below the ceiling pass untouched
	quiet := audio.NewBuffer(2, 100, 44100, audio.FormatPCM16)
	for i := range quiet.Channels[0] {
		quiet.Channels[0][i] = float64(i)
		quiet.Channels[1][i] = -float64(i)
	}
	out, err = l.Limit(quiet, 100)
	if err != nil {
		t.Fatalf("Limit failed: %v", err)
	}
	if !out.Equal(quiet) {
		t.Error("quiet signal was altered")
	}

	if _, err := l.Limit(quiet, -1); err == nil {
		t.Error("Expected error for negative release time")
	}
	if _, err := (EnvelopeLimiter{CeilingDB: 3}).Limit(quiet, 10); err == nil {
		t.Error("Expected error for positive ceiling")
	}
}

func TestEnvelopeLimiter_ReleaseRecovers(t *testing.T) {
	b := audio.NewBuffer(1, 44100, 44100, audio.FormatFloat32)
	b.Channels[0][0] = 1
	for i := 1; i < len(b.Channels[0]); i++ {
		b.Channels[0][i] = 0.5
	}
	l := EnvelopeLimiter{CeilingDB: -12}

	fast, _ := l.Limit(b, 1)
	slow, _ := l.Limit(b, 500)

	// 100 ms after the spike the fast release has let go further than the slow one
	i := 4410
	if fast.Channels[0][i] < slow.Channels[0][i] {
		t.Errorf("fast release %v below slow release %v", fast.Channels[0][i], slow.Channels[0][i])
	}
}

func TestNewLimiter(t *testing.T) {
	for _, mode := range []LimiterMode{"", LimiterStatic} {
		l, err := NewLimiter(mode)
		if err != nil {
			t.Fatalf("NewLimiter(%q) failed: %v", mode, err)
		}
		if _, ok := l.(StaticLimiter); !ok {
			t.Errorf("NewLimiter(%q) = %T, want StaticLimiter", mode, l)
		}
	}
	l, err := NewLimiter(LimiterEnvelope)
	if err != nil {
		t.Fatalf("NewLimiter(envelope) failed: %v", err)
	}
	if _, ok := l.(EnvelopeLimiter); !ok {
		t.Errorf("NewLimiter(envelope) = %T, want EnvelopeLimiter", l)
	}
	if _, err := NewLimiter("brickwall"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestApplyExpander_Identity(t *testing.T) {
	for _, in := range []*audio.Buffer{
		noise(7, 300, 2, audio.FormatPCM16),
		noise(8, 300, 1, audio.FormatFloat32),
		audio.NewBuffer(2, 0, 44100, audio.FormatPCM16),
	} {
		orig := in.Clone()
		out, err := ApplyExpander(in)
		if err != nil {
			t.Fatalf("ApplyExpander failed: %v", err)
		}
		if !out.Equal(orig) {
			t.Error("ApplyExpander changed the signal")
		}
	}

	if _, err := ApplyExpander(nil); err == nil {
		t.Error("Expected error for nil buffer")
	}
	bad := &audio.Buffer{Channels: [][]float64{{1}, {1, 2}}, SampleRate: 44100, Format: audio.FormatPCM16}
	if _, err := ApplyExpander(bad); !errors.Is(err, audio.ErrChannelLengthMismatch) {
		t.Errorf("Expected ErrChannelLengthMismatch, got: %v", err)
	}
}

func TestStageNames(t *testing.T) {
	chain := Chain{
		HighPassStage(130),
		LimiterStage(StaticLimiter{}, 30),
		LimiterStage(StaticLimiter{}, 100),
		ExpanderStage(),
	}
	want := []string{"highpass", "limiter_30ms", "limiter_100ms", "expander"}
	got := chain.Names()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPeak(t *testing.T) {
	b := audio.NewBuffer(2, 3, 44100, audio.FormatPCM16)
	copy(b.Channels[0], []float64{1, -700, 3})
	copy(b.Channels[1], []float64{500, 2, -4})
	if got := Peak(b); got != 700 {
		t.Errorf("Peak = %v, want 700", got)
	}
	if got := Peak(audio.NewBuffer(2, 0, 44100, audio.FormatPCM16)); got != 0 {
		t.Errorf("Peak of empty buffer = %v, want 0", got)
	}
}
