package audio

import (
	"errors"
	"testing"
	"time"
)

func stereoRamp(frames int) *Buffer {
	b := NewBuffer(2, frames, 44100, FormatPCM16)
	for i := 0; i < frames; i++ {
		b.Channels[0][i] = float64(i%200 - 100)
		b.Channels[1][i] = float64(50 - i%100)
	}
	return b
}

func TestSplitJoin_RoundTrip(t *testing.T) {
	for _, frames := range []int{0, 1, 7, 1024} {
		in := stereoRamp(frames)

		cs, err := Split(in)
		if err != nil {
			t.Fatalf("Split(%d frames) failed: %v", frames, err)
		}
		out, err := Join(cs)
		if err != nil {
			t.Fatalf("Join(%d frames) failed: %v", frames, err)
		}
		if !out.Equal(in) {
			t.Errorf("round trip of %d frames changed the buffer", frames)
		}
	}
}

func TestSplit_CopiesChannels(t *testing.T) {
	in := stereoRamp(16)
	cs, err := Split(in)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	cs.Right[0] = 12345
	if in.Channels[1][0] == 12345 {
		t.Error("Split shares memory with its input")
	}
}

func TestSplit_Mono(t *testing.T) {
	mono := NewBuffer(1, 100, 44100, FormatPCM16)

	_, err := Split(mono)
	if !errors.Is(err, ErrChannelCount) {
		t.Errorf("Expected ErrChannelCount for mono input, got: %v", err)
	}

	_, err = Split(nil)
	if !errors.Is(err, ErrChannelCount) {
		t.Errorf("Expected ErrChannelCount for nil input, got: %v", err)
	}
}

func TestSplit_LengthMismatch(t *testing.T) {
	b := stereoRamp(10)
	b.Channels[1] = b.Channels[1][:9]

	_, err := Split(b)
	if !errors.Is(err, ErrChannelLengthMismatch) {
		t.Errorf("Expected ErrChannelLengthMismatch, got: %v", err)
	}
}

func TestJoin_LengthMismatch(t *testing.T) {
	cs := ChannelSet{
		Left:       make([]float64, 10),
		Right:      make([]float64, 11),
		SampleRate: 48000,
		Format:     FormatPCM16,
	}

	_, err := Join(cs)
	if !errors.Is(err, ErrChannelLengthMismatch) {
		t.Errorf("Expected ErrChannelLengthMismatch, got: %v", err)
	}
}

func TestDeinterleave(t *testing.T) {
	b, err := Deinterleave([]float64{1, -1, 2, -2, 3, -3}, 2, 8000, FormatPCM16)
	if err != nil {
		t.Fatalf("Deinterleave failed: %v", err)
	}
	if b.Frames() != 3 {
		t.Fatalf("Frames = %d, want 3", b.Frames())
	}
	if b.Channels[0][2] != 3 || b.Channels[1][2] != -3 {
		t.Errorf("unexpected channel data: %v", b.Channels)
	}

	got := b.Interleave()
	want := []float64{1, -1, 2, -2, 3, -3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Interleave()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// An odd number of samples cannot be split into two equal channels
	if _, err := Deinterleave([]float64{1, 2, 3}, 2, 8000, FormatPCM16); !errors.Is(err, ErrChannelLengthMismatch) {
		t.Errorf("Expected ErrChannelLengthMismatch for odd sample count, got: %v", err)
	}
}

func TestBuffer_Validate(t *testing.T) {
	tests := []struct {
		name    string
		buf     *Buffer
		wantErr error
	}{
		{"valid stereo", stereoRamp(4), nil},
		{"no channels", &Buffer{SampleRate: 44100, Format: FormatPCM16}, ErrChannelCount},
		{"three channels", NewBuffer(3, 4, 44100, FormatPCM16), ErrChannelCount},
		{"mismatch", &Buffer{Channels: [][]float64{{1, 2}, {1}}, SampleRate: 44100, Format: FormatPCM16}, ErrChannelLengthMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.buf.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got: %v", tt.wantErr, err)
			}
		})
	}

	if err := NewBuffer(2, 4, 0, FormatPCM16).Validate(); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if err := NewBuffer(2, 4, 44100, SampleFormat{BitDepth: 12}).Validate(); err == nil {
		t.Error("Expected error for 12-bit format")
	}
}

func TestSampleFormat_MaxAmplitudeAndClamp(t *testing.T) {
	tests := []struct {
		format SampleFormat
		max    float64
	}{
		{FormatPCM8, 128},
		{FormatPCM16, 32768},
		{FormatPCM24, 8388608},
		{FormatPCM32, 2147483648},
		{FormatFloat32, 1},
	}
	for _, tt := range tests {
		if got := tt.format.MaxAmplitude(); got != tt.max {
			t.Errorf("%s MaxAmplitude = %v, want %v", tt.format, got, tt.max)
		}
	}

	if got := FormatPCM16.Clamp(40000); got != 32767 {
		t.Errorf("Clamp(40000) = %v, want 32767", got)
	}
	if got := FormatPCM16.Clamp(-40000); got != -32768 {
		t.Errorf("Clamp(-40000) = %v, want -32768", got)
	}
	if got := FormatPCM16.Clamp(1.6); got != 2 {
		t.Errorf("Clamp(1.6) = %v, want 2", got)
	}
	if got := FormatFloat32.Clamp(1.5); got != 1 {
		t.Errorf("float Clamp(1.5) = %v, want 1", got)
	}
}

func TestBuffer_Duration(t *testing.T) {
	b := NewBuffer(2, 88200, 44100, FormatPCM16)
	if got := b.Duration(); got != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", got)
	}
}
