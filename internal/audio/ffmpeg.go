package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Codec decodes uploaded files and converts mastered files using WAV
// natively and ffmpeg for everything else.
type Codec struct {
	FFmpeg  string
	FFprobe string
}

// NewCodec returns a codec using the given ffmpeg and ffprobe binaries,
// falling back to the names on PATH.
func NewCodec(ffmpeg, ffprobe string) *Codec {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Codec{FFmpeg: ffmpeg, FFprobe: ffprobe}
}

// Decode reads path into a Buffer. WAV files are parsed directly unless
// their encoding is one the native reader rejects; those and other
// containers (mp3) go through ffmpeg at the source rate, as 16-bit PCM or,
// for deeper sources, as 32-bit PCM tagged with the source depth.
func (c *Codec) Decode(ctx context.Context, path string) (*Buffer, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		b, err := ReadWAVFile(path)
		if err == nil || !errors.Is(err, ErrUnsupportedWAV) {
			return b, err
		}
		slog.Debug("Falling back to FFmpeg for WAV", "path", path, "reason", err)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	rate, channels, bits, err := c.probe(ctx, path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if channels > 2 {
		// Downmix anything wider than stereo, the chain only knows L/R.
		channels = 2
	}

	pcm, codec := "s16le", "pcm_s16le"
	if bits > 16 {
		pcm, codec = "s32le", "pcm_s32le"
	}

	cmd := exec.CommandContext(ctx, c.FFmpeg,
		"-i", path,
		"-f", pcm,
		"-acodec", codec,
		"-ar", strconv.Itoa(rate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "error",
		"pipe:1",
	)
	slog.Debug("Running FFmpeg for decoding", "command", strings.Join(cmd.Args, " "))

	out, err := cmd.Output()
	if err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("ffmpeg: %w", err)}
	}

	var b *Buffer
	switch {
	case bits > 24:
		b, err = DecodePCM32(out, channels, rate, FormatPCM32)
	case bits > 16:
		b, err = DecodePCM32(out, channels, rate, FormatPCM24)
	default:
		b, err = DecodePCM16(out, channels, rate)
	}
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return b, nil
}

// DecodePCM16 turns raw interleaved little-endian int16 bytes into a Buffer
func DecodePCM16(raw []byte, channels, sampleRate int) (*Buffer, error) {
	// Ensure even byte count for int16 alignment
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2])))
	}
	return Deinterleave(samples, channels, sampleRate, FormatPCM16)
}

// DecodePCM32 turns raw interleaved little-endian int32 bytes into a Buffer
// of the given integer format, dropping the low bits below its depth.
func DecodePCM32(raw []byte, channels, sampleRate int, format SampleFormat) (*Buffer, error) {
	if format.Float || format.BitDepth < 8 || format.BitDepth > 32 {
		return nil, fmt.Errorf("cannot hold 32-bit PCM in %s", format)
	}
	shift := 32 - format.BitDepth

	raw = raw[:len(raw)-len(raw)%4]
	samples := make([]float64, len(raw)/4)
	for i := range samples {
		samples[i] = float64(int32(binary.LittleEndian.Uint32(raw[i*4:i*4+4])) >> shift)
	}
	return Deinterleave(samples, channels, sampleRate, format)
}

// probe asks ffprobe for the sample rate, channel count and bit depth of
// the first audio stream. Lossy streams report a depth of 0.
func (c *Codec) probe(ctx context.Context, path string) (rate, channels, bits int, err error) {
	cmd := exec.CommandContext(ctx, c.FFprobe,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate,channels,bits_per_sample",
		"-of", "csv=p=0",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(string(out))
}

func parseProbe(out string) (rate, channels, bits int, err error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return 0, 0, 0, fmt.Errorf("unexpected ffprobe output: %q", out)
	}

	rate, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || rate <= 0 {
		return 0, 0, 0, fmt.Errorf("invalid sample rate in ffprobe output: %q", parts[0])
	}
	channels, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || channels <= 0 {
		return 0, 0, 0, fmt.Errorf("invalid channel count in ffprobe output: %q", parts[1])
	}
	if len(parts) > 2 {
		// "N/A" or garbage means unknown, treated like a lossy source
		if n, err := strconv.Atoi(strings.TrimSpace(parts[2])); err == nil && n > 0 {
			bits = n
		}
	}
	return rate, channels, bits, nil
}

// Convert transcodes src into dst. Only mp3 and wav targets are known.
func (c *Codec) Convert(ctx context.Context, src, dst, format string) error {
	var codecArgs []string
	switch strings.ToLower(format) {
	case "mp3":
		codecArgs = []string{"-c:a", "libmp3lame", "-q:a", "2"}
	case "wav":
		codecArgs = []string{"-c:a", "pcm_s16le"}
	default:
		return fmt.Errorf("unsupported target format: %s", format)
	}

	args := append([]string{"-i", src}, codecArgs...)
	args = append(args, "-y", dst)
	cmd := exec.CommandContext(ctx, c.FFmpeg, args...)

	slog.Debug("Running FFmpeg for conversion", "command", strings.Join(cmd.Args, " "))

	output, err := cmd.CombinedOutput()
	if err != nil {
		return &EncodeError{Path: dst, Err: fmt.Errorf("ffmpeg conversion failed: %w\nOutput: %s", err, string(output))}
	}

	if _, err := os.Stat(dst); err != nil {
		return &EncodeError{Path: dst, Err: fmt.Errorf("output file not created: %w", err)}
	}
	return nil
}

// AllowedExtension reports whether name ends in one of the allowed extensions
func AllowedExtension(name string, allowed []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if ext == strings.ToLower(strings.TrimPrefix(a, ".")) {
			return true
		}
	}
	return false
}
