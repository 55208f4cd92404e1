package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnsupportedWAV marks WAV files that are well formed but use an encoding
// the native reader does not handle (24/32-bit PCM, more than two
// channels). Callers can hand those to ffmpeg instead.
var ErrUnsupportedWAV = errors.New("unsupported WAV encoding")

const (
	wavFormatExtensible = 0xFFFE
	wavHeaderSize       = 44

	maxWAVSampleRate = 768000
	maxWAVChannels   = 32
)

// wavInfo is what the fmt and data chunks of a WAV stream declare
type wavInfo struct {
	AudioFormat   uint16 // resolved through the extensible sub-format
	NumChannels   int
	SampleRate    int
	BitsPerSample int
	dataOffset    int
	dataSize      int // clamped to the bytes actually present
}

// Format returns the sample format the native reader decodes to, or an
// error wrapping ErrUnsupportedWAV.
func (h wavInfo) Format() (SampleFormat, error) {
	if h.NumChannels > 2 {
		return SampleFormat{}, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, h.NumChannels)
	}
	switch {
	case h.AudioFormat == wavFormatIEEEFloat && h.BitsPerSample == 32:
		return FormatFloat32, nil
	case h.AudioFormat == wavFormatPCM && h.BitsPerSample == 8:
		return FormatPCM8, nil
	case h.AudioFormat == wavFormatPCM && h.BitsPerSample == 16:
		return FormatPCM16, nil
	}
	return SampleFormat{}, fmt.Errorf("%w: format %#x, %d bits", ErrUnsupportedWAV, h.AudioFormat, h.BitsPerSample)
}

// Samples returns how many whole interleaved samples the data chunk holds
func (h wavInfo) Samples() int {
	n := h.dataSize / (h.BitsPerSample / 8)
	return n - n%h.NumChannels
}

// scanWAV walks the RIFF chunks of data and validates the fmt chunk before
// any sample is read.
func scanWAV(data []byte) (wavInfo, error) {
	var h wavInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return h, errors.New("not a RIFF/WAVE stream")
	}

	hasFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		remaining := len(data) - body

		switch id {
		case "fmt ":
			if size < 16 || size > remaining {
				return h, fmt.Errorf("bad fmt chunk size %d", size)
			}
			if err := h.parseFmt(data[body : body+size]); err != nil {
				return h, err
			}
			hasFmt = true
		case "data":
			if !hasFmt {
				return h, errors.New("data chunk before fmt chunk")
			}
			h.dataOffset = body
			h.dataSize = min(size, remaining)
			return h, nil
		}

		if size > remaining {
			break
		}
		// chunks are padded to an even length
		pos = body + size + size%2
	}
	return h, errors.New("missing data chunk")
}

func (h *wavInfo) parseFmt(chunk []byte) error {
	h.AudioFormat = binary.LittleEndian.Uint16(chunk[0:2])
	h.NumChannels = int(binary.LittleEndian.Uint16(chunk[2:4]))
	h.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
	h.BitsPerSample = int(binary.LittleEndian.Uint16(chunk[14:16]))

	if h.AudioFormat == wavFormatExtensible {
		// cbSize(2) validBits(2) channelMask(4) then the sub-format GUID,
		// whose first two bytes are the real format tag
		if len(chunk) < 26 {
			return errors.New("extensible fmt chunk too short")
		}
		h.AudioFormat = binary.LittleEndian.Uint16(chunk[24:26])
	}

	switch {
	case h.AudioFormat != wavFormatPCM && h.AudioFormat != wavFormatIEEEFloat:
		return fmt.Errorf("unknown audio format %#x", h.AudioFormat)
	case h.NumChannels < 1 || h.NumChannels > maxWAVChannels:
		return fmt.Errorf("invalid channel count %d", h.NumChannels)
	case h.SampleRate < 1 || h.SampleRate > maxWAVSampleRate:
		return fmt.Errorf("invalid sample rate %d", h.SampleRate)
	case h.BitsPerSample < 8 || h.BitsPerSample > 64 || h.BitsPerSample%8 != 0:
		return fmt.Errorf("invalid bits per sample %d", h.BitsPerSample)
	}
	return nil
}

// canonical rebuilds data as a plain 44-byte-header stream holding only the
// validated fmt fields and the present data bytes, which is the layout
// go-dsp's chunk walker reads without surprises.
func (h wavInfo) canonical(data []byte) []byte {
	blockAlign := h.NumChannels * h.BitsPerSample / 8
	out := make([]byte, wavHeaderSize, wavHeaderSize+h.dataSize)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+h.dataSize))
	copy(out[8:16], "WAVEfmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], h.AudioFormat)
	binary.LittleEndian.PutUint16(out[22:24], uint16(h.NumChannels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(h.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(h.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(h.BitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(h.dataSize))
	return append(out, data[h.dataOffset:h.dataOffset+h.dataSize]...)
}
