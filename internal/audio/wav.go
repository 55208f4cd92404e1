package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/mjibson/go-dsp/wav"
)

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// ReadWAV decodes a RIFF/WAVE stream. 8-bit and 16-bit PCM and 32-bit
// float, plain or WAVE_FORMAT_EXTENSIBLE, are read natively; other valid
// encodings fail with ErrUnsupportedWAV. Header fields are checked before
// go-dsp sees them and the sample count is capped by the bytes present.
func ReadWAV(r io.Reader) (*Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	info, err := scanWAV(data)
	if err != nil {
		return nil, err
	}
	format, err := info.Format()
	if err != nil {
		return nil, err
	}
	samples, err := readSamples(info.canonical(data), info.Samples())
	if err != nil {
		return nil, err
	}
	return Deinterleave(samples, info.NumChannels, info.SampleRate, format)
}

func readSamples(data []byte, n int) (samples []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			samples, err = nil, fmt.Errorf("wav reader: %v", r)
		}
	}()

	w, err := wav.New(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []float64{}, nil
	}

	raw, err := w.ReadSamples(n)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	switch data := raw.(type) {
	case []uint8:
		samples = make([]float64, len(data))
		for i, v := range data {
			samples[i] = float64(int(v) - 128)
		}
	case []int16:
		samples = make([]float64, len(data))
		for i, v := range data {
			samples[i] = float64(v)
		}
	case []float32:
		samples = make([]float64, len(data))
		for i, v := range data {
			samples[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported sample type %T", raw)
	}
	return samples, nil
}

// ReadWAVFile decodes the WAV file at path
func ReadWAVFile(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	b, err := ReadWAV(bufio.NewReader(f))
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return b, nil
}

// EncodeWAV writes b as a canonical 44-byte-header WAV stream at the
// buffer's own sample rate and format.
func EncodeWAV(w io.Writer, b *Buffer) error {
	if err := b.Validate(); err != nil {
		return &EncodeError{Err: err}
	}

	channels := b.NumChannels()
	bytesPerSample := b.Format.BitDepth / 8
	blockAlign := channels * bytesPerSample
	dataSize := b.Frames() * blockAlign
	if uint64(dataSize)+36 > math.MaxUint32 {
		return &EncodeError{Err: errors.New("audio too long for a WAV container")}
	}

	audioFormat := uint16(wavFormatPCM)
	if b.Format.Float {
		audioFormat = wavFormatIEEEFloat
	}

	bw := bufio.NewWriter(w)
	header := []interface{}{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + dataSize),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		audioFormat,
		uint16(channels),
		uint32(b.SampleRate),
		uint32(b.SampleRate * blockAlign),
		uint16(blockAlign),
		uint16(b.Format.BitDepth),
		[4]byte{'d', 'a', 't', 'a'},
		uint32(dataSize),
	}
	for _, field := range header {
		if err := binary.Write(bw, binary.LittleEndian, field); err != nil {
			return &EncodeError{Err: err}
		}
	}

	frame := make([]byte, blockAlign)
	for i := 0; i < b.Frames(); i++ {
		for c := 0; c < channels; c++ {
			putSample(frame[c*bytesPerSample:], b.Format, b.Channels[c][i])
		}
		if _, err := bw.Write(frame); err != nil {
			return &EncodeError{Err: err}
		}
	}

	if err := bw.Flush(); err != nil {
		return &EncodeError{Err: err}
	}
	return nil
}

// WriteWAVFile encodes b into path, replacing any existing file. The file
// is written under a temporary name first so a failed encode leaves no
// partial output behind.
func WriteWAVFile(path string, b *Buffer) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".encode-*.wav")
	if err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if err := EncodeWAV(tmp, b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		var encErr *EncodeError
		if errors.As(err, &encErr) {
			encErr.Path = path
		}
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &EncodeError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &EncodeError{Path: path, Err: err}
	}
	return nil
}

func putSample(dst []byte, f SampleFormat, v float64) {
	if f.Float {
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f.Clamp(v))))
		return
	}

	s := int64(f.Clamp(v))
	switch f.BitDepth {
	case 8:
		dst[0] = byte(s + 128)
	case 16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(s)))
	case 24:
		dst[0] = byte(s)
		dst[1] = byte(s >> 8)
		dst[2] = byte(s >> 16)
	case 32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(s)))
	}
}
