package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/audiolibrelab/masterweb/internal/audio"
	"github.com/audiolibrelab/masterweb/internal/config"
	"github.com/audiolibrelab/masterweb/internal/dsp"
	"github.com/audiolibrelab/masterweb/internal/master"
	"github.com/audiolibrelab/masterweb/internal/play"
	"github.com/audiolibrelab/masterweb/internal/review"
)

var (
	// ErrInvalidFile is returned for uploads with an empty name or a
	// disallowed extension
	ErrInvalidFile = errors.New("invalid file format")
	// ErrNotFound is returned when a requested upload or mastered file does not exist
	ErrNotFound = errors.New("file not found")
	// ErrUnsupportedFormat is returned for download formats other than wav and mp3
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrPlaybackDisabled is returned by playback calls when no device is configured
	ErrPlaybackDisabled = errors.New("server-side playback is disabled")
)

// Service represents the core mastering service interface
type Service interface {
	// Upload and mastering operations
	SaveUpload(filename string, r io.Reader) (string, error)
	Master(ctx context.Context, uploadedName, quality, audioType string) (master.Result, error)
	Submit(uploadedName, quality, audioType string) string
	JobStatus(id string) (Job, bool)

	// File operations
	DownloadPath(ctx context.Context, filename, format string) (string, error)
	OriginalPath(filename string) (string, error)
	MasteredPath(filename string) (string, error)

	// Playback operations
	Play(path string) error
	Pause() error
	Resume() error
	StopPlayback() error
	PlaybackStatus() play.Status

	// Review operations
	AddReview(ctx context.Context, author, content string) (review.Review, error)
	ListReviews(ctx context.Context) ([]review.Review, error)

	GetConfig() *config.Config
	Close() error
}

// Decoder turns a file on disk into a buffer
type Decoder interface {
	Decode(ctx context.Context, path string) (*audio.Buffer, error)
}

// Converter transcodes a file into another container
type Converter interface {
	Convert(ctx context.Context, src, dst, format string) error
}

// Option customises a MasteringService
type Option func(*MasteringService)

// WithDecoder replaces the ffmpeg-backed decoder
func WithDecoder(d Decoder) Option {
	return func(s *MasteringService) { s.decoder = d }
}

// WithConverter replaces the ffmpeg-backed converter
func WithConverter(c Converter) Option {
	return func(s *MasteringService) { s.converter = c }
}

// WithDevice sets the playback device. The service acquires it and releases
// it on Close.
func WithDevice(d *play.Device) Option {
	return func(s *MasteringService) { s.device = d }
}

// MasteringService is the main service implementation
type MasteringService struct {
	cfg       *config.Config
	decoder   Decoder
	converter Converter
	limiter   dsp.Limiter
	reviews   *review.Store
	device    *play.Device

	jobs *jobTable
}

// New creates a mastering service: it opens the review database, prepares
// the storage directories and acquires the playback device when enabled.
func New(cfg *config.Config, opts ...Option) (*MasteringService, error) {
	limiter, err := dsp.NewLimiter(dsp.LimiterMode(cfg.Mastering.Limiter))
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.Storage.UploadDirectory, cfg.Storage.OutputDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	codec := audio.NewCodec(cfg.Audio.FFmpeg, cfg.Audio.FFprobe)
	s := &MasteringService{
		cfg:       cfg,
		decoder:   codec,
		converter: codec,
		limiter:   limiter,
		jobs:      newJobTable(cfg.Server.Workers),
	}
	if cfg.Playback.Enabled {
		s.device = play.New(play.NewExecLauncher(cfg.Playback.Players))
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.device != nil {
		if err := s.device.Acquire(); err != nil {
			return nil, fmt.Errorf("failed to acquire playback device: %w", err)
		}
	}

	reviews, err := review.Open(cfg.Storage.Database)
	if err != nil {
		if s.device != nil {
			s.device.Release()
		}
		return nil, err
	}
	s.reviews = reviews

	slog.Debug("Mastering service created",
		"uploads", cfg.Storage.UploadDirectory,
		"output", cfg.Storage.OutputDirectory,
		"limiter", cfg.Mastering.Limiter,
		"playback", s.device != nil)
	return s, nil
}

// SaveUpload stores r in the upload directory under a cleaned version of
// filename and returns the stored name.
func (s *MasteringService) SaveUpload(filename string, r io.Reader) (string, error) {
	name := SecureFilename(filename)
	if name == "" || !audio.AllowedExtension(name, s.cfg.Audio.AllowedExtensions) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFile, filename)
	}

	dst := filepath.Join(s.cfg.Storage.UploadDirectory, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create upload %s: %w", dst, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to save upload %s: %w", dst, err)
	}

	slog.Info("Upload saved", "file", name, "bytes", n)
	return name, nil
}

// Master decodes an uploaded file, runs the mastering chain over it and
// writes the result into the output directory.
func (s *MasteringService) Master(ctx context.Context, uploadedName, quality, audioType string) (master.Result, error) {
	src, err := s.OriginalPath(uploadedName)
	if err != nil {
		return master.Result{}, err
	}

	slog.Info("Mastering started", "file", uploadedName, "quality", quality, "audio_type", audioType)

	buf, err := s.decoder.Decode(ctx, src)
	if err != nil {
		slog.Error("Decoding upload failed", "file", uploadedName, "error", err)
		return master.Result{}, err
	}

	p := master.New(s.limiter, master.FileSink{Dir: s.cfg.Storage.OutputDirectory})
	res, err := p.Master(ctx, buf, master.Request{
		Quality:   quality,
		AudioType: audioType,
		Filename:  uploadedName,
	})
	if err != nil {
		slog.Error("Mastering failed", "file", uploadedName, "error", err)
		return master.Result{}, err
	}

	slog.Info("Mastering completed", "file", uploadedName, "output", res.OutputFilename,
		"duration", buf.Duration())
	return res, nil
}

// Submit queues a mastering run and returns its job ID
func (s *MasteringService) Submit(uploadedName, quality, audioType string) string {
	id := uuid.NewString()
	s.jobs.start(id, func(ctx context.Context) (master.Result, error) {
		return s.Master(ctx, uploadedName, quality, audioType)
	})
	slog.Debug("Mastering job submitted", "job", id, "file", uploadedName)
	return id
}

// JobStatus returns a snapshot of a submitted job
func (s *MasteringService) JobStatus(id string) (Job, bool) {
	return s.jobs.get(id)
}

// DownloadPath returns the file to send for a mastered output in the given
// format, converting to mp3 on demand.
func (s *MasteringService) DownloadPath(ctx context.Context, filename, format string) (string, error) {
	format = strings.ToLower(format)
	if format != "wav" && format != "mp3" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	src, err := s.MasteredPath(filename)
	if err != nil {
		return "", err
	}
	if format == "wav" {
		return src, nil
	}

	dst := filepath.Join(s.cfg.Storage.OutputDirectory, mp3Name(filepath.Base(src)))
	if err := s.convertTo(ctx, src, dst, "mp3"); err != nil {
		return "", err
	}
	slog.Debug("Converted mastered file", "src", src, "dst", dst)
	return dst, nil
}

// convertTo converts src into a temporary file next to dst and renames it
// into place, so dst may be src itself (an mp3 upload's mastered output).
func (s *MasteringService) convertTo(ctx context.Context, src, dst, format string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".convert-*."+format)
	if err != nil {
		return &audio.EncodeError{Path: dst, Err: err}
	}
	tmpName := tmp.Name()
	tmp.Close()

	if err := s.converter.Convert(ctx, src, tmpName, format); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return &audio.EncodeError{Path: dst, Err: err}
	}
	return nil
}

// OriginalPath resolves an uploaded file
func (s *MasteringService) OriginalPath(filename string) (string, error) {
	return existingFile(s.cfg.Storage.UploadDirectory, filename)
}

// MasteredPath resolves a mastered file
func (s *MasteringService) MasteredPath(filename string) (string, error) {
	return existingFile(s.cfg.Storage.OutputDirectory, filename)
}

func existingFile(dir, filename string) (string, error) {
	// Only plain names inside dir are served
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", fmt.Errorf("%w: %q", ErrNotFound, filename)
	}
	path := filepath.Join(dir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return path, nil
}

// Play starts server-side playback of path
func (s *MasteringService) Play(path string) error {
	if s.device == nil {
		return ErrPlaybackDisabled
	}
	return s.device.Play(path)
}

// Pause pauses server-side playback
func (s *MasteringService) Pause() error {
	if s.device == nil {
		return ErrPlaybackDisabled
	}
	return s.device.Pause()
}

// Resume resumes server-side playback
func (s *MasteringService) Resume() error {
	if s.device == nil {
		return ErrPlaybackDisabled
	}
	return s.device.Resume()
}

// StopPlayback stops server-side playback
func (s *MasteringService) StopPlayback() error {
	if s.device == nil {
		return ErrPlaybackDisabled
	}
	return s.device.Stop()
}

// PlaybackStatus reports the playback device state
func (s *MasteringService) PlaybackStatus() play.Status {
	if s.device == nil {
		return play.Status{State: play.StateIdle}
	}
	return s.device.Status()
}

// AddReview stores a visitor review
func (s *MasteringService) AddReview(ctx context.Context, author, content string) (review.Review, error) {
	r, err := s.reviews.Add(ctx, author, content)
	if err != nil {
		return review.Review{}, err
	}
	slog.Info("Review submitted", "id", r.ID, "author", r.Author)
	return r, nil
}

// ListReviews returns all reviews, oldest first
func (s *MasteringService) ListReviews(ctx context.Context) ([]review.Review, error) {
	return s.reviews.List(ctx)
}

// GetConfig returns the current configuration
func (s *MasteringService) GetConfig() *config.Config {
	return s.cfg
}

// Close waits for running jobs, releases the playback device and closes
// the review database.
func (s *MasteringService) Close() error {
	s.jobs.wait()

	var errs []error
	if s.device != nil {
		if err := s.device.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.reviews.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var _ Service = (*MasteringService)(nil)
