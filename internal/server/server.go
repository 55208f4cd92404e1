package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/masterweb/internal/audio"
	"github.com/audiolibrelab/masterweb/internal/config"
	"github.com/audiolibrelab/masterweb/internal/master"
	"github.com/audiolibrelab/masterweb/internal/play"
	"github.com/audiolibrelab/masterweb/internal/review"
	"github.com/audiolibrelab/masterweb/internal/service"
)

// Server represents the web server for uploading and mastering audio
type Server struct {
	service service.Service
	cfg     *config.Config
	mux     *http.ServeMux
}

// UploadResponse represents the JSON response for the upload endpoint
type UploadResponse struct {
	Success        bool   `json:"success"`
	OutputFilename string `json:"output_filename,omitempty"`
	JobID          string `json:"job_id,omitempty"`
	Stage          string `json:"stage,omitempty"`
	Error          string `json:"error,omitempty"`
}

// MasteringStatusResponse represents the JSON response for job polling
type MasteringStatusResponse struct {
	MasteringCompleted bool             `json:"mastering_completed"`
	Success            bool             `json:"success"`
	State              service.JobState `json:"state"`
	OutputFilename     string           `json:"output_filename,omitempty"`
	Stage              string           `json:"stage,omitempty"`
	Error              string           `json:"error,omitempty"`
}

// ReviewResponse represents the JSON response for a submitted review
type ReviewResponse struct {
	Success bool       `json:"success"`
	Review  ReviewJSON `json:"review"`
}

// ReviewJSON is a review as shown to the browser
type ReviewJSON struct {
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// PlaybackResponse represents the JSON response for playback control
type PlaybackResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Status  play.Status `json:"status"`
}

// New creates a new web server around svc
func New(svc service.Service) *Server {
	s := &Server{
		service: svc,
		cfg:     svc.GetConfig(),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("GET /check_mastering_status", s.handleCheckMasteringStatus)
	s.mux.HandleFunc("POST /submit_review", s.handleSubmitReview)
	s.mux.HandleFunc("GET /reviews", s.handleListReviews)
	s.mux.HandleFunc("GET /download/{format}/{filename}", s.handleDownload)
	// GET streams the file to the browser, POST plays it on the server
	s.mux.HandleFunc("GET /play_original/{filename}", s.handleStreamOriginal)
	s.mux.HandleFunc("GET /play_mastered/{filename}", s.handleStreamMastered)
	s.mux.HandleFunc("POST /play_original/{filename}", s.handlePlayOriginal)
	s.mux.HandleFunc("POST /play_mastered/{filename}", s.handlePlayMastered)
	s.mux.HandleFunc("POST /pause_audio", s.handlePauseAudio)
	s.mux.HandleFunc("POST /resume_audio", s.handleResumeAudio)
	s.mux.HandleFunc("POST /stop_audio", s.handleStopAudio)
	s.mux.HandleFunc("GET /playback_status", s.handlePlaybackStatus)
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting mastering web server",
		"port", s.cfg.Server.Port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.cfg.Server.Port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.cfg.Server.Port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handleUpload stores the uploaded file and masters it, inline or as a job
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.Server.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendErrorResponse(w, http.StatusRequestEntityTooLarge, "File too large", "limit_mb", s.cfg.Server.MaxUploadMB)
			return
		}
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse multipart form", "error", err)
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	quality := r.FormValue("quality")
	audioType := r.FormValue("audio_type")

	name, err := s.service.SaveUpload(handler.Filename, file)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFile) {
			s.sendErrorResponse(w, http.StatusBadRequest, "Invalid file format", "filename", handler.Filename)
			return
		}
		s.sendErrorResponse(w, http.StatusInternalServerError, "Failed to save upload", "error", err)
		return
	}

	if r.URL.Query().Get("async") == "1" {
		id := s.service.Submit(name, quality, audioType)
		s.writeJSON(w, http.StatusAccepted, UploadResponse{Success: true, JobID: id})
		return
	}

	res, err := s.service.Master(r.Context(), name, quality, audioType)
	if err != nil {
		s.sendMasteringError(w, err, name)
		return
	}

	s.writeJSON(w, http.StatusOK, UploadResponse{Success: true, OutputFilename: res.OutputFilename})
}

func (s *Server) sendMasteringError(w http.ResponseWriter, err error, filename string) {
	var decErr *audio.DecodeError
	if errors.As(err, &decErr) {
		s.sendErrorResponse(w, http.StatusUnprocessableEntity, "Could not decode audio file", "file", filename, "error", err)
		return
	}

	var failed *master.Failed
	if errors.As(err, &failed) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(UploadResponse{
			Success: false,
			Stage:   failed.Stage,
			Error:   err.Error(),
		})
		slog.Error("Mastering failed", "file", filename, "stage", failed.Stage, "error", failed.Err)
		return
	}

	s.sendErrorResponse(w, http.StatusInternalServerError, err.Error(), "file", filename)
}

// handleCheckMasteringStatus reports the state of an async mastering job
func (s *Server) handleCheckMasteringStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("job")
	if id == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Job ID required")
		return
	}

	job, ok := s.service.JobStatus(id)
	if !ok {
		s.sendErrorResponse(w, http.StatusNotFound, "Unknown job", "job", id)
		return
	}

	s.writeJSON(w, http.StatusOK, MasteringStatusResponse{
		MasteringCompleted: job.Completed(),
		Success:            job.State == service.JobDone,
		State:              job.State,
		OutputFilename:     job.Result.OutputFilename,
		Stage:              job.Stage,
		Error:              job.Error,
	})
}

// handleSubmitReview stores a review from the index page form
func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	rev, err := s.service.AddReview(r.Context(), r.FormValue("author"), r.FormValue("content"))
	if err != nil {
		if errors.Is(err, review.ErrEmptyReview) {
			s.sendErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.sendErrorResponse(w, http.StatusInternalServerError, "Failed to save review", "error", err)
		return
	}

	s.writeJSON(w, http.StatusOK, ReviewResponse{Success: true, Review: reviewJSON(rev)})
}

// handleListReviews returns all reviews as JSON
func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.service.ListReviews(r.Context())
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Failed to load reviews", "error", err)
		return
	}

	out := make([]ReviewJSON, 0, len(reviews))
	for _, rev := range reviews {
		out = append(out, reviewJSON(rev))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func reviewJSON(r review.Review) ReviewJSON {
	return ReviewJSON{
		Author:    r.Author,
		Content:   r.Content,
		Timestamp: r.Timestamp.Format(review.TimestampLayout),
	}
}

// handleDownload serves a mastered file as an attachment, converting to
// mp3 when asked
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	filename := r.PathValue("filename")

	path, err := s.service.DownloadPath(r.Context(), filename, format)
	switch {
	case errors.Is(err, service.ErrUnsupportedFormat):
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid format", "format", format)
		return
	case errors.Is(err, service.ErrNotFound):
		s.sendErrorResponse(w, http.StatusNotFound, "Mastered file not found", "file", filename)
		return
	case err != nil:
		s.sendErrorResponse(w, http.StatusInternalServerError, "Error converting file", "file", filename, "error", err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filepath.Base(path)))
	s.serveFile(w, r, path)
}

// handleStreamOriginal streams an uploaded file
func (s *Server) handleStreamOriginal(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	path, err := s.service.OriginalPath(filename)
	if err != nil {
		s.sendErrorResponse(w, http.StatusNotFound, "Original file not found", "file", filename)
		return
	}
	s.serveFile(w, r, path)
}

// handleStreamMastered streams a mastered file
func (s *Server) handleStreamMastered(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	path, err := s.service.MasteredPath(filename)
	if err != nil {
		s.sendErrorResponse(w, http.StatusNotFound, "Mastered file not found", "file", filename)
		return
	}
	s.serveFile(w, r, path)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	file, err := os.Open(path)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Error opening file", "file", path, "error", err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Error accessing file", "file", path, "error", err)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), file)
}

// handlePlayOriginal plays an uploaded file on the server's audio device
func (s *Server) handlePlayOriginal(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	path, err := s.service.OriginalPath(filename)
	if err != nil {
		s.sendErrorResponse(w, http.StatusNotFound, "Original file not found", "file", filename)
		return
	}
	s.playbackResult(w, s.service.Play(path), "Playing original")
}

// handlePlayMastered plays a mastered file on the server's audio device
func (s *Server) handlePlayMastered(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	path, err := s.service.MasteredPath(filename)
	if err != nil {
		s.sendErrorResponse(w, http.StatusNotFound, "Mastered file not found", "file", filename)
		return
	}
	s.playbackResult(w, s.service.Play(path), "Playing mastered")
}

func (s *Server) handlePauseAudio(w http.ResponseWriter, r *http.Request) {
	s.playbackResult(w, s.service.Pause(), "Audio paused")
}

func (s *Server) handleResumeAudio(w http.ResponseWriter, r *http.Request) {
	s.playbackResult(w, s.service.Resume(), "Audio resumed")
}

func (s *Server) handleStopAudio(w http.ResponseWriter, r *http.Request) {
	s.playbackResult(w, s.service.StopPlayback(), "Audio stopped")
}

func (s *Server) handlePlaybackStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, PlaybackResponse{Success: true, Status: s.service.PlaybackStatus()})
}

func (s *Server) playbackResult(w http.ResponseWriter, err error, message string) {
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, PlaybackResponse{
			Success: true,
			Message: message,
			Status:  s.service.PlaybackStatus(),
		})
	case errors.Is(err, service.ErrPlaybackDisabled):
		s.sendErrorResponse(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, play.ErrNotPlaying), errors.Is(err, play.ErrNotPaused):
		s.sendErrorResponse(w, http.StatusConflict, err.Error())
	default:
		s.sendErrorResponse(w, http.StatusInternalServerError, "Playback error", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
