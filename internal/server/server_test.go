package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/masterweb/internal/audio"
	"github.com/audiolibrelab/masterweb/internal/config"
	"github.com/audiolibrelab/masterweb/internal/service"
)

func newTestServer(t *testing.T) (*Server, *service.MasteringService) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.UploadDirectory = filepath.Join(dir, "uploads")
	cfg.Storage.OutputDirectory = filepath.Join(dir, "output")
	cfg.Storage.Database = filepath.Join(dir, "reviews.db")
	cfg.Server.MaxUploadMB = 1
	cfg.Playback.Enabled = false

	svc, err := service.New(cfg)
	if err != nil {
		t.Fatalf("service.New failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return New(svc), svc
}

func stereoWAV(t *testing.T, channels int) []byte {
	t.Helper()
	b := audio.NewBuffer(channels, 2205, 44100, audio.FormatPCM16)
	for _, ch := range b.Channels {
		for i := range ch {
			ch[i] = float64(i%500 - 250)
		}
	}
	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, b); err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		fw.Write(data)
	}
	mw.WriteField("quality", "hq")
	mw.WriteField("audio_type", "music")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
}

func TestUpload_Sync(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, uploadRequest(t, "/upload", "song.wav", stereoWAV(t, 2)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	decode(t, rec, &resp)
	if !resp.Success || resp.OutputFilename != "mastered_hq_music_song.wav" {
		t.Errorf("unexpected response: %+v", resp)
	}

	// The mastered file can be streamed and downloaded
	rec = do(s, httptest.NewRequest(http.MethodGet, "/play_mastered/"+resp.OutputFilename, nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") == "" {
		t.Errorf("stream status = %d, content type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	rec = do(s, httptest.NewRequest(http.MethodGet, "/download/wav/"+resp.OutputFilename, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("download status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, resp.OutputFilename) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	rec = do(s, httptest.NewRequest(http.MethodGet, "/play_original/song.wav", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("original stream status = %d", rec.Code)
	}
}

func TestUpload_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     int
	}{
		{"no file", "", nil, http.StatusBadRequest},
		{"bad extension", "notes.txt", []byte("x"), http.StatusBadRequest},
		{"undecodable", "broken.wav", []byte("garbage"), http.StatusUnprocessableEntity},
		{"too large", "big.wav", make([]byte, 2<<20), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, uploadRequest(t, "/upload", tt.filename, tt.data))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			var resp map[string]interface{}
			decode(t, rec, &resp)
			if resp["success"] != false || resp["error"] == "" {
				t.Errorf("unexpected error body: %v", resp)
			}
		})
	}
}

func TestUpload_MonoNamesStage(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, uploadRequest(t, "/upload", "mono.wav", stereoWAV(t, 1)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp UploadResponse
	decode(t, rec, &resp)
	if resp.Success || resp.Stage != "highpass" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestUpload_AsyncAndStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, uploadRequest(t, "/upload?async=1", "job.wav", stereoWAV(t, 2)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	decode(t, rec, &resp)
	if resp.JobID == "" {
		t.Fatal("no job id returned")
	}

	deadline := time.Now().Add(5 * time.Second)
	var status MasteringStatusResponse
	for {
		rec = do(s, httptest.NewRequest(http.MethodGet, "/check_mastering_status?job="+resp.JobID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status check = %d", rec.Code)
		}
		decode(t, rec, &status)
		if status.MasteringCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !status.Success || status.OutputFilename != "mastered_hq_music_job.wav" {
		t.Errorf("unexpected status: %+v", status)
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/check_mastering_status?job=unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", rec.Code)
	}
	rec = do(s, httptest.NewRequest(http.MethodGet, "/check_mastering_status", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing job status = %d, want 400", rec.Code)
	}
}

func TestDownload_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/download/flac/x.wav", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad format status = %d, want 400", rec.Code)
	}
	rec = do(s, httptest.NewRequest(http.MethodGet, "/download/wav/missing.wav", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rec.Code)
	}
	rec = do(s, httptest.NewRequest(http.MethodGet, "/play_original/missing.wav", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing original status = %d, want 404", rec.Code)
	}
}

func TestReviews(t *testing.T) {
	s, _ := newTestServer(t)

	form := url.Values{"author": {"Ana"}, "content": {"Sounds <great>"}}
	req := httptest.NewRequest(http.MethodPost, "/submit_review", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := do(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ReviewResponse
	decode(t, rec, &resp)
	if !resp.Success || resp.Review.Author != "Ana" || resp.Review.Timestamp == "" {
		t.Errorf("unexpected response: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/submit_review", strings.NewReader("author=&content="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := do(s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("empty review status = %d, want 400", rec.Code)
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/reviews", nil))
	var list []ReviewJSON
	decode(t, rec, &list)
	if len(list) != 1 || list[0].Content != "Sounds <great>" {
		t.Errorf("reviews = %+v", list)
	}

	// The index page lists the review, escaped
	rec = do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("index status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "Sounds &lt;great&gt;") {
		t.Error("index page does not list the escaped review")
	}
}

func TestPlaybackDisabled(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/pause_audio", "/resume_audio", "/stop_audio"} {
		rec := do(s, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
	}

	rec := do(s, httptest.NewRequest(http.MethodGet, "/playback_status", nil))
	var resp PlaybackResponse
	decode(t, rec, &resp)
	if resp.Status.State != "idle" {
		t.Errorf("playback state = %q, want idle", resp.Status.State)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/upload", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /upload status = %d, want 405", rec.Code)
	}
	rec = do(s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}
