package server

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/audiolibrelab/masterweb/internal/review"
)

type indexData struct {
	Reviews        []ReviewJSON
	OutputFilename string
	Error          string
	Playback       bool
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Audio Mastering</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
</head>
<body>
<main class="container">
    <h1>Audio Mastering</h1>
    {{if .Error}}<p role="alert">{{.Error}}</p>{{end}}

    <form id="upload" action="/upload?async=1" method="post" enctype="multipart/form-data">
        <input type="file" name="file" accept=".mp3,.wav" required>
        <select name="quality">
            <option value="high">High</option>
            <option value="standard">Standard</option>
        </select>
        <select name="audio_type">
            <option value="music">Music</option>
            <option value="voice">Voice</option>
        </select>
        <button type="submit">Upload and master</button>
    </form>
    <p id="status"></p>

    {{with .OutputFilename}}
    <section>
        <h2>{{.}}</h2>
        <audio controls src="/play_mastered/{{.}}"></audio>
        <p>
            <a href="/download/wav/{{.}}">Download WAV</a> |
            <a href="/download/mp3/{{.}}">Download MP3</a>
        </p>
    </section>
    {{end}}

    {{if .Playback}}
    <section>
        <h2>Studio playback</h2>
        <button onclick="fetch('/pause_audio', {method: 'POST'})">Pause</button>
        <button onclick="fetch('/resume_audio', {method: 'POST'})">Resume</button>
        <button onclick="fetch('/stop_audio', {method: 'POST'})">Stop</button>
    </section>
    {{end}}

    <section>
        <h2>Reviews</h2>
        <form id="review" action="/submit_review" method="post">
            <input name="author" placeholder="Name" required>
            <textarea name="content" placeholder="Your review" required></textarea>
            <button type="submit">Submit review</button>
        </form>
        <ul id="reviews">
        {{range .Reviews}}
            <li><strong>{{.Author}}</strong> <small>{{.Timestamp}}</small><br>{{.Content}}</li>
        {{else}}
            <li>No reviews yet.</li>
        {{end}}
        </ul>
    </section>
</main>
<script>
document.getElementById('upload').addEventListener('submit', async (e) => {
    e.preventDefault();
    const status = document.getElementById('status');
    status.textContent = 'Uploading...';
    const resp = await fetch(e.target.action, {method: 'POST', body: new FormData(e.target)});
    const data = await resp.json();
    if (!data.success) { status.textContent = data.error; return; }
    status.textContent = 'Mastering in progress...';
    const poll = async () => {
        const r = await (await fetch('/check_mastering_status?job=' + data.job_id)).json();
        if (!r.mastering_completed) { setTimeout(poll, 1000); return; }
        if (r.success) { window.location = '/?output=' + encodeURIComponent(r.output_filename); }
        else { status.textContent = 'Mastering failed at ' + r.stage + ': ' + r.error; }
    };
    poll();
});
document.getElementById('review').addEventListener('submit', async (e) => {
    e.preventDefault();
    const resp = await fetch('/submit_review', {method: 'POST', body: new URLSearchParams(new FormData(e.target))});
    const data = await resp.json();
    if (data.success) { window.location.reload(); }
});
</script>
</body>
</html>
`))

// handleIndex renders the upload form, the latest result and the reviews
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		OutputFilename: r.URL.Query().Get("output"),
		Playback:       s.cfg.Playback.Enabled,
	}

	reviews, err := s.service.ListReviews(r.Context())
	if err != nil {
		slog.Error("Failed to load reviews", "error", err)
		data.Error = "Reviews are unavailable"
		reviews = []review.Review{}
	}
	for _, rev := range reviews {
		data.Reviews = append(data.Reviews, reviewJSON(rev))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := indexTemplate.Execute(w, data); err != nil {
		slog.Error("Error rendering index page", "error", err)
	}
}
