package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/store"
)

// maxUploadBytes caps multipart submission bodies (a minute of PCM16 mono
// at 16 kHz is under 2 MiB; this leaves generous headroom).
const maxUploadBytes = 32 << 20

// Handler builds the full HTTP surface of the service.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	a.healthHandler().Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/submissions", a.handleCreateSubmission)
	mux.HandleFunc("GET /v1/submissions/{id}", a.handleGetSubmission)
	mux.HandleFunc("GET /v1/submissions/{id}/result", a.handleGetResult)

	return observe.Middleware(a.metrics)(mux)
}

// handleCreateSubmission accepts a multipart form with an "audio" file and
// a "script" field, stores the recording, and queues the submission.
func (a *App) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse multipart form: %v", err))
		return
	}

	script := strings.TrimSpace(r.FormValue("script"))
	if script == "" {
		writeError(w, http.StatusBadRequest, "script is required")
		return
	}

	requested := r.FormValue("engine")
	if requested != "" && !engine.Kind(requested).Known() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown engine %q", requested))
		return
	}

	audio, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer audio.Close()

	path, err := a.saveAudio(audio)
	if err != nil {
		a.log.Error("store uploaded audio", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store audio")
		return
	}

	sub := &store.Submission{
		TaskID:    r.FormValue("task_id"),
		ReaderID:  r.FormValue("reader_id"),
		AudioPath: path,
		Script:    script,
		Language:  r.FormValue("language"),
		Engine:    requested,
	}
	if err := a.store.Create(r.Context(), sub); err != nil {
		a.log.Error("create submission", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create submission")
		return
	}
	a.metrics.QueueDepth.Add(r.Context(), 1)
	a.log.Info("submission queued", "submission", sub.ID, "task", sub.TaskID)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     sub.ID,
		"status": sub.Status,
	})
}

// handleGetSubmission returns the submission record without the (possibly
// large) result document.
func (a *App) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := a.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		a.log.Error("get submission", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load submission")
		return
	}

	sub.Result = nil
	writeJSON(w, http.StatusOK, sub)
}

// handleGetResult returns the full result document of a completed
// submission. Anything not yet completed answers 409 with the current
// status.
func (a *App) handleGetResult(w http.ResponseWriter, r *http.Request) {
	sub, err := a.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		a.log.Error("get submission", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load submission")
		return
	}

	// Completed submissions have a score document; failed ones may still
	// carry a failure document with the attempt trail. Either is a result.
	if sub.Status == store.StatusCompleted ||
		(sub.Status == store.StatusFailed && sub.Result != nil) {
		writeJSON(w, http.StatusOK, sub.Result)
		return
	}
	writeJSON(w, http.StatusConflict, map[string]any{
		"status": sub.Status,
		"error":  sub.Error,
	})
}

// saveAudio writes an uploaded recording into the audio directory under a
// fresh UUID name and returns the full path.
func (a *App) saveAudio(src io.Reader) (string, error) {
	if err := os.MkdirAll(a.cfg.AudioDir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	path := filepath.Join(a.cfg.AudioDir, uuid.NewString()+".wav")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close audio file: %w", err)
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
