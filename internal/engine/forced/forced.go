// Package forced implements the scoring engine backed by a self-hosted
// forced-alignment service. The service receives the recording and the
// reference script, runs acoustic-model alignment, and returns per-word
// timings plus per-phone goodness-of-pronunciation values which this engine
// maps onto the shared 0-100 scale.
package forced

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/score/normalize"
	"github.com/MrWong99/cadence/pkg/audio"
)

const defaultTimeout = 60 * time.Second

// wordCase values in the service response.
const (
	caseSuccess  = "success"
	caseNotFound = "not-found-in-audio"
)

var _ engine.ScoringEngine = (*Engine)(nil)

// Engine is the forced-alignment scoring engine.
type Engine struct {
	endpoint  string
	client    *http.Client
	gopSlope  float64
	gopCenter float64
	log       *slog.Logger
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.client = c
	}
}

// WithGOPMapping overrides the logistic parameters used to map raw
// goodness-of-pronunciation values to scores.
func WithGOPMapping(slope, center float64) Option {
	return func(e *Engine) {
		e.gopSlope = slope
		e.gopCenter = center
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New constructs a forced-alignment engine talking to the service at
// endpoint (e.g. "http://align.internal:8085/v1/align").
func New(endpoint string, opts ...Option) (*Engine, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("forced: endpoint must not be empty")
	}
	e := &Engine{
		endpoint:  endpoint,
		client:    &http.Client{Timeout: defaultTimeout},
		gopSlope:  normalize.DefaultGOPSlope,
		gopCenter: normalize.DefaultGOPCenter,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Kind implements engine.ScoringEngine.
func (e *Engine) Kind() engine.Kind {
	return engine.KindForcedAlignment
}

// alignResponse is the service's JSON response document.
type alignResponse struct {
	Words []struct {
		Word   string  `json:"word"`
		Case   string  `json:"case"`
		Start  float64 `json:"start"`
		End    float64 `json:"end"`
		Phones []struct {
			Phone string  `json:"phone"`
			GOP   float64 `json:"gop"`
		} `json:"phones"`
	} `json:"words"`
}

// Score implements engine.ScoringEngine.
func (e *Engine) Score(ctx context.Context, req engine.Request) (*engine.Result, error) {
	body, contentType, err := buildForm(req)
	if err != nil {
		return nil, engine.Fail(engine.KindForcedAlignment, "encode", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, body)
	if err != nil {
		return nil, engine.Fail(engine.KindForcedAlignment, "request", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, engine.Fail(engine.KindForcedAlignment, "connect", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, engine.Fail(engine.KindForcedAlignment, "read", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, engine.Fail(engine.KindForcedAlignment, "align",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 256)))
	}

	var doc alignResponse
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, engine.Fail(engine.KindForcedAlignment, "parse", err)
	}
	if len(doc.Words) != len(req.Tokens) {
		return nil, engine.Fail(engine.KindForcedAlignment, "parse",
			fmt.Errorf("got %d words for %d script tokens", len(doc.Words), len(req.Tokens)))
	}

	e.log.Debug("forced alignment complete",
		"words", len(doc.Words),
		"elapsed", time.Since(start))

	words := make([]score.Word, len(doc.Words))
	for i, w := range doc.Words {
		word := score.Word{Text: req.Tokens[i].Raw}
		if w.Case == caseNotFound {
			word.Status = score.StatusMissing
			words[i] = word
			continue
		}
		if w.Case != caseSuccess {
			return nil, engine.Fail(engine.KindForcedAlignment, "parse",
				fmt.Errorf("word %d: unknown case %q", i, w.Case))
		}

		word.Start = w.Start
		word.End = w.End

		var sum float64
		for _, ph := range w.Phones {
			s := normalize.Round1(normalize.GOP(ph.GOP, e.gopSlope, e.gopCenter))
			word.Phonemes = append(word.Phonemes, score.Phoneme{
				Symbol: ph.Phone,
				Score:  s,
				Status: score.StatusFor(s),
			})
			sum += s
		}
		if len(w.Phones) > 0 {
			word.Score = normalize.Round1(sum / float64(len(w.Phones)))
		}
		word.Status = score.StatusFor(word.Score)
		words[i] = word
	}
	score.PlaceMissing(words)

	return &engine.Result{Kind: engine.KindForcedAlignment, Words: words}, nil
}

// Close implements engine.ScoringEngine.
func (e *Engine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// buildForm serialises the request as a multipart form with the audio as a
// WAV file part plus text fields for the script and language.
func buildForm(req engine.Request) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", "attempt.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio.EncodeWAV(req.Clip)); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}

	script := make([]string, 0, len(req.Tokens))
	for _, tok := range req.Tokens {
		script = append(script, tok.Text)
	}
	if err := writer.WriteField("text", strings.Join(script, " ")); err != nil {
		return nil, "", fmt.Errorf("write text field: %w", err)
	}
	if req.Language != "" {
		if err := writer.WriteField("language", req.Language); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
