// Package cloudspeech implements the scoring engines backed by streaming
// cloud pronunciation-assessment APIs. One Engine instance serves one
// configured provider (cloud-speech-a or cloud-speech-b); the two differ
// only in endpoint, credentials and model tier.
//
// The wire protocol is a single-shot exchange over a WebSocket: a JSON
// config frame carrying the reference text, then raw PCM chunks, then an
// end frame, after which the engine reads events until the final assessment
// arrives. Word and phoneme offsets come back in 100-nanosecond ticks.
package cloudspeech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/resilience"
	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/pkg/audio"
)

const (
	// chunkBytes is 100ms of 16 kHz mono PCM16 per binary frame.
	chunkBytes = 3200

	// ticksPerSecond converts the API's 100-ns offsets to seconds.
	ticksPerSecond = 1e7

	defaultExchangeTimeout = 90 * time.Second
)

// Error types in the assessment response.
const (
	errTypeNone      = "None"
	errTypeOmission  = "Omission"
	errTypeInsertion = "Insertion"
)

var _ engine.ScoringEngine = (*Engine)(nil)

// Config holds the per-provider settings for one cloud engine instance.
type Config struct {
	// Kind must be KindCloudSpeechA or KindCloudSpeechB.
	Kind engine.Kind

	// Endpoint is the wss:// assessment URL.
	Endpoint string

	// Keys are the API credentials, rotated when a key is rejected or
	// throttled.
	Keys []string

	// Model selects the provider's model tier. Empty means provider default.
	Model string

	// Retry tunes the per-request retry budget. Zero values use the
	// resilience defaults.
	Retry resilience.RetryConfig
}

// Engine is a cloud pronunciation-assessment scoring engine.
type Engine struct {
	kind     engine.Kind
	endpoint string
	model    string
	keys     *resilience.KeyRing
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	timeout  time.Duration
	log      *slog.Logger
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithExchangeTimeout bounds one complete config/stream/assess exchange.
func WithExchangeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// New constructs a cloud-speech engine from cfg.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Kind != engine.KindCloudSpeechA && cfg.Kind != engine.KindCloudSpeechB {
		return nil, fmt.Errorf("cloudspeech: kind must be cloud-speech-a or cloud-speech-b, got %q", cfg.Kind)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("cloudspeech: endpoint must not be empty")
	}
	keys, err := resilience.NewKeyRing(cfg.Keys)
	if err != nil {
		return nil, fmt.Errorf("cloudspeech: %w", err)
	}

	e := &Engine{
		kind:     cfg.Kind,
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		keys:     keys,
		retry:    cfg.Retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: string(cfg.Kind),
		}),
		timeout: defaultExchangeTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Kind implements engine.ScoringEngine.
func (e *Engine) Kind() engine.Kind {
	return e.kind
}

// configFrame is the first message of every exchange.
type configFrame struct {
	Type          string `json:"type"`
	ReferenceText string `json:"reference_text"`
	Language      string `json:"language,omitempty"`
	Model         string `json:"model,omitempty"`
	Granularity   string `json:"granularity"`
	Encoding      string `json:"encoding"`
	SampleRate    int    `json:"sample_rate"`
}

// event is the envelope of every text message from the service.
type event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	NBest   []struct {
		AccuracyScore     float64 `json:"accuracy_score"`
		FluencyScore      float64 `json:"fluency_score"`
		CompletenessScore float64 `json:"completeness_score"`
		ProsodyScore      float64 `json:"prosody_score"`
		Words             []struct {
			Word          string  `json:"word"`
			Offset        int64   `json:"offset"`
			Duration      int64   `json:"duration"`
			AccuracyScore float64 `json:"accuracy_score"`
			ErrorType     string  `json:"error_type"`
			Phonemes      []struct {
				Phoneme       string  `json:"phoneme"`
				AccuracyScore float64 `json:"accuracy_score"`
			} `json:"phonemes"`
		} `json:"words"`
	} `json:"nbest"`
}

// Score implements engine.ScoringEngine. Transient failures are retried with
// backoff, rotating to the next API key between attempts; the circuit
// breaker short-circuits once the provider looks down.
func (e *Engine) Score(ctx context.Context, req engine.Request) (*engine.Result, error) {
	var result *engine.Result

	err := resilience.Retry(ctx, e.retry, func(ctx context.Context) error {
		return e.breaker.Execute(func() error {
			res, err := e.exchange(ctx, req)
			if err != nil {
				e.keys.Rotate()
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, engine.Fail(e.kind, "connect", err)
		}
		var failure *engine.Failure
		if errors.As(err, &failure) {
			return nil, failure
		}
		return nil, engine.Fail(e.kind, "assess", err)
	}
	return result, nil
}

// exchange performs one complete assessment round trip.
func (e *Engine) exchange(ctx context.Context, req engine.Request) (*engine.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+e.keys.Current())

	conn, _, err := websocket.Dial(ctx, e.endpoint, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, engine.Fail(e.kind, "connect", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(4 << 20)

	cfg := configFrame{
		Type:          "config",
		ReferenceText: referenceText(req),
		Language:      req.Language,
		Model:         e.model,
		Granularity:   "phoneme",
		Encoding:      "pcm16",
		SampleRate:    req.Clip.SampleRate,
	}
	if err := writeJSON(ctx, conn, cfg); err != nil {
		return nil, engine.Fail(e.kind, "config", err)
	}

	pcm := audio.PCM16(req.Clip)
	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return nil, engine.Fail(e.kind, "stream", err)
		}
	}
	if err := writeJSON(ctx, conn, map[string]string{"type": "end"}); err != nil {
		return nil, engine.Fail(e.kind, "stream", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, engine.Fail(e.kind, "read", err)
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, engine.Fail(e.kind, "parse", err)
		}
		switch ev.Type {
		case "assessment":
			return e.mapAssessment(req, &ev)
		case "error":
			return nil, engine.Fail(e.kind, "assess", errors.New(ev.Message))
		default:
			// Interim events (partial recognition, keepalives) are skipped.
		}
	}
}

// mapAssessment converts the final assessment event into an engine result.
func (e *Engine) mapAssessment(req engine.Request, ev *event) (*engine.Result, error) {
	if len(ev.NBest) == 0 {
		return nil, engine.Fail(e.kind, "parse", errors.New("assessment carries no nbest entry"))
	}
	best := ev.NBest[0]

	words := make([]score.Word, 0, len(req.Tokens))
	var extras []string
	for _, w := range best.Words {
		if w.ErrorType == errTypeInsertion {
			extras = append(extras, w.Word)
			continue
		}
		if len(words) == len(req.Tokens) {
			return nil, engine.Fail(e.kind, "parse",
				fmt.Errorf("got more than %d reference words", len(req.Tokens)))
		}

		word := score.Word{Text: req.Tokens[len(words)].Raw}
		if w.ErrorType == errTypeOmission {
			word.Status = score.StatusMissing
			words = append(words, word)
			continue
		}

		word.Start = float64(w.Offset) / ticksPerSecond
		word.End = float64(w.Offset+w.Duration) / ticksPerSecond
		word.Score = w.AccuracyScore
		word.Status = score.StatusFor(w.AccuracyScore)
		for _, ph := range w.Phonemes {
			word.Phonemes = append(word.Phonemes, score.Phoneme{
				Symbol: ph.Phoneme,
				Score:  ph.AccuracyScore,
				Status: score.StatusFor(ph.AccuracyScore),
			})
		}
		words = append(words, word)
	}
	if len(words) != len(req.Tokens) {
		return nil, engine.Fail(e.kind, "parse",
			fmt.Errorf("got %d reference words, want %d", len(words), len(req.Tokens)))
	}
	score.PlaceMissing(words)

	e.log.Debug("cloud assessment complete",
		"engine", e.kind,
		"words", len(words),
		"extras", len(extras))

	return &engine.Result{
		Kind:   e.kind,
		Words:  words,
		Extras: extras,
		Native: &score.Dimensions{
			Accuracy:     best.AccuracyScore,
			Fluency:      best.FluencyScore,
			Completeness: best.CompletenessScore,
			Prosody:      best.ProsodyScore,
		},
	}, nil
}

// Close implements engine.ScoringEngine. Connections are per-exchange, so
// there is nothing to tear down.
func (e *Engine) Close() error {
	return nil
}

func referenceText(req engine.Request) string {
	out := ""
	for i, tok := range req.Tokens {
		if i > 0 {
			out += " "
		}
		out += tok.Raw
	}
	return out
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
