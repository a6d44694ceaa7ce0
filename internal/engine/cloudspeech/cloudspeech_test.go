package cloudspeech_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/engine/cloudspeech"
	"github.com/MrWong99/cadence/internal/resilience"
	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/score/align"
	"github.com/MrWong99/cadence/pkg/audio"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startServer launches a test WebSocket server. The handler receives the
// accepted connection and the upgrade request.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// drainUntilEnd reads frames until the {"type":"end"} text frame arrives,
// returning the decoded config frame and the number of binary audio bytes.
func drainUntilEnd(t *testing.T, conn *websocket.Conn) (map[string]any, int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var cfg map[string]any
	audioBytes := 0
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("server read: %v", err)
		}
		if typ == websocket.MessageBinary {
			audioBytes += len(data)
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("server unmarshal: %v", err)
		}
		switch msg["type"] {
		case "config":
			cfg = msg
		case "end":
			return cfg, audioBytes
		}
	}
}

func sendEvent(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("server write: %v (may be expected on close)", err)
	}
}

func testRequest() engine.Request {
	return engine.Request{
		Clip:     &audio.Clip{Samples: make([]float32, 16000), SampleRate: 16000},
		Tokens:   align.Tokenize("The cat sat."),
		Language: "en-US",
	}
}

func newEngine(t *testing.T, srv *httptest.Server, keys ...string) *cloudspeech.Engine {
	t.Helper()
	if len(keys) == 0 {
		keys = []string{"key-1"}
	}
	eng, err := cloudspeech.New(cloudspeech.Config{
		Kind:     engine.KindCloudSpeechA,
		Endpoint: wsURL(srv),
		Keys:     keys,
		Model:    "premium",
		Retry:    resilience.RetryConfig{MaxAttempts: 1, Backoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return eng
}

// assessmentWord builds one word entry with offsets in 100-ns ticks.
func assessmentWord(word string, startSec, durSec, acc float64, errType string) map[string]any {
	return map[string]any{
		"word":           word,
		"offset":         int64(startSec * 1e7),
		"duration":       int64(durSec * 1e7),
		"accuracy_score": acc,
		"error_type":     errType,
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestScoreMapsAssessment(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		cfg, audioBytes := drainUntilEnd(t, conn)
		if cfg["reference_text"] != "The cat sat." {
			t.Errorf("reference_text = %v, want %q", cfg["reference_text"], "The cat sat.")
		}
		if cfg["granularity"] != "phoneme" {
			t.Errorf("granularity = %v, want phoneme", cfg["granularity"])
		}
		if cfg["model"] != "premium" {
			t.Errorf("model = %v, want premium", cfg["model"])
		}
		if audioBytes != 32000 {
			t.Errorf("audio bytes = %d, want 32000", audioBytes)
		}

		// One interim event the engine must skip.
		sendEvent(t, conn, map[string]any{"type": "partial", "text": "the"})

		catWord := assessmentWord("cat", 0.5, 0.3, 85, "None")
		catWord["phonemes"] = []map[string]any{
			{"phoneme": "K", "accuracy_score": 90},
			{"phoneme": "AE", "accuracy_score": 80},
		}
		sendEvent(t, conn, map[string]any{
			"type": "assessment",
			"nbest": []map[string]any{{
				"accuracy_score":     82,
				"fluency_score":      75,
				"completeness_score": 66.7,
				"prosody_score":      80,
				"words": []map[string]any{
					assessmentWord("the", 0.1, 0.2, 95, "None"),
					assessmentWord("um", 0.3, 0.1, 0, "Insertion"),
					catWord,
					assessmentWord("sat", 0, 0, 0, "Omission"),
				},
			}},
		})
	})

	eng := newEngine(t, srv)
	res, err := eng.Score(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if res.Kind != engine.KindCloudSpeechA {
		t.Errorf("Kind = %q, want cloud-speech-a", res.Kind)
	}
	if len(res.Words) != 3 {
		t.Fatalf("len(Words) = %d, want 3", len(res.Words))
	}
	if res.Words[0].Start != 0.1 || res.Words[0].End != 0.3 {
		t.Errorf("word 0 timing = [%v, %v], want [0.1, 0.3]", res.Words[0].Start, res.Words[0].End)
	}
	if res.Words[1].Text != "cat" || res.Words[1].Score != 85 {
		t.Errorf("word 1 = %+v, want cat scored 85", res.Words[1])
	}
	if len(res.Words[1].Phonemes) != 2 || res.Words[1].Phonemes[0].Symbol != "K" {
		t.Errorf("word 1 phonemes = %+v", res.Words[1].Phonemes)
	}
	if res.Words[2].Status != score.StatusMissing {
		t.Errorf("omitted word status = %q, want missing", res.Words[2].Status)
	}
	if len(res.Extras) != 1 || res.Extras[0] != "um" {
		t.Errorf("Extras = %v, want [um]", res.Extras)
	}
	if res.Native == nil || res.Native.Fluency != 75 {
		t.Errorf("Native = %+v, want fluency 75", res.Native)
	}
}

func TestScoreErrorEvent(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		drainUntilEnd(t, conn)
		sendEvent(t, conn, map[string]any{"type": "error", "message": "quota exceeded"})
	})

	eng := newEngine(t, srv)
	_, err := eng.Score(context.Background(), testRequest())
	var failure *engine.Failure
	if !errors.As(err, &failure) {
		t.Fatalf("Score() error = %v, want *engine.Failure", err)
	}
	if failure.Stage != "assess" {
		t.Errorf("failure stage = %q, want assess", failure.Stage)
	}
	if !strings.Contains(failure.Error(), "quota exceeded") {
		t.Errorf("failure message %q does not mention cause", failure.Error())
	}
}

func TestScoreRotatesKeysBetweenAttempts(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seenKeys []string

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		mu.Lock()
		seenKeys = append(seenKeys, r.Header.Get("Authorization"))
		attempt := len(seenKeys)
		mu.Unlock()

		if attempt == 1 {
			// Fail the first attempt before any assessment.
			conn.Close(websocket.StatusInternalError, "boom")
			return
		}

		drainUntilEnd(t, conn)
		sendEvent(t, conn, map[string]any{
			"type": "assessment",
			"nbest": []map[string]any{{
				"words": []map[string]any{
					assessmentWord("the", 0.1, 0.2, 90, "None"),
					assessmentWord("cat", 0.4, 0.2, 90, "None"),
					assessmentWord("sat", 0.7, 0.2, 90, "None"),
				},
			}},
		})
	})

	eng, err := cloudspeech.New(cloudspeech.Config{
		Kind:     engine.KindCloudSpeechB,
		Endpoint: wsURL(srv),
		Keys:     []string{"key-1", "key-2"},
		Retry:    resilience.RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := eng.Score(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if res.Kind != engine.KindCloudSpeechB {
		t.Errorf("Kind = %q, want cloud-speech-b", res.Kind)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seenKeys) != 2 {
		t.Fatalf("attempts = %d, want 2", len(seenKeys))
	}
	if seenKeys[0] != "Bearer key-1" || seenKeys[1] != "Bearer key-2" {
		t.Errorf("seen keys = %v, want rotation from key-1 to key-2", seenKeys)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  cloudspeech.Config
	}{
		{"wrong kind", cloudspeech.Config{Kind: engine.KindHeuristic, Endpoint: "wss://x", Keys: []string{"k"}}},
		{"no endpoint", cloudspeech.Config{Kind: engine.KindCloudSpeechA, Keys: []string{"k"}}},
		{"no keys", cloudspeech.Config{Kind: engine.KindCloudSpeechA, Endpoint: "wss://x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := cloudspeech.New(tc.cfg); err == nil {
				t.Errorf("New(%s) error = nil, want error", tc.name)
			}
		})
	}
}
