package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) probeBody {
	t.Helper()
	var body probeBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New().Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
	if body := decodeBody(t, rec); body.Status != "ok" {
		t.Errorf("body status = %q, want ok", body.Status)
	}
}

func TestReadyzVerdicts(t *testing.T) {
	t.Parallel()

	pass := func(context.Context) error { return nil }
	fail := func(msg string) func(context.Context) error {
		return func(context.Context) error { return errors.New(msg) }
	}

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "store", Check: pass},
				{Name: "engines", Check: pass},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"store": "ok", "engines": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "store", Check: fail("connection refused")},
				{Name: "engines", Check: pass},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{
				"store":   "fail: connection refused",
				"engines": "ok",
			},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "store", Check: fail("timeout")},
				{Name: "engines", Check: fail("none registered")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{
				"store":   "fail: timeout",
				"engines": "fail: none registered",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			New(tt.checkers...).Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			body := decodeBody(t, rec)
			if body.Status != tt.wantStatus {
				t.Errorf("body status = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestRegisterRoutes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(Checker{Name: "store", Check: func(context.Context) error { return nil }}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestReadyzRespectsCancelledRequest(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when the check context is cancelled", rec.Code)
	}
}
