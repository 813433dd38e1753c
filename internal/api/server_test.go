package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/hamlet/internal/engine"
	"github.com/talgya/hamlet/internal/persistence"
	"github.com/talgya/hamlet/internal/report"
)

// seededServer returns a server over a fresh database holding n ticks.
func seededServer(t *testing.T, n int, limiter *RateLimiter) *Server {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "hamlet.db"), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	d := engine.NewDriver(db)
	d.Seed = 3
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, err := d.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	return NewServer(db, 0, 48, limiter)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStatusEmpty(t *testing.T) {
	s := seededServer(t, 0, nil)
	rec := get(t, s, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
	}
	st := decode[report.Status](t, rec)
	if st.HasData || len(st.Recent) != 0 {
		t.Fatalf("st=%+v", st)
	}
}

func TestStatus(t *testing.T) {
	s := seededServer(t, 70, nil)
	st := decode[report.Status](t, get(t, s, "/api/v1/status"))
	if !st.HasData || st.TickIndex != 69 || st.Year != 1 {
		t.Fatalf("st=%+v", st)
	}
	if len(st.Recent) != 48 || st.Recent[47].TickIndex != 69 {
		t.Fatalf("recent=%d", len(st.Recent))
	}
	if st.Population < engine.MinPopulation {
		t.Fatalf("population=%d", st.Population)
	}
}

func TestTicks(t *testing.T) {
	s := seededServer(t, 20, nil)

	tests := []struct {
		name      string
		path      string
		code      int
		wantLen   int
		wantFirst int64
	}{
		{"default", "/api/v1/ticks", 200, 20, 0},
		{"limit", "/api/v1/ticks?limit=5", 200, 5, 15},
		{"range", "/api/v1/ticks?from=3&to=7", 200, 5, 3},
		{"open range", "/api/v1/ticks?from=18", 200, 2, 18},
		{"zero limit", "/api/v1/ticks?limit=0", 400, 0, 0},
		{"huge limit", "/api/v1/ticks?limit=1001", 400, 0, 0},
		{"bad from", "/api/v1/ticks?from=x", 400, 0, 0},
		{"inverted", "/api/v1/ticks?from=9&to=2", 400, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.path)
			if rec.Code != tt.code {
				t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
			}
			if tt.code != http.StatusOK {
				return
			}
			ticks := decode[[]engine.TickRecord](t, rec)
			if len(ticks) != tt.wantLen || ticks[0].TickIndex != tt.wantFirst {
				t.Fatalf("len=%d first=%d", len(ticks), ticks[0].TickIndex)
			}
		})
	}
}

func TestTicksEmptyIsArray(t *testing.T) {
	s := seededServer(t, 0, nil)
	rec := get(t, s, "/api/v1/ticks")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("code=%d body=%q", rec.Code, rec.Body)
	}
}

func TestYears(t *testing.T) {
	s := seededServer(t, 65, nil)

	y0 := decode[yearResponse](t, get(t, s, "/api/v1/years/0"))
	if y0.Events == nil || y0.Events.Year != 0 || y0.Ticks != 60 || !y0.Complete || y0.Class == "" {
		t.Fatalf("year 0: %+v", y0)
	}

	y1 := decode[yearResponse](t, get(t, s, "/api/v1/years/1"))
	if y1.Events == nil || y1.Ticks != 5 || y1.Complete || y1.Class != "" {
		t.Fatalf("year 1: %+v", y1)
	}

	if rec := get(t, s, "/api/v1/years/2"); rec.Code != http.StatusNotFound {
		t.Fatalf("year 2 code=%d", rec.Code)
	}
	if rec := get(t, s, "/api/v1/years/-1"); rec.Code != http.StatusBadRequest {
		t.Fatalf("year -1 code=%d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := seededServer(t, 0, nil)
	if rec := get(t, s, "/api/v1/agents"); rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return frozen }
	s := seededServer(t, 0, rl)

	for i := 0; i < 2; i++ {
		if rec := get(t, s, "/api/v1/status"); rec.Code != http.StatusOK {
			t.Fatalf("request %d code=%d", i, rec.Code)
		}
	}
	rec := get(t, s, "/api/v1/status")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("code=%d retry=%q", rec.Code, rec.Header().Get("Retry-After"))
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	other := httptest.NewRecorder()
	s.ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Fatalf("other client code=%d", other.Code)
	}
}

func TestRateLimitIgnoresForwardedHeaders(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return frozen }
	s := seededServer(t, 0, rl)

	codes := make([]int, 3)
	for i, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		req.Header.Set("X-Forwarded-For", xff)
		req.Header.Set("X-Real-IP", xff)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes=%v", codes)
	}
}

func TestRateLimiterSweepsIdle(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(time.Hour)
	rl.Allow("b")
	if _, ok := rl.limiters["a"]; ok {
		t.Fatal("idle visitor not swept")
	}
	if len(rl.limiters) != 1 {
		t.Fatalf("limiters=%d", len(rl.limiters))
	}
}
