package entropy

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStreamDeterminism(t *testing.T) {
	a := NewStream(42)
	b := NewStream(42)
	for i := 0; i < 100; i++ {
		x, y := a.Float64(), b.Float64()
		if x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
		if x < 0 || x >= 1 {
			t.Fatalf("draw %d out of range: %v", i, x)
		}
	}

	c1 := NewStream(Derive(42, "tick:7")).Float64()
	c2 := NewStream(Derive(42, "tick:7")).Float64()
	if c1 != c2 {
		t.Fatalf("derived streams differ: %v vs %v", c1, c2)
	}
}

func TestDeriveSeparatesLabels(t *testing.T) {
	if Derive(1, "tick:1") == Derive(1, "tick:2") {
		t.Fatalf("labels collided")
	}
	if Derive(1, "year:0") == Derive(2, "year:0") {
		t.Fatalf("bases collided")
	}
	if Derive(9, "year:3") != Derive(9, "year:3") {
		t.Fatalf("derive not stable")
	}
}

func TestUniformBounds(t *testing.T) {
	s := NewStream(7)
	for i := 0; i < 1000; i++ {
		v := Uniform(s, -0.05, 0.05)
		if v < -0.05 || v >= 0.05 {
			t.Fatalf("uniform out of range: %v", v)
		}
	}
}

func TestStochasticRoundMean(t *testing.T) {
	s := NewStream(99)
	const x = 2.3
	const n = 20000
	sum := 0
	for i := 0; i < n; i++ {
		v := StochasticRound(s, x)
		if v != 2 && v != 3 {
			t.Fatalf("round(%v)=%d, want 2 or 3", x, v)
		}
		sum += v
	}
	mean := float64(sum) / n
	if math.Abs(mean-x) > 0.03 {
		t.Fatalf("mean=%v want ~%v", mean, x)
	}
	if got := StochasticRound(s, 0); got != 0 {
		t.Fatalf("round(0)=%d", got)
	}
}

func TestNilClientFallsBackToCrypto(t *testing.T) {
	var c *Client
	if c.Enabled() {
		t.Fatalf("nil client reported enabled")
	}
	v := c.Float64()
	if v < 0 || v >= 1 {
		t.Fatalf("crypto fallback out of range: %v", v)
	}
	if NewClient("") != nil {
		t.Fatalf("empty key should yield nil client")
	}
}

func TestClientUsesPool(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		data := make([]float64, 20)
		for i := range data {
			data[i] = 0.25
		}
		resp := map[string]any{
			"result": map[string]any{
				"random": map[string]any{"data": data},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient("key")
	c.endpoint = srv.URL
	for i := 0; i < 5; i++ {
		if v := c.Float64(); v != 0.25 {
			t.Fatalf("draw %d = %v want 0.25", i, v)
		}
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}
