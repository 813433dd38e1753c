package entropy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand/v2"
)

// Stream is a deterministic Source seeded from a 64-bit value.
type Stream struct {
	rng *rand.Rand
}

// NewStream returns a PCG-backed stream for seed.
func NewStream(seed uint64) *Stream {
	return &Stream{
		rng: rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
	}
}

// Float64 returns a float in [0,1).
func (s *Stream) Float64() float64 { return s.rng.Float64() }

// Derive returns a deterministic child seed for base and a stable label such
// as "tick:120" or "year:2", using HMAC-SHA256.
func Derive(base uint64, label string) uint64 {
	key := make([]byte, 8)
	binary.LittleEndian.PutUint64(key, base)
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(label))
	sum := m.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

// Uniform draws from [lo, hi).
func Uniform(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// Bernoulli returns true with probability p. It always consumes one draw.
func Bernoulli(src Source, p float64) bool {
	return src.Float64() < p
}

// StochasticRound converts an expected count to an integer: floor(x) plus one
// more with probability equal to the fractional remainder. Its mean is x.
func StochasticRound(src Source, x float64) int {
	if x <= 0 {
		_ = src.Float64()
		return 0
	}
	whole := math.Floor(x)
	n := int(whole)
	if Bernoulli(src, x-whole) {
		n++
	}
	return n
}
