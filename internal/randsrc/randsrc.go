// Package randsrc provides the injectable randomness source behind the
// adaptive circuit breaker's should_reject? draw.
package randsrc

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	mathrand "math/rand"
	"sync"
)

// Source produces uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// CryptoSource is a mutex-guarded math/rand generator seeded from
// crypto/rand, used in production so rejection draws are not predictable
// across process restarts.
type CryptoSource struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewCryptoSource creates a CryptoSource seeded from the OS CSPRNG, falling
// back to a zero seed if crypto/rand is unavailable (never fatal — a
// predictable seed degrades unpredictability, it does not break behavior).
func NewCryptoSource() *CryptoSource {
	return &CryptoSource{rng: mathrand.New(mathrand.NewSource(cryptoSeed()))}
}

func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

func (c *CryptoSource) Float64() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64()
}

// DeterministicSource is a fixed-seed generator for reproducible tests.
type DeterministicSource struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewDeterministicSource creates a DeterministicSource with the given seed.
func NewDeterministicSource(seed int64) *DeterministicSource {
	return &DeterministicSource{rng: mathrand.New(mathrand.NewSource(seed))}
}

func (d *DeterministicSource) Float64() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64()
}

// FixedSource always returns the same clamped value; useful for forcing a
// should_reject? outcome deterministically in tests.
type FixedSource struct {
	Value float64
}

// NewFixedSource creates a FixedSource, clamping value into [0, 1).
func NewFixedSource(value float64) *FixedSource {
	return &FixedSource{Value: math.Max(0, math.Min(value, 0.9999999999))}
}

func (f *FixedSource) Float64() float64 { return f.Value }
