package market

import (
	"math/rand"
	"sync"
	"time"
)

// RandomSource supplies the randomness behind price walks, chain volume/OI and
// analytics placeholders. Tests inject deterministic sources.
type RandomSource interface {
	Float64() float64
	NormFloat64() float64
	Intn(n int) int
}

// NewRandomSource returns a goroutine-safe source. A zero seed uses the clock.
func NewRandomSource(seed int64) RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *lockedSource) NormFloat64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.NormFloat64()
}

func (s *lockedSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

// StaticSource returns the same values on every call.
type StaticSource struct {
	Uniform float64
	Normal  float64
	Int     int
}

func (s StaticSource) Float64() float64     { return s.Uniform }
func (s StaticSource) NormFloat64() float64 { return s.Normal }

func (s StaticSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return s.Int % n
}
