// Package random supplies the randomness used for candidate selection and
// role assignment. Sources are seedable so tests are reproducible.
package random

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// Selector draws random integers and shuffles user lists.
type Selector interface {
	// Int returns a uniform integer in [0, bound). bound <= 0 yields 0.
	Int(bound int) int
	// Shuffle returns a shuffled copy of ids; the input is not modified.
	Shuffle(ids []string) []string
}

// Source is a Selector backed by a PCG generator. It is safe for concurrent use.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Source seeded from the runtime's entropy.
func New() *Source {
	return NewSeeded(rand.Uint64())
}

// NewSeeded returns a deterministic Source.
func NewSeeded(seed uint64) *Source {
	return &Source{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Int returns a uniform integer in [0, bound).
func (s *Source) Int(bound int) int {
	if bound <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(bound)
}

// Shuffle returns a Fisher-Yates shuffled copy of ids.
func (s *Source) Shuffle(ids []string) []string {
	out := slices.Clone(ids)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
