// Package replay provides a fixed-capacity experience store with uniform
// random sampling, shared by the tabular and network-backed agents.
package replay

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/boristopalov/forage/pkg/grid"
)

// ErrInsufficient is returned by Sample when the buffer holds fewer
// transitions than requested. Callers guard with Len before sampling.
var ErrInsufficient = errors.New("replay: not enough transitions buffered")

// Transition is one (state, action, reward, next state, done) tuple.
// S is the encoded state representation: a string key for tabular agents,
// a feature vector for network agents. Immutable once added.
type Transition[S any] struct {
	State  S
	Action grid.Action
	Reward float64
	Next   S
	Done   bool
}

// Buffer is a FIFO ring of transitions. Once full, adding evicts the
// oldest entry. Sampling is uniform with replacement and independent of
// insertion order. Not safe for concurrent use.
type Buffer[S any] struct {
	items []Transition[S]
	head  int
	size  int
	rng   *rand.Rand
}

// New creates a buffer with the given capacity, drawing samples from rng.
func New[S any](capacity int, rng *rand.Rand) *Buffer[S] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[S]{
		items: make([]Transition[S], capacity),
		rng:   rng,
	}
}

// Add appends a transition, evicting the oldest when at capacity.
func (b *Buffer[S]) Add(t Transition[S]) {
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = t
		b.size++
		return
	}
	b.items[b.head] = t
	b.head = (b.head + 1) % len(b.items)
}

// Sample returns n transitions drawn independently and uniformly with
// replacement, or ErrInsufficient when fewer than n are buffered.
func (b *Buffer[S]) Sample(n int) ([]Transition[S], error) {
	if n > b.size {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrInsufficient, n, b.size)
	}
	out := make([]Transition[S], n)
	for i := range out {
		out[i] = b.items[(b.head+b.rng.Intn(b.size))%len(b.items)]
	}
	return out, nil
}

// Len is the number of buffered transitions.
func (b *Buffer[S]) Len() int { return b.size }

// Cap is the buffer capacity.
func (b *Buffer[S]) Cap() int { return len(b.items) }
