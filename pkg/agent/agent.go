// Package agent couples a value estimator, an observation encoder and a
// replay buffer behind one action-selection/learning contract. Two
// implementations exist: QLearner over a lookup table and DQN over a
// Q-network with a lagged target.
package agent

import (
	"time"

	"github.com/boristopalov/forage/pkg/grid"
)

// ForagingAgent is the contract the trainer drives. SelectAction is
// epsilon-greedy over the agent's value estimates; Observe records the
// transition, performs a learning update and decays epsilon toward its
// floor. Eval switches the agent to pure exploitation (epsilon treated as
// zero; Observe still learns if called, the trainer simply does not call
// it during evaluation); Train switches back.
type ForagingAgent interface {
	ID() int
	SelectAction(s grid.State) grid.Action
	Observe(s grid.State, action grid.Action, reward float64, next grid.State, done bool)
	Epsilon() float64
	Eval()
	Train()
	// Reset clears per-episode statistics, not learned values.
	Reset()
}

// Params are the hyperparameters shared by both agent kinds. Zero values
// are replaced by per-kind defaults at construction.
type Params struct {
	ID               int
	LearningRate     float64
	Discount         float64
	Epsilon          float64
	EpsilonDecay     float64
	EpsilonMin       float64
	BufferSize       int
	BatchSize        int
	TargetUpdateFreq int
	Hidden           []int
	Seed             int64
}

// Option configures agent construction.
type Option func(*Params)

func WithID(id int) Option {
	return func(p *Params) {
		p.ID = id
	}
}

func WithLearningRate(alpha float64) Option {
	return func(p *Params) {
		p.LearningRate = alpha
	}
}

func WithDiscount(gamma float64) Option {
	return func(p *Params) {
		p.Discount = gamma
	}
}

// WithEpsilon sets the initial exploration rate, its multiplicative decay
// and its floor.
func WithEpsilon(initial, decay, min float64) Option {
	return func(p *Params) {
		p.Epsilon = initial
		p.EpsilonDecay = decay
		p.EpsilonMin = min
	}
}

// WithReplay sets the replay buffer capacity and the learning batch size.
func WithReplay(capacity, batch int) Option {
	return func(p *Params) {
		p.BufferSize = capacity
		p.BatchSize = batch
	}
}

// WithTargetUpdateFreq sets how many Observe calls pass between hard
// target-network copies. Only the DQN uses it.
func WithTargetUpdateFreq(k int) Option {
	return func(p *Params) {
		p.TargetUpdateFreq = k
	}
}

// WithHiddenLayers sets the Q-network hidden layer sizes. Only the DQN
// uses it.
func WithHiddenLayers(sizes ...int) Option {
	return func(p *Params) {
		p.Hidden = sizes
	}
}

// WithSeed fixes the agent's random source (exploration and sampling).
func WithSeed(seed int64) Option {
	return func(p *Params) {
		p.Seed = seed
	}
}

func applyOptions(defaults Params, opts []Option) Params {
	p := defaults
	p.Seed = time.Now().UnixNano()
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// exploration tracks the epsilon schedule and the train/eval mode switch.
type exploration struct {
	epsilon float64
	decay   float64
	min     float64
	eval    bool
}

func (e *exploration) current() float64 {
	if e.eval {
		return 0
	}
	return e.epsilon
}

func (e *exploration) decayEpsilon() {
	if e.epsilon > e.min {
		e.epsilon *= e.decay
		if e.epsilon < e.min {
			e.epsilon = e.min
		}
	}
}

// argmax breaks ties by the lowest action index so behavior is
// reproducible under a fixed seed.
func argmax(vals []float64) grid.Action {
	best := 0
	for i, v := range vals {
		if v > vals[best] {
			best = i
		}
	}
	return grid.Action(best)
}
