package agent

import (
	"io"
	"log"
	"math/rand"

	"github.com/boristopalov/forage/pkg/grid"
	"github.com/boristopalov/forage/pkg/obs"
	"github.com/boristopalov/forage/pkg/replay"
	"github.com/boristopalov/forage/pkg/value"
)

// DQN is a deep Q-learning agent: a feed-forward network over the
// continuous observation encoding, experience replay, and a target network
// hard-copied from the online network every TargetUpdateFreq observations.
// Next-state values in the learning target always come from the target
// network, decorrelating targets from the weights being trained.
type DQN struct {
	id  int
	p   Params
	enc obs.Continuous
	net *value.Network
	buf *replay.Buffer[[]float64]
	rng *rand.Rand
	exploration

	observeCalls int
	steps        int
	totalReward  float64
}

// NewDQN creates a network-backed agent. Defaults: learning rate 0.001,
// discount 0.95, epsilon 1.0 decaying by 0.995 to 0.01, replay capacity
// 10000 with batch 32, target sync every 100 observations, hidden layers
// 128,128,64.
func NewDQN(opts ...Option) *DQN {
	p := applyOptions(Params{
		LearningRate:     0.001,
		Discount:         0.95,
		Epsilon:          1.0,
		EpsilonDecay:     0.995,
		EpsilonMin:       0.01,
		BufferSize:       10000,
		BatchSize:        32,
		TargetUpdateFreq: 100,
	}, opts)

	if p.TargetUpdateFreq < 1 {
		p.TargetUpdateFreq = 1
	}

	rng := rand.New(rand.NewSource(p.Seed))
	enc := obs.NewContinuous()
	return &DQN{
		id:  p.ID,
		p:   p,
		enc: enc,
		net: value.NewNetwork(value.NetworkConfig{
			Inputs:       enc.Size(),
			Hidden:       p.Hidden,
			Outputs:      grid.NumActions,
			LearningRate: p.LearningRate,
			Seed:         p.Seed,
		}),
		buf:         replay.New[[]float64](p.BufferSize, rng),
		rng:         rng,
		exploration: exploration{epsilon: p.Epsilon, decay: p.EpsilonDecay, min: p.EpsilonMin},
	}
}

func (d *DQN) ID() int { return d.id }

// SelectAction is epsilon-greedy over the online network's predictions.
func (d *DQN) SelectAction(s grid.State) grid.Action {
	if d.rng.Float64() < d.current() {
		return grid.Action(d.rng.Intn(grid.NumActions))
	}
	return argmax(d.net.Predict(d.enc.Vector(s, d.id)))
}

// Observe stores the transition, trains on a sampled batch once the buffer
// holds one, periodically hard-syncs the target network, and decays
// epsilon.
func (d *DQN) Observe(s grid.State, action grid.Action, reward float64, next grid.State, done bool) {
	d.steps++
	d.totalReward += reward

	d.buf.Add(replay.Transition[[]float64]{
		State:  d.enc.Vector(s, d.id),
		Action: action,
		Reward: reward,
		Next:   d.enc.Vector(next, d.id),
		Done:   done,
	})

	if d.buf.Len() >= d.p.BatchSize {
		d.trainBatch()
	}

	d.observeCalls++
	if d.observeCalls%d.p.TargetUpdateFreq == 0 {
		d.net.SyncTarget()
	}

	d.decayEpsilon()
}

func (d *DQN) trainBatch() {
	batch, err := d.buf.Sample(d.p.BatchSize)
	if err != nil {
		return
	}

	states := make([][]float64, len(batch))
	targets := make([][]float64, len(batch))
	for i, t := range batch {
		states[i] = t.State

		// Current online prediction everywhere except the taken action,
		// whose entry is overwritten with the bootstrapped target.
		target := d.net.Predict(t.State)
		if t.Done {
			target[t.Action] = t.Reward
		} else {
			nextQ := d.net.PredictTarget(t.Next)
			maxNext := nextQ[0]
			for _, v := range nextQ[1:] {
				if v > maxNext {
					maxNext = v
				}
			}
			target[t.Action] = t.Reward + d.p.Discount*maxNext
		}
		targets[i] = target
	}

	if _, err := d.net.TrainBatch(states, targets); err != nil {
		log.Printf("dqn agent %d: batch update failed: %v", d.id, err)
	}
}

func (d *DQN) Epsilon() float64 { return d.epsilon }

func (d *DQN) Eval()  { d.eval = true }
func (d *DQN) Train() { d.eval = false }

// Reset clears per-episode statistics. Weights and buffer persist.
func (d *DQN) Reset() {
	d.steps = 0
	d.totalReward = 0
}

// Network exposes the Q-network for tests and inspection.
func (d *DQN) Network() *value.Network { return d.net }

// Save writes the online network parameters to w.
func (d *DQN) Save(w io.Writer) error { return d.net.Save(w) }

// Load restores parameters written by Save and re-syncs the target.
func (d *DQN) Load(r io.Reader) error { return d.net.Load(r) }

func (d *DQN) Steps() int           { return d.steps }
func (d *DQN) TotalReward() float64 { return d.totalReward }
