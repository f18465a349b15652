package agent

import (
	"math/rand"

	"github.com/boristopalov/forage/pkg/grid"
	"github.com/boristopalov/forage/pkg/obs"
	"github.com/boristopalov/forage/pkg/replay"
	"github.com/boristopalov/forage/pkg/value"
)

// QLearner is a tabular Q-learning agent over discrete state keys. Each
// Observe applies the online temporal-difference update at the configured
// step size, then replays a minibatch from the buffer at half that step
// size once enough transitions are stored, so replay refines the online
// estimate without destabilizing it.
type QLearner struct {
	id    int
	p     Params
	enc   obs.Discrete
	table *value.Table
	buf   *replay.Buffer[string]
	rng   *rand.Rand
	exploration

	steps       int
	totalReward float64
}

// NewQLearner creates a tabular agent. Defaults: learning rate 0.1,
// discount 0.95, epsilon 1.0 decaying by 0.995 to 0.01, replay capacity
// 2000 with batch 32.
func NewQLearner(opts ...Option) *QLearner {
	p := applyOptions(Params{
		LearningRate: 0.1,
		Discount:     0.95,
		Epsilon:      1.0,
		EpsilonDecay: 0.995,
		EpsilonMin:   0.01,
		BufferSize:   2000,
		BatchSize:    32,
	}, opts)

	rng := rand.New(rand.NewSource(p.Seed))
	return &QLearner{
		id:          p.ID,
		p:           p,
		enc:         obs.NewDiscrete(),
		table:       value.NewTable(grid.NumActions),
		buf:         replay.New[string](p.BufferSize, rng),
		rng:         rng,
		exploration: exploration{epsilon: p.Epsilon, decay: p.EpsilonDecay, min: p.EpsilonMin},
	}
}

func (q *QLearner) ID() int { return q.id }

// SelectAction is epsilon-greedy over the table's values for the encoded
// state.
func (q *QLearner) SelectAction(s grid.State) grid.Action {
	if q.rng.Float64() < q.current() {
		return grid.Action(q.rng.Intn(grid.NumActions))
	}
	return argmax(q.table.Predict(q.enc.Key(s, q.id)))
}

// Observe stores the transition, runs the online update, replays a batch
// at half step size once the buffer is warm, and decays epsilon.
func (q *QLearner) Observe(s grid.State, action grid.Action, reward float64, next grid.State, done bool) {
	q.steps++
	q.totalReward += reward

	key := q.enc.Key(s, q.id)
	nextKey := q.enc.Key(next, q.id)
	q.buf.Add(replay.Transition[string]{
		State:  key,
		Action: action,
		Reward: reward,
		Next:   nextKey,
		Done:   done,
	})

	q.table.Learn(key, int(action), reward, nextKey, done, q.p.LearningRate, q.p.Discount)

	if q.buf.Len() >= q.p.BatchSize {
		batch, err := q.buf.Sample(q.p.BatchSize)
		if err == nil {
			for _, t := range batch {
				q.table.Learn(t.State, int(t.Action), t.Reward, t.Next, t.Done, q.p.LearningRate/2, q.p.Discount)
			}
		}
	}

	q.decayEpsilon()
}

func (q *QLearner) Epsilon() float64 { return q.epsilon }

func (q *QLearner) Eval()  { q.eval = true }
func (q *QLearner) Train() { q.eval = false }

// Reset clears per-episode statistics. The table and buffer persist.
func (q *QLearner) Reset() {
	q.steps = 0
	q.totalReward = 0
}

// Table exposes the value table for persistence and inspection.
func (q *QLearner) Table() *value.Table { return q.table }

func (q *QLearner) Steps() int           { return q.steps }
func (q *QLearner) TotalReward() float64 { return q.totalReward }
