// Package trainer runs episodes against the foraging world, drives the
// agents' action-selection and learning, and collects per-episode
// statistics for external reporting.
package trainer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boristopalov/forage/pkg/agent"
	"github.com/boristopalov/forage/pkg/grid"
	"github.com/boristopalov/forage/pkg/report"
)

// EpisodeStats are the metrics recorded for one episode.
type EpisodeStats struct {
	Episode       int     `json:"episode"`
	Reward        float64 `json:"reward"`
	Length        int     `json:"length"`
	FoodCollected int     `json:"food_collected"`
}

// Summary aggregates a run of episodes.
type Summary struct {
	AvgReward   float64
	AvgLength   float64
	AvgFood     float64
	SuccessRate float64
}

// Results holds the ordered per-episode statistics of one run.
type Results struct {
	RunID string
	Stats []EpisodeStats
}

// Rewards returns the per-episode reward sequence.
func (r *Results) Rewards() []float64 {
	out := make([]float64, len(r.Stats))
	for i, s := range r.Stats {
		out[i] = s.Reward
	}
	return out
}

// Lengths returns the per-episode length sequence.
func (r *Results) Lengths() []float64 {
	out := make([]float64, len(r.Stats))
	for i, s := range r.Stats {
		out[i] = float64(s.Length)
	}
	return out
}

// Food returns the per-episode food-collected sequence.
func (r *Results) Food() []float64 {
	out := make([]float64, len(r.Stats))
	for i, s := range r.Stats {
		out[i] = float64(s.FoodCollected)
	}
	return out
}

// Summarize averages the run; an episode is a success when it collected at
// least successThreshold food items.
func (r *Results) Summarize(successThreshold int) Summary {
	if len(r.Stats) == 0 {
		return Summary{}
	}
	var s Summary
	successes := 0
	for _, st := range r.Stats {
		s.AvgReward += st.Reward
		s.AvgLength += float64(st.Length)
		s.AvgFood += float64(st.FoodCollected)
		if st.FoodCollected >= successThreshold {
			successes++
		}
	}
	n := float64(len(r.Stats))
	s.AvgReward /= n
	s.AvgLength /= n
	s.AvgFood /= n
	s.SuccessRate = float64(successes) / n
	return s
}

// Status describes whether a run is in progress.
type Status struct {
	Running   bool
	StartTime time.Time
	EndTime   time.Time
}

// Trainer owns an environment/agents pair and runs training or evaluation
// episodes over it. A Trainer must not be shared across concurrent runs;
// only Status is safe to call from other goroutines.
type Trainer struct {
	env       *grid.World
	agents    []agent.ForagingAgent
	placement grid.Placement

	progressEvery int
	verbose       bool
	broker        *report.Broker[EpisodeStats]

	mu     sync.RWMutex
	status Status
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithProgressEvery logs a progress line every n training episodes.
func WithProgressEvery(n int) Option {
	return func(t *Trainer) {
		t.progressEvery = n
	}
}

// WithVerbose toggles progress logging.
func WithVerbose(v bool) Option {
	return func(t *Trainer) {
		t.verbose = v
	}
}

// WithBroker publishes every episode's statistics to b.
func WithBroker(b *report.Broker[EpisodeStats]) Option {
	return func(t *Trainer) {
		t.broker = b
	}
}

// New creates a trainer. Each episode resets the environment with the
// given placement before stepping the agents through it.
func New(env *grid.World, agents []agent.ForagingAgent, placement grid.Placement, opts ...Option) *Trainer {
	t := &Trainer{
		env:           env,
		agents:        agents,
		placement:     placement,
		progressEvery: 100,
		verbose:       true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train runs n training episodes: agents select actions, observe rewards
// and update their estimates. Exploration decay happens inside each
// agent's Observe. Partial results are returned alongside the error when
// the context is cancelled or an episode fails to set up.
func (t *Trainer) Train(ctx context.Context, n int) (*Results, error) {
	t.begin()
	defer t.end()

	results := &Results{RunID: uuid.New().String()}
	for ep := 0; ep < n; ep++ {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		stats, err := t.runEpisode(true)
		if err != nil {
			return results, err
		}
		stats.Episode = ep
		results.Stats = append(results.Stats, stats)

		if t.broker != nil {
			if err := t.broker.Publish(stats); err != nil {
				log.Printf("trainer: publishing stats: %v", err)
			}
		}
		if t.verbose && t.progressEvery > 0 && ep%t.progressEvery == 0 {
			t.logProgress(ep, n, results)
		}
	}
	return results, nil
}

// Evaluate runs n episodes with zero exploration and no learning updates.
func (t *Trainer) Evaluate(ctx context.Context, n int) (*Results, error) {
	t.begin()
	defer t.end()

	for _, a := range t.agents {
		a.Eval()
	}
	defer func() {
		for _, a := range t.agents {
			a.Train()
		}
	}()

	results := &Results{RunID: uuid.New().String()}
	for ep := 0; ep < n; ep++ {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		stats, err := t.runEpisode(false)
		if err != nil {
			return results, err
		}
		stats.Episode = ep
		results.Stats = append(results.Stats, stats)
	}
	return results, nil
}

// Status returns a snapshot of the run state.
func (t *Trainer) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Trainer) runEpisode(training bool) (EpisodeStats, error) {
	if err := t.env.Reset(t.placement); err != nil {
		return EpisodeStats{}, err
	}
	for _, a := range t.agents {
		a.Reset()
	}

	state := t.env.State()
	initialFood := t.env.FoodCount()
	var total float64
	steps := 0

	for !t.env.Done() {
		actions := make(map[int]grid.Action, len(t.agents))
		for _, a := range t.agents {
			actions[a.ID()] = a.SelectAction(state)
		}

		rewards := t.env.Step(actions)
		next := t.env.State()
		done := t.env.Done()

		if training {
			for _, a := range t.agents {
				a.Observe(state, actions[a.ID()], rewards[a.ID()], next, done)
			}
		}

		for _, r := range rewards {
			total += r
		}
		state = next
		steps++
	}

	return EpisodeStats{
		Reward:        total,
		Length:        steps,
		FoodCollected: initialFood - t.env.FoodCount(),
	}, nil
}

func (t *Trainer) logProgress(ep, total int, results *Results) {
	window := t.progressEvery
	if window > len(results.Stats) {
		window = len(results.Stats)
	}
	var avgReward, avgFood float64
	for _, s := range results.Stats[len(results.Stats)-window:] {
		avgReward += s.Reward
		avgFood += float64(s.FoodCollected)
	}
	avgReward /= float64(window)
	avgFood /= float64(window)

	epsilon := 0.0
	if len(t.agents) > 0 {
		epsilon = t.agents[0].Epsilon()
	}
	log.Println(report.ProgressLine(ep, total, window, avgReward, avgFood, epsilon))
}

func (t *Trainer) begin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = Status{Running: true, StartTime: time.Now()}
}

func (t *Trainer) end() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = false
	t.status.EndTime = time.Now()
}
