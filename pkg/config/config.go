// Package config defines the immutable parameter bundle consumed by the
// environment, agents and trainer, with JSON load/save and validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the full configuration surface.
type Config struct {
	Env       EnvConfig      `json:"environment"`
	QLearning LearnerConfig  `json:"qlearning"`
	DQN       DQNConfig      `json:"dqn"`
	Training  TrainingConfig `json:"training"`
}

// EnvConfig configures the foraging world and episode placement.
type EnvConfig struct {
	GridWidth     int    `json:"grid_width"`
	GridHeight    int    `json:"grid_height"`
	MaxSteps      int    `json:"max_steps"`
	NumAgents     int    `json:"num_agents"`
	AgentLevelMin int    `json:"agent_level_min"`
	AgentLevelMax int    `json:"agent_level_max"`
	FoodCountMin  int    `json:"food_count_min"`
	FoodCountMax  int    `json:"food_count_max"`
	FoodLevelMin  int    `json:"food_level_min"`
	FoodLevelMax  int    `json:"food_level_max"`
	ObstacleCount int    `json:"obstacle_count"`
	RewardSplit   string `json:"reward_split"` // "equal" or "proportional"
	Seed          int64  `json:"seed"`
}

// LearnerConfig holds the hyperparameters of the tabular agent.
type LearnerConfig struct {
	LearningRate   float64 `json:"learning_rate"`
	DiscountFactor float64 `json:"discount_factor"`
	InitialEpsilon float64 `json:"initial_epsilon"`
	EpsilonDecay   float64 `json:"epsilon_decay"`
	MinEpsilon     float64 `json:"min_epsilon"`
	ReplayCapacity int     `json:"replay_capacity"`
	BatchSize      int     `json:"batch_size"`
}

// DQNConfig holds the hyperparameters of the network-backed agent.
type DQNConfig struct {
	LearnerConfig
	TargetUpdateFreq int   `json:"target_update_freq"`
	HiddenLayers     []int `json:"hidden_layers"`
}

// TrainingConfig configures the orchestrator.
type TrainingConfig struct {
	Episodes             int  `json:"episodes"`
	EvalEpisodes         int  `json:"eval_episodes"`
	SuccessFoodThreshold int  `json:"success_food_threshold"`
	ProgressInterval     int  `json:"progress_interval"`
	Verbose              bool `json:"verbose"`
}

// Default returns the configuration the original experiments ran with.
func Default() Config {
	return Config{
		Env: EnvConfig{
			GridWidth:     8,
			GridHeight:    8,
			MaxSteps:      200,
			NumAgents:     4,
			AgentLevelMin: 1,
			AgentLevelMax: 2,
			FoodCountMin:  3,
			FoodCountMax:  5,
			FoodLevelMin:  1,
			FoodLevelMax:  3,
			RewardSplit:   "equal",
		},
		QLearning: LearnerConfig{
			LearningRate:   0.1,
			DiscountFactor: 0.95,
			InitialEpsilon: 1.0,
			EpsilonDecay:   0.995,
			MinEpsilon:     0.01,
			ReplayCapacity: 2000,
			BatchSize:      32,
		},
		DQN: DQNConfig{
			LearnerConfig: LearnerConfig{
				LearningRate:   0.001,
				DiscountFactor: 0.95,
				InitialEpsilon: 1.0,
				EpsilonDecay:   0.995,
				MinEpsilon:     0.01,
				ReplayCapacity: 10000,
				BatchSize:      32,
			},
			TargetUpdateFreq: 100,
			HiddenLayers:     []int{128, 128, 64},
		},
		Training: TrainingConfig{
			Episodes:             1000,
			EvalEpisodes:         100,
			SuccessFoodThreshold: 3,
			ProgressInterval:     100,
			Verbose:              true,
		},
	}
}

// Load reads a JSON config file. Fields absent from the file keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config as indented JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	e := c.Env
	if e.GridWidth < 1 || e.GridHeight < 1 {
		return fmt.Errorf("config: grid must be at least 1x1, got %dx%d", e.GridWidth, e.GridHeight)
	}
	if e.MaxSteps < 1 {
		return fmt.Errorf("config: max_steps must be positive, got %d", e.MaxSteps)
	}
	if e.NumAgents < 1 {
		return fmt.Errorf("config: num_agents must be positive, got %d", e.NumAgents)
	}
	if e.AgentLevelMin < 1 || e.AgentLevelMax < e.AgentLevelMin {
		return fmt.Errorf("config: agent level range [%d,%d] invalid", e.AgentLevelMin, e.AgentLevelMax)
	}
	if e.FoodLevelMin < 1 || e.FoodLevelMax < e.FoodLevelMin {
		return fmt.Errorf("config: food level range [%d,%d] invalid", e.FoodLevelMin, e.FoodLevelMax)
	}
	if e.FoodCountMin < 1 || e.FoodCountMax < e.FoodCountMin {
		return fmt.Errorf("config: food count range [%d,%d] invalid", e.FoodCountMin, e.FoodCountMax)
	}
	if e.RewardSplit != "equal" && e.RewardSplit != "proportional" {
		return fmt.Errorf("config: reward_split must be %q or %q, got %q", "equal", "proportional", e.RewardSplit)
	}
	if need := e.NumAgents + e.FoodCountMax + e.ObstacleCount; need > e.GridWidth*e.GridHeight {
		return fmt.Errorf("config: %d entities cannot fit a %dx%d grid", need, e.GridWidth, e.GridHeight)
	}

	for name, l := range map[string]LearnerConfig{"qlearning": c.QLearning, "dqn": c.DQN.LearnerConfig} {
		if l.LearningRate <= 0 {
			return fmt.Errorf("config: %s learning_rate must be positive", name)
		}
		if l.DiscountFactor < 0 || l.DiscountFactor > 1 {
			return fmt.Errorf("config: %s discount_factor must be in [0,1]", name)
		}
		if l.InitialEpsilon < 0 || l.InitialEpsilon > 1 || l.MinEpsilon < 0 || l.MinEpsilon > l.InitialEpsilon {
			return fmt.Errorf("config: %s epsilon bounds invalid", name)
		}
		if l.EpsilonDecay <= 0 || l.EpsilonDecay > 1 {
			return fmt.Errorf("config: %s epsilon_decay must be in (0,1]", name)
		}
		if l.BatchSize < 1 || l.BatchSize > l.ReplayCapacity {
			return fmt.Errorf("config: %s batch_size %d exceeds replay_capacity %d", name, l.BatchSize, l.ReplayCapacity)
		}
	}

	if c.DQN.TargetUpdateFreq < 1 {
		return fmt.Errorf("config: dqn target_update_freq must be positive")
	}
	for _, h := range c.DQN.HiddenLayers {
		if h < 1 {
			return fmt.Errorf("config: dqn hidden layer size %d invalid", h)
		}
	}
	if c.Training.Episodes < 1 {
		return fmt.Errorf("config: training episodes must be positive")
	}
	return nil
}
