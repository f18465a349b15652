package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/boristopalov/forage/pkg/agent"
	"github.com/boristopalov/forage/pkg/config"
	"github.com/boristopalov/forage/pkg/grid"
	"github.com/boristopalov/forage/pkg/report"
	"github.com/boristopalov/forage/pkg/trainer"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "forage",
		Short: "Forage trains cooperative multi-agent foraging policies on a grid world with tabular Q-learning or DQN agents.",
	}

	for _, envFile := range []string{
		".env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(evalCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	agentType   string
	numAgents   int
	episodes    int
	seed        int64
	chartPath   string
	modelDir    string
	metricsAddr string
}

func (f *flags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to a JSON config file (defaults via FORAGE_CONFIG)")
	cmd.Flags().StringVarP(&f.agentType, "agent", "a", "dqn", "agent type: qlearning or dqn")
	cmd.Flags().IntVarP(&f.numAgents, "agents", "n", 0, "number of agents (overrides config)")
	cmd.Flags().IntVarP(&f.episodes, "episodes", "e", 0, "number of episodes (overrides config)")
	cmd.Flags().Int64VarP(&f.seed, "seed", "s", 0, "random seed (0 means time-based)")
	cmd.Flags().StringVarP(&f.modelDir, "model-dir", "m", "models", "directory for saved models")
}

func trainCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train agents and evaluate the learned policies on a larger grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(&f)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.chartPath, "chart", "", "write training curves to this HTML file")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve live episode stats over websocket at this address")
	return cmd
}

func evalCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate previously trained agents without exploration or learning",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(&f)
		},
	}
	f.register(cmd)
	return cmd
}

func loadConfig(f *flags) (*config.Config, error) {
	path := f.configPath
	if path == "" {
		path = os.Getenv("FORAGE_CONFIG")
	}
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runTrain(f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	numAgents := cfg.Env.NumAgents
	if f.numAgents > 0 {
		numAgents = f.numAgents
	}
	episodes := cfg.Training.Episodes
	if f.episodes > 0 {
		episodes = f.episodes
	}
	seed := f.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	env := buildEnv(cfg, cfg.Env.GridWidth, cfg.Env.GridHeight, cfg.Env.MaxSteps, seed)
	agents, err := buildAgents(cfg, f.agentType, numAgents, seed)
	if err != nil {
		return err
	}

	opts := []trainer.Option{
		trainer.WithVerbose(cfg.Training.Verbose),
		trainer.WithProgressEvery(cfg.Training.ProgressInterval),
	}
	if f.metricsAddr != "" {
		broker := report.NewBroker[trainer.EpisodeStats]()
		defer broker.Reset()
		mux := http.NewServeMux()
		mux.Handle("/ws", report.NewStreamServer(broker))
		go func() {
			log.Printf("serving episode stats at ws://%s/ws", f.metricsAddr)
			if err := http.ListenAndServe(f.metricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
		opts = append(opts, trainer.WithBroker(broker))
	}

	t := trainer.New(env, agents, placement(cfg, numAgents), opts...)

	log.Printf("training %d %s agents for %d episodes on a %dx%d grid",
		numAgents, f.agentType, episodes, cfg.Env.GridWidth, cfg.Env.GridHeight)
	start := time.Now()
	results, err := t.Train(ctx, episodes)
	if err != nil {
		return fmt.Errorf("training: %w", err)
	}
	log.Printf("training finished in %.2fs (run %s)", time.Since(start).Seconds(), results.RunID)

	if f.chartPath != "" {
		err := report.WriteChart(f.chartPath, "foraging training curves",
			report.Series{Name: "reward", Values: results.Rewards()},
			report.Series{Name: "episode length", Values: results.Lengths()},
			report.Series{Name: "food collected", Values: results.Food()},
		)
		if err != nil {
			return err
		}
		log.Printf("wrote training curves to %s", f.chartPath)
	}

	// Evaluate generalization on a larger grid, as the original
	// experiments did.
	evalW := cfg.Env.GridWidth * 3 / 2
	evalH := cfg.Env.GridHeight * 3 / 2
	evalEnv := buildEnv(cfg, evalW, evalH, cfg.Env.MaxSteps*3/2, seed+1)
	evalTrainer := trainer.New(evalEnv, agents, placement(cfg, numAgents), trainer.WithVerbose(false))

	log.Printf("evaluating over %d episodes on a %dx%d grid", cfg.Training.EvalEpisodes, evalW, evalH)
	evalResults, err := evalTrainer.Evaluate(ctx, cfg.Training.EvalEpisodes)
	if err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	printSummary(evalResults, cfg.Training.SuccessFoodThreshold)

	if f.modelDir != "" {
		if err := saveModels(f.modelDir, agents); err != nil {
			return err
		}
		log.Printf("saved %d models to %s", len(agents), f.modelDir)
	}
	return nil
}

func runEval(f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	numAgents := cfg.Env.NumAgents
	if f.numAgents > 0 {
		numAgents = f.numAgents
	}
	episodes := cfg.Training.EvalEpisodes
	if f.episodes > 0 {
		episodes = f.episodes
	}
	seed := f.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	env := buildEnv(cfg, cfg.Env.GridWidth, cfg.Env.GridHeight, cfg.Env.MaxSteps, seed)
	agents, err := buildAgents(cfg, f.agentType, numAgents, seed)
	if err != nil {
		return err
	}
	if f.modelDir != "" {
		if err := loadModels(f.modelDir, agents); err != nil {
			return err
		}
	}

	t := trainer.New(env, agents, placement(cfg, numAgents), trainer.WithVerbose(false))
	results, err := t.Evaluate(ctx, episodes)
	if err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	printSummary(results, cfg.Training.SuccessFoodThreshold)
	return nil
}

func buildEnv(cfg *config.Config, width, height, maxSteps int, seed int64) *grid.World {
	split := grid.SplitEqual
	if cfg.Env.RewardSplit == "proportional" {
		split = grid.SplitProportional
	}
	return grid.New(width, height, maxSteps, grid.WithSeed(seed), grid.WithSplit(split))
}

func placement(cfg *config.Config, numAgents int) grid.Placement {
	return grid.Placement{
		AgentCount:    numAgents,
		AgentLevelMin: cfg.Env.AgentLevelMin,
		AgentLevelMax: cfg.Env.AgentLevelMax,
		FoodCountMin:  cfg.Env.FoodCountMin,
		FoodCountMax:  cfg.Env.FoodCountMax,
		FoodLevelMin:  cfg.Env.FoodLevelMin,
		FoodLevelMax:  cfg.Env.FoodLevelMax,
		ObstacleCount: cfg.Env.ObstacleCount,
	}
}

func buildAgents(cfg *config.Config, kind string, n int, seed int64) ([]agent.ForagingAgent, error) {
	agents := make([]agent.ForagingAgent, 0, n)
	switch kind {
	case "qlearning":
		q := cfg.QLearning
		for i := 0; i < n; i++ {
			agents = append(agents, agent.NewQLearner(
				agent.WithID(i),
				agent.WithLearningRate(q.LearningRate),
				agent.WithDiscount(q.DiscountFactor),
				agent.WithEpsilon(q.InitialEpsilon, q.EpsilonDecay, q.MinEpsilon),
				agent.WithReplay(q.ReplayCapacity, q.BatchSize),
				agent.WithSeed(seed+int64(i)+1),
			))
		}
	case "dqn":
		d := cfg.DQN
		for i := 0; i < n; i++ {
			agents = append(agents, agent.NewDQN(
				agent.WithID(i),
				agent.WithLearningRate(d.LearningRate),
				agent.WithDiscount(d.DiscountFactor),
				agent.WithEpsilon(d.InitialEpsilon, d.EpsilonDecay, d.MinEpsilon),
				agent.WithReplay(d.ReplayCapacity, d.BatchSize),
				agent.WithTargetUpdateFreq(d.TargetUpdateFreq),
				agent.WithHiddenLayers(d.HiddenLayers...),
				agent.WithSeed(seed+int64(i)+1),
			))
		}
	default:
		return nil, fmt.Errorf("unknown agent type %q, use qlearning or dqn", kind)
	}
	return agents, nil
}

func printSummary(results *trainer.Results, successThreshold int) {
	s := results.Summarize(successThreshold)
	log.Printf("evaluation results (run %s):", results.RunID)
	for _, line := range report.SummaryLines(s.AvgReward, s.AvgLength, s.AvgFood, s.SuccessRate) {
		fmt.Println(line)
	}
}

func saveModels(dir string, agents []agent.ForagingAgent) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}
	for _, a := range agents {
		f, err := os.Create(modelPath(dir, a))
		if err != nil {
			return err
		}
		switch ag := a.(type) {
		case *agent.DQN:
			err = ag.Save(f)
		case *agent.QLearner:
			err = ag.Table().Save(f)
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("saving agent %d: %w", a.ID(), err)
		}
	}
	return nil
}

func loadModels(dir string, agents []agent.ForagingAgent) error {
	for _, a := range agents {
		f, err := os.Open(modelPath(dir, a))
		if err != nil {
			return err
		}
		switch ag := a.(type) {
		case *agent.DQN:
			err = ag.Load(f)
		case *agent.QLearner:
			err = ag.Table().Load(f)
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("loading agent %d: %w", a.ID(), err)
		}
	}
	return nil
}

func modelPath(dir string, a agent.ForagingAgent) string {
	kind := "dqn"
	if _, ok := a.(*agent.QLearner); ok {
		kind = "qtable"
	}
	return filepath.Join(dir, fmt.Sprintf("agent_%d.%s", a.ID(), kind))
}
