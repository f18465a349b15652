package grid

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCooperativeCollection(t *testing.T) {
	w := New(3, 3, 100, WithSeed(1))
	w.AddAgent(0, 1, Position{X: 0, Y: 1})
	w.AddAgent(1, 1, Position{X: 2, Y: 1})
	if err := w.AddFood(2, Position{X: 1, Y: 1}); err != nil {
		t.Fatalf("AddFood: %v", err)
	}

	rewards := w.Step(map[int]Action{0: ActionStay, 1: ActionStay})

	if w.FoodCount() != 0 {
		t.Errorf("food should be collected, %d remain", w.FoodCount())
	}
	// Each agent gets half the food level minus the time penalty, and no
	// invalid-move penalty since STAY is always valid.
	want := 2.0/2 + TimePenalty
	for id := 0; id <= 1; id++ {
		if !almostEqual(rewards[id], want) {
			t.Errorf("agent %d reward = %v, want %v", id, rewards[id], want)
		}
	}
	if !w.Done() {
		t.Error("episode should end when all food is collected")
	}
}

func TestCollectionRequiresSummedLevel(t *testing.T) {
	w := New(3, 3, 100, WithSeed(1))
	w.AddAgent(0, 1, Position{X: 0, Y: 1})
	if err := w.AddFood(2, Position{X: 1, Y: 1}); err != nil {
		t.Fatalf("AddFood: %v", err)
	}

	rewards := w.Step(map[int]Action{0: ActionStay})

	if w.FoodCount() != 1 {
		t.Fatal("a level-1 agent alone must not collect a level-2 food")
	}
	if !almostEqual(rewards[0], TimePenalty) {
		t.Errorf("reward = %v, want just the time penalty %v", rewards[0], TimePenalty)
	}
}

func TestProportionalSplit(t *testing.T) {
	w := New(3, 3, 100, WithSeed(1), WithSplit(SplitProportional))
	w.AddAgent(0, 1, Position{X: 0, Y: 1})
	w.AddAgent(1, 3, Position{X: 2, Y: 1})
	if err := w.AddFood(4, Position{X: 1, Y: 1}); err != nil {
		t.Fatalf("AddFood: %v", err)
	}

	rewards := w.Step(map[int]Action{0: ActionStay, 1: ActionStay})

	if !almostEqual(rewards[0], 4.0*1/4+TimePenalty) {
		t.Errorf("agent 0 reward = %v, want level-weighted share", rewards[0])
	}
	if !almostEqual(rewards[1], 4.0*3/4+TimePenalty) {
		t.Errorf("agent 1 reward = %v, want level-weighted share", rewards[1])
	}
}

func TestInvalidMovePenalty(t *testing.T) {
	w := New(3, 3, 100, WithSeed(1))
	w.AddObstacle(Position{X: 1, Y: 0})
	w.AddAgent(0, 1, Position{X: 0, Y: 0})
	w.AddAgent(1, 1, Position{X: 2, Y: 2})
	if err := w.AddFood(5, Position{X: 2, Y: 0}); err != nil {
		t.Fatalf("AddFood: %v", err)
	}

	// Agent 0 walks into the obstacle, agent 1 walks off the grid.
	rewards := w.Step(map[int]Action{0: ActionRight, 1: ActionDown})

	want := InvalidMovePenalty + TimePenalty
	if !almostEqual(rewards[0], want) {
		t.Errorf("obstacle bounce reward = %v, want %v", rewards[0], want)
	}
	if !almostEqual(rewards[1], want) {
		t.Errorf("off-grid bounce reward = %v, want %v", rewards[1], want)
	}

	s := w.State()
	if a, _ := s.Agent(0); a.Pos != (Position{X: 0, Y: 0}) {
		t.Errorf("agent 0 moved to %v, should have stayed", a.Pos)
	}
	if a, _ := s.Agent(1); a.Pos != (Position{X: 2, Y: 2}) {
		t.Errorf("agent 1 moved to %v, should have stayed", a.Pos)
	}
}

func TestCollisionLowestIDWins(t *testing.T) {
	w := New(3, 3, 100, WithSeed(1))
	w.AddAgent(0, 1, Position{X: 0, Y: 0})
	w.AddAgent(1, 1, Position{X: 2, Y: 0})
	if err := w.AddFood(5, Position{X: 2, Y: 2}); err != nil {
		t.Fatalf("AddFood: %v", err)
	}

	// Both claim (1,0); agent 0 resolves first and wins.
	rewards := w.Step(map[int]Action{0: ActionRight, 1: ActionLeft})

	s := w.State()
	a0, _ := s.Agent(0)
	a1, _ := s.Agent(1)
	if a0.Pos != (Position{X: 1, Y: 0}) {
		t.Errorf("agent 0 at %v, want the contested cell", a0.Pos)
	}
	if a1.Pos != (Position{X: 2, Y: 0}) {
		t.Errorf("agent 1 at %v, should have bounced", a1.Pos)
	}
	if !almostEqual(rewards[1], InvalidMovePenalty+TimePenalty) {
		t.Errorf("bounced agent reward = %v", rewards[1])
	}
	if !almostEqual(rewards[0], TimePenalty) {
		t.Errorf("winning agent reward = %v, want only time penalty", rewards[0])
	}
}

func TestNoSwaps(t *testing.T) {
	w := New(3, 1, 100, WithSeed(1))
	w.AddAgent(0, 1, Position{X: 0, Y: 0})
	w.AddAgent(1, 1, Position{X: 1, Y: 0})
	if err := w.AddFood(5, Position{X: 2, Y: 0}); err != nil {
		t.Fatalf("AddFood: %v", err)
	}

	w.Step(map[int]Action{0: ActionRight, 1: ActionLeft})

	s := w.State()
	a0, _ := s.Agent(0)
	a1, _ := s.Agent(1)
	if a0.Pos == a1.Pos {
		t.Fatalf("agents share cell %v", a0.Pos)
	}
	if a0.Pos != (Position{X: 0, Y: 0}) || a1.Pos != (Position{X: 1, Y: 0}) {
		t.Errorf("agents swapped through each other: %v, %v", a0.Pos, a1.Pos)
	}
}

func TestMissingActionDefaultsToStay(t *testing.T) {
	w := New(3, 3, 100, WithSeed(1))
	w.AddAgent(0, 1, Position{X: 1, Y: 1})
	if err := w.AddFood(5, Position{X: 0, Y: 0}); err != nil {
		t.Fatalf("AddFood: %v", err)
	}

	rewards := w.Step(map[int]Action{})

	if a, _ := w.State().Agent(0); a.Pos != (Position{X: 1, Y: 1}) {
		t.Errorf("agent moved to %v without an action", a.Pos)
	}
	if !almostEqual(rewards[0], TimePenalty) {
		t.Errorf("reward = %v, defaulted STAY must not be penalized", rewards[0])
	}
}

func TestCollisionInvariant(t *testing.T) {
	w := New(6, 6, 50, WithSeed(42))
	if err := w.Reset(Placement{
		AgentCount:    4,
		AgentLevelMin: 1,
		AgentLevelMax: 2,
		FoodCountMin:  3,
		FoodCountMax:  5,
		FoodLevelMin:  1,
		FoodLevelMax:  3,
		ObstacleCount: 5,
	}); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	for !w.Done() {
		actions := make(map[int]Action)
		for id := 0; id < 4; id++ {
			actions[id] = Action(rng.Intn(NumActions))
		}
		w.Step(actions)

		s := w.State()
		seen := make(map[Position]int)
		for _, a := range s.Agents {
			if prev, ok := seen[a.Pos]; ok {
				t.Fatalf("agents %d and %d both at %v", prev, a.ID, a.Pos)
			}
			seen[a.Pos] = a.ID
			if s.HasObstacle(a.Pos) {
				t.Fatalf("agent %d standing on obstacle at %v", a.ID, a.Pos)
			}
			if a.Pos.X < 0 || a.Pos.X >= s.Width || a.Pos.Y < 0 || a.Pos.Y >= s.Height {
				t.Fatalf("agent %d out of bounds at %v", a.ID, a.Pos)
			}
		}
	}
}

func TestDoneAtStepCapAndMonotonic(t *testing.T) {
	w := New(3, 3, 2, WithSeed(1))
	w.AddAgent(0, 1, Position{X: 0, Y: 0})
	if err := w.AddFood(5, Position{X: 2, Y: 2}); err != nil {
		t.Fatalf("AddFood: %v", err)
	}

	w.Step(map[int]Action{0: ActionStay})
	if w.Done() {
		t.Fatal("done before step cap")
	}
	w.Step(map[int]Action{0: ActionStay})
	if !w.Done() {
		t.Fatal("not done at step cap")
	}

	// Stepping a finished world changes nothing.
	steps := w.StepCount()
	rewards := w.Step(map[int]Action{0: ActionRight})
	if !w.Done() {
		t.Error("done flag must be monotonic until reset")
	}
	if w.StepCount() != steps {
		t.Error("step count advanced on a finished world")
	}
	if rewards[0] != 0 {
		t.Errorf("finished world paid reward %v", rewards[0])
	}

	if err := w.Reset(Placement{
		AgentCount:    1,
		AgentLevelMin: 1,
		AgentLevelMax: 1,
		FoodCountMin:  1,
		FoodCountMax:  1,
		FoodLevelMin:  1,
		FoodLevelMax:  1,
	}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if w.Done() {
		t.Error("reset must return the world to running")
	}
}

func TestResetWithoutFoodIsAlreadyDone(t *testing.T) {
	w := New(4, 4, 10, WithSeed(1))
	if err := w.Reset(Placement{
		AgentCount:    1,
		AgentLevelMin: 1,
		AgentLevelMax: 1,
	}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !w.Done() {
		t.Fatal("a world with nothing left to collect must report done")
	}
}

func TestResetTooManyEntities(t *testing.T) {
	w := New(2, 2, 10, WithSeed(1))
	err := w.Reset(Placement{
		AgentCount:    3,
		AgentLevelMin: 1,
		AgentLevelMax: 1,
		FoodCountMin:  2,
		FoodCountMax:  2,
		FoodLevelMin:  1,
		FoodLevelMax:  1,
	})
	if !errors.Is(err, ErrNoFreeCells) {
		t.Fatalf("err = %v, want ErrNoFreeCells", err)
	}
}

func TestResetRejectsZeroLevelFood(t *testing.T) {
	w := New(4, 4, 10, WithSeed(1))
	err := w.Reset(Placement{
		AgentCount:    1,
		AgentLevelMin: 1,
		AgentLevelMax: 1,
		FoodCountMin:  1,
		FoodCountMax:  1,
		FoodLevelMin:  0,
		FoodLevelMax:  0,
	})
	if err == nil {
		t.Fatal("zero-level food must be rejected as a configuration error")
	}

	// The rejection holds even when the count range starts at zero and the
	// actual count is drawn.
	err = w.Reset(Placement{
		AgentCount:    1,
		AgentLevelMin: 1,
		AgentLevelMax: 1,
		FoodCountMin:  0,
		FoodCountMax:  4,
		FoodLevelMin:  0,
		FoodLevelMax:  0,
	})
	if err == nil {
		t.Fatal("zero-level food with a drawn count must be rejected too")
	}
	for _, f := range w.State().Foods {
		if f.Level < 1 {
			t.Fatalf("level-%d food placed at %v", f.Level, f.Pos)
		}
	}
}

func TestAddFoodRejectsZeroLevel(t *testing.T) {
	w := New(3, 3, 10, WithSeed(1))
	if err := w.AddFood(0, Position{X: 1, Y: 1}); err == nil {
		t.Fatal("zero-level food must be rejected")
	}
}

func TestSilentPlacementNoOps(t *testing.T) {
	w := New(3, 3, 10, WithSeed(1))
	w.AddAgent(0, 1, Position{X: -1, Y: 0})
	w.AddAgent(1, 1, Position{X: 5, Y: 5})
	if err := w.AddFood(1, Position{X: 9, Y: 9}); err != nil {
		t.Errorf("out-of-bounds food placement must be a silent no-op, got %v", err)
	}
	w.AddObstacle(Position{X: -2, Y: -2})

	if w.AgentCount() != 0 || w.FoodCount() != 0 {
		t.Errorf("out-of-bounds placements took effect: %d agents, %d foods", w.AgentCount(), w.FoodCount())
	}

	// Occupied cells and duplicate ids are also ignored.
	w.AddAgent(0, 1, Position{X: 0, Y: 0})
	w.AddAgent(1, 1, Position{X: 0, Y: 0})
	w.AddAgent(0, 1, Position{X: 2, Y: 2})
	if w.AgentCount() != 1 {
		t.Errorf("agent count = %d, want 1", w.AgentCount())
	}
}

func TestDeterministicPlacement(t *testing.T) {
	p := Placement{
		AgentCount:    3,
		AgentLevelMin: 1,
		AgentLevelMax: 2,
		FoodCountMin:  3,
		FoodCountMax:  5,
		FoodLevelMin:  1,
		FoodLevelMax:  3,
		ObstacleCount: 4,
	}
	w1 := New(8, 8, 100, WithSeed(99))
	w2 := New(8, 8, 100, WithSeed(99))
	if err := w1.Reset(p); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := w2.Reset(p); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	s1 := w1.State()
	s2 := w2.State()
	if len(s1.Agents) != len(s2.Agents) || len(s1.Foods) != len(s2.Foods) {
		t.Fatalf("entity counts differ: %d/%d agents, %d/%d foods",
			len(s1.Agents), len(s2.Agents), len(s1.Foods), len(s2.Foods))
	}
	for i := range s1.Agents {
		if s1.Agents[i] != s2.Agents[i] {
			t.Errorf("agent %d differs: %+v vs %+v", i, s1.Agents[i], s2.Agents[i])
		}
	}
	for i := range s1.Foods {
		if s1.Foods[i] != s2.Foods[i] {
			t.Errorf("food %d differs: %+v vs %+v", i, s1.Foods[i], s2.Foods[i])
		}
	}

	// Identical action sequences produce identical reward sequences.
	rng := rand.New(rand.NewSource(5))
	for step := 0; step < 20 && !w1.Done(); step++ {
		actions := make(map[int]Action)
		for id := 0; id < 3; id++ {
			actions[id] = Action(rng.Intn(NumActions))
		}
		r1 := w1.Step(actions)
		r2 := w2.Step(actions)
		for id := range r1 {
			if r1[id] != r2[id] {
				t.Fatalf("step %d: rewards diverge for agent %d: %v vs %v", step, id, r1[id], r2[id])
			}
		}
	}
}

func TestStateIsDeepCopy(t *testing.T) {
	w := New(3, 3, 10, WithSeed(1))
	w.AddAgent(0, 1, Position{X: 0, Y: 0})
	if err := w.AddFood(1, Position{X: 2, Y: 2}); err != nil {
		t.Fatalf("AddFood: %v", err)
	}

	s := w.State()
	s.Agents[0].Pos = Position{X: 2, Y: 1}
	s.Foods[0] = Food{Level: 9, Pos: Position{X: 0, Y: 1}}

	fresh := w.State()
	if a, _ := fresh.Agent(0); a.Pos != (Position{X: 0, Y: 0}) {
		t.Error("mutating a snapshot leaked into the environment")
	}
	if fresh.Foods[0].Level != 1 {
		t.Error("mutating a snapshot's food leaked into the environment")
	}
}
