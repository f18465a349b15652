package grid

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Reward constants. Collection rewards come from food levels; these two are
// the fixed penalties applied during a step.
const (
	// InvalidMovePenalty is charged to an agent whose move was rejected.
	InvalidMovePenalty = -0.01
	// TimePenalty is charged to every agent every step.
	TimePenalty = -0.001
)

// SplitPolicy selects how a collected food's reward is divided among the
// agents that contributed to collecting it.
type SplitPolicy int

const (
	// SplitEqual divides the food level evenly across contributors.
	SplitEqual SplitPolicy = iota
	// SplitProportional divides the food level in proportion to each
	// contributor's own level.
	SplitProportional
)

// ErrNoFreeCells is returned by Reset when the requested placement asks for
// more entities than the grid has cells.
var ErrNoFreeCells = errors.New("grid: not enough free cells for requested placement")

// Placement describes a randomized episode setup. Counts and levels are
// drawn from the configured ranges using the world's own random source, so
// two worlds with the same seed produce identical placements.
type Placement struct {
	AgentCount    int
	AgentLevelMin int
	AgentLevelMax int
	FoodCountMin  int
	FoodCountMax  int
	FoodLevelMin  int
	FoodLevelMax  int
	ObstacleCount int
}

// World is a level-based foraging environment: a bounded grid holding
// agents, food items and obstacles. Agents move simultaneously; food whose
// level is covered by the summed levels of adjacent agents is collected
// cooperatively. A World is not safe for concurrent use.
type World struct {
	width    int
	height   int
	maxSteps int
	split    SplitPolicy
	rng      *rand.Rand

	agents []*Agent
	foods  []Food
	walls  [][]bool
	steps  int
	done   bool
}

// Option configures a World at construction time.
type Option func(*World)

// WithSeed fixes the world's random source so placements are reproducible.
func WithSeed(seed int64) Option {
	return func(w *World) {
		w.rng = rand.New(rand.NewSource(seed))
	}
}

// WithSplit sets the reward split policy for cooperative collection.
func WithSplit(p SplitPolicy) Option {
	return func(w *World) {
		w.split = p
	}
}

// New creates an empty world. Populate it with Reset or the Add methods.
func New(width, height, maxSteps int, opts ...Option) *World {
	w := &World{
		width:    width,
		height:   height,
		maxSteps: maxSteps,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.clear()
	return w
}

func (w *World) clear() {
	w.agents = nil
	w.foods = nil
	w.walls = make([][]bool, w.height)
	for y := range w.walls {
		w.walls[y] = make([]bool, w.width)
	}
	w.steps = 0
	w.done = false
}

// Reset clears the world and repopulates it from the placement. Obstacles
// are placed first, then agents (ids 0..AgentCount-1), then food, each on a
// distinct free cell. It fails with ErrNoFreeCells instead of searching
// forever when the grid cannot hold the request. A placement with no food
// leaves the episode already finished.
func (w *World) Reset(p Placement) error {
	w.clear()

	if (p.FoodCountMin > 0 || p.FoodCountMax > 0) && p.FoodLevelMin < 1 {
		return fmt.Errorf("grid: food level minimum must be >= 1, got %d", p.FoodLevelMin)
	}
	foodCount := p.FoodCountMin
	if p.FoodCountMax > p.FoodCountMin {
		foodCount += w.rng.Intn(p.FoodCountMax - p.FoodCountMin + 1)
	}

	needed := p.ObstacleCount + p.AgentCount + foodCount
	if needed > w.width*w.height {
		return fmt.Errorf("%w: need %d cells on a %dx%d grid", ErrNoFreeCells, needed, w.width, w.height)
	}

	cells := make([]Position, 0, w.width*w.height)
	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			cells = append(cells, Position{X: x, Y: y})
		}
	}
	w.rng.Shuffle(len(cells), func(i, j int) {
		cells[i], cells[j] = cells[j], cells[i]
	})

	next := 0
	take := func() Position {
		p := cells[next]
		next++
		return p
	}

	for i := 0; i < p.ObstacleCount; i++ {
		pos := take()
		w.walls[pos.Y][pos.X] = true
	}
	for id := 0; id < p.AgentCount; id++ {
		level := p.AgentLevelMin
		if p.AgentLevelMax > p.AgentLevelMin {
			level += w.rng.Intn(p.AgentLevelMax - p.AgentLevelMin + 1)
		}
		if level < 1 {
			level = 1
		}
		w.agents = append(w.agents, &Agent{ID: id, Level: level, Pos: take()})
	}
	for i := 0; i < foodCount; i++ {
		level := p.FoodLevelMin
		if p.FoodLevelMax > p.FoodLevelMin {
			level += w.rng.Intn(p.FoodLevelMax - p.FoodLevelMin + 1)
		}
		w.foods = append(w.foods, Food{Level: level, Pos: take()})
	}
	w.done = len(w.foods) == 0
	return nil
}

// AddAgent places an agent explicitly. Out-of-bounds, blocked or occupied
// positions and duplicate ids are silently ignored.
func (w *World) AddAgent(id, level int, pos Position) {
	if !w.inBounds(pos) || w.walls[pos.Y][pos.X] || level < 1 {
		return
	}
	for _, a := range w.agents {
		if a.ID == id || a.Pos == pos {
			return
		}
	}
	w.agents = append(w.agents, &Agent{ID: id, Level: level, Pos: pos})
}

// AddFood places a food item explicitly. Out-of-bounds positions are
// silently ignored; a level below 1 is a configuration error because a
// zero-level food would be collectible by an empty contributor set.
func (w *World) AddFood(level int, pos Position) error {
	if level < 1 {
		return fmt.Errorf("grid: food level must be >= 1, got %d", level)
	}
	if !w.inBounds(pos) || w.walls[pos.Y][pos.X] {
		return nil
	}
	w.foods = append(w.foods, Food{Level: level, Pos: pos})
	return nil
}

// AddObstacle marks a cell permanently blocked for the episode. Cells that
// are out of bounds or hold an agent are silently ignored.
func (w *World) AddObstacle(pos Position) {
	if !w.inBounds(pos) {
		return
	}
	for _, a := range w.agents {
		if a.Pos == pos {
			return
		}
	}
	w.walls[pos.Y][pos.X] = true
}

// Step executes one joint step and returns the reward earned by each agent.
//
// Moves are resolved simultaneously against the pre-step snapshot, in
// ascending agent id order: the lowest id claiming a cell wins and later
// claimants bounce. A candidate cell is rejected when it is out of bounds,
// blocked, already claimed, or still occupied by an unresolved agent (so
// two agents can never swap cells). Rejected movers stay put and take
// InvalidMovePenalty. Agents missing from the action map default to
// ActionStay. Stepping a finished world is a no-op returning zero rewards.
func (w *World) Step(actions map[int]Action) map[int]float64 {
	rewards := make(map[int]float64, len(w.agents))
	for _, a := range w.agents {
		rewards[a.ID] = 0
	}
	if w.done {
		return rewards
	}

	order := make([]*Agent, len(w.agents))
	copy(order, w.agents)
	sort.Slice(order, func(i, j int) bool { return order[i].ID < order[j].ID })

	occupied := make(map[Position]int, len(order))
	for _, a := range order {
		occupied[a.Pos] = a.ID
	}

	claimed := make(map[Position]bool, len(order))
	resolved := make(map[int]bool, len(order))
	moved := make(map[int]Position, len(order))

	for _, a := range order {
		action, ok := actions[a.ID]
		if !ok {
			action = ActionStay
		}
		dx, dy := action.Delta()
		cand := Position{X: a.Pos.X + dx, Y: a.Pos.Y + dy}

		valid := cand == a.Pos
		if !valid {
			valid = w.inBounds(cand) && !w.walls[cand.Y][cand.X] && !claimed[cand]
			if valid {
				if id, occ := occupied[cand]; occ && id != a.ID && !resolved[id] {
					valid = false
				}
			}
			if !valid {
				rewards[a.ID] += InvalidMovePenalty
				cand = a.Pos
			}
		}

		claimed[cand] = true
		moved[a.ID] = cand
		resolved[a.ID] = true
	}

	// Commit all moves at once.
	for _, a := range w.agents {
		a.Pos = moved[a.ID]
	}

	// Collection is evaluated once against post-move positions.
	kept := w.foods[:0]
	for _, f := range w.foods {
		var contributors []*Agent
		total := 0
		for _, a := range w.agents {
			if a.Pos.Chebyshev(f.Pos) <= 1 {
				contributors = append(contributors, a)
				total += a.Level
			}
		}
		if len(contributors) > 0 && total >= f.Level {
			switch w.split {
			case SplitProportional:
				for _, a := range contributors {
					rewards[a.ID] += float64(f.Level) * float64(a.Level) / float64(total)
				}
			default:
				share := float64(f.Level) / float64(len(contributors))
				for _, a := range contributors {
					rewards[a.ID] += share
				}
			}
		} else {
			kept = append(kept, f)
		}
	}
	w.foods = kept

	for id := range rewards {
		rewards[id] += TimePenalty
	}

	w.steps++
	if len(w.foods) == 0 || w.steps >= w.maxSteps {
		w.done = true
	}
	return rewards
}

// Done reports whether the episode has ended. It stays true until Reset.
func (w *World) Done() bool {
	return w.done
}

// State returns a deep-copied snapshot of the world.
func (w *World) State() State {
	s := State{
		Width:  w.width,
		Height: w.height,
		Steps:  w.steps,
		Agents: make([]Agent, 0, len(w.agents)),
		Foods:  append([]Food(nil), w.foods...),
	}
	for _, a := range w.agents {
		s.Agents = append(s.Agents, *a)
	}
	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			if w.walls[y][x] {
				s.Obstacles = append(s.Obstacles, Position{X: x, Y: y})
			}
		}
	}
	return s
}

func (w *World) Width() int     { return w.width }
func (w *World) Height() int    { return w.height }
func (w *World) MaxSteps() int  { return w.maxSteps }
func (w *World) StepCount() int { return w.steps }
func (w *World) FoodCount() int { return len(w.foods) }
func (w *World) AgentCount() int {
	return len(w.agents)
}

func (w *World) inBounds(p Position) bool {
	return p.X >= 0 && p.X < w.width && p.Y >= 0 && p.Y < w.height
}
