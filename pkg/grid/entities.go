package grid

// Position is a cell coordinate on the grid. Value type, no identity.
type Position struct {
	X int
	Y int
}

// Chebyshev returns the Chebyshev distance between two positions, i.e. the
// number of king moves between them. Distance 1 covers the full
// 8-neighborhood plus the cell itself at distance 0.
func (p Position) Chebyshev(o Position) int {
	dx := p.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dy := p.Y - o.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// Agent is a foraging agent as the environment sees it: an id, a fixed
// level (its collection capacity), and a position that only World.Step
// mutates.
type Agent struct {
	ID    int
	Level int
	Pos   Position
}

// Food is a collectible item. Level is the summed agent level required to
// collect it. Foods are removed on collection and never otherwise mutated.
type Food struct {
	Level int
	Pos   Position
}

// State is a deep-copied snapshot of the world, safe to hand to any number
// of encoders and agents. Mutating a State never affects the environment.
type State struct {
	Agents    []Agent
	Foods     []Food
	Obstacles []Position
	Width     int
	Height    int
	Steps     int
}

// Agent returns the snapshot entry for the given agent id.
func (s State) Agent(id int) (Agent, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// HasObstacle reports whether the snapshot marks the position blocked.
func (s State) HasObstacle(p Position) bool {
	for _, o := range s.Obstacles {
		if o == p {
			return true
		}
	}
	return false
}
