// Package obs converts world snapshots into agent-centric representations:
// a compact discrete key for table lookup and a fixed-length feature vector
// for function approximation. Encoders are stateless; encoding the same
// snapshot twice yields identical output.
package obs

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/boristopalov/forage/pkg/grid"
)

// TerminalKey is returned by Discrete.Key when the agent is absent from the
// snapshot.
const TerminalKey = "terminal"

// Discrete encodes a snapshot as a short string key: the agent's position
// coarsened to Bucket-sized cells, the signed direction and level of the
// Manhattan-nearest food, and a 3x3 window around the agent classified by
// cell type. Coarse enough that a value table converges within a few
// hundred episodes.
type Discrete struct {
	// Bucket is the side of the coarse position cells.
	Bucket int
}

// NewDiscrete returns a Discrete encoder with the default bucket size of 2.
func NewDiscrete() Discrete {
	return Discrete{Bucket: 2}
}

// Key encodes the snapshot from the given agent's perspective.
func (e Discrete) Key(s grid.State, agentID int) string {
	agent, ok := s.Agent(agentID)
	if !ok {
		return TerminalKey
	}
	bucket := e.Bucket
	if bucket < 1 {
		bucket = 1
	}

	var key strings.Builder
	fmt.Fprintf(&key, "%d,%d;", agent.Pos.X/bucket, agent.Pos.Y/bucket)

	if len(s.Foods) == 0 {
		key.WriteString("done")
	} else {
		nearest := s.Foods[0]
		best := manhattan(agent.Pos, nearest.Pos)
		for _, f := range s.Foods[1:] {
			if d := manhattan(agent.Pos, f.Pos); d < best {
				best = d
				nearest = f
			}
		}
		fmt.Fprintf(&key, "%d,%d,%d",
			sign(nearest.Pos.X-agent.Pos.X),
			sign(nearest.Pos.Y-agent.Pos.Y),
			nearest.Level)
	}

	key.WriteByte(';')
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			key.WriteByte(e.cellClass(s, grid.Position{X: agent.Pos.X + dx, Y: agent.Pos.Y + dy}))
		}
	}
	return key.String()
}

func (e Discrete) cellClass(s grid.State, p grid.Position) byte {
	if p.X < 0 || p.X >= s.Width || p.Y < 0 || p.Y >= s.Height {
		return 'b'
	}
	if s.HasObstacle(p) {
		return 'o'
	}
	for _, f := range s.Foods {
		if f.Pos == p {
			return 'f'
		}
	}
	return 'e'
}

// Continuous encodes a snapshot as a fixed-length vector: the agent's
// normalized position and level, then the normalized relative position and
// level of up to Neighbors nearest other agents, then the same for up to
// Neighbors nearest foods, zero-padded when fewer exist. The dimensionality
// is fixed regardless of population size so one network serves variable
// agent and food counts.
type Continuous struct {
	// Neighbors is the number of nearest agents and foods included.
	Neighbors int
	// LevelScale normalizes entity levels.
	LevelScale float64
}

// NewContinuous returns a Continuous encoder with the default 3 neighbors
// and level scale 10, a 21-dimensional encoding.
func NewContinuous() Continuous {
	return Continuous{Neighbors: 3, LevelScale: 10}
}

// Size is the length of vectors produced by Vector.
func (e Continuous) Size() int {
	return 3 + 6*e.Neighbors
}

// Vector encodes the snapshot from the given agent's perspective. An agent
// absent from the snapshot encodes as the zero vector.
func (e Continuous) Vector(s grid.State, agentID int) []float64 {
	v := make([]float64, 0, e.Size())
	agent, ok := s.Agent(agentID)
	if !ok {
		return make([]float64, e.Size())
	}
	width := float64(s.Width)
	height := float64(s.Height)

	v = append(v,
		float64(agent.Pos.X)/width,
		float64(agent.Pos.Y)/height,
		float64(agent.Level)/e.LevelScale)

	others := make([]grid.Agent, 0, len(s.Agents))
	for _, a := range s.Agents {
		if a.ID != agentID {
			others = append(others, a)
		}
	}
	sort.SliceStable(others, func(i, j int) bool {
		return euclidean(agent.Pos, others[i].Pos) < euclidean(agent.Pos, others[j].Pos)
	})
	for i := 0; i < e.Neighbors; i++ {
		if i < len(others) {
			v = append(v,
				float64(others[i].Pos.X-agent.Pos.X)/width,
				float64(others[i].Pos.Y-agent.Pos.Y)/height,
				float64(others[i].Level)/e.LevelScale)
		} else {
			v = append(v, 0, 0, 0)
		}
	}

	foods := append([]grid.Food(nil), s.Foods...)
	sort.SliceStable(foods, func(i, j int) bool {
		return euclidean(agent.Pos, foods[i].Pos) < euclidean(agent.Pos, foods[j].Pos)
	})
	for i := 0; i < e.Neighbors; i++ {
		if i < len(foods) {
			v = append(v,
				float64(foods[i].Pos.X-agent.Pos.X)/width,
				float64(foods[i].Pos.Y-agent.Pos.Y)/height,
				float64(foods[i].Level)/e.LevelScale)
		} else {
			v = append(v, 0, 0, 0)
		}
	}
	return v
}

func manhattan(a, b grid.Position) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

func euclidean(a, b grid.Position) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
