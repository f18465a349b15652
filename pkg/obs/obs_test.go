package obs

import (
	"strings"
	"testing"

	"github.com/boristopalov/forage/pkg/grid"
)

func snapshot() grid.State {
	return grid.State{
		Width:  8,
		Height: 8,
		Agents: []grid.Agent{
			{ID: 0, Level: 1, Pos: grid.Position{X: 2, Y: 3}},
			{ID: 1, Level: 2, Pos: grid.Position{X: 5, Y: 5}},
		},
		Foods: []grid.Food{
			{Level: 2, Pos: grid.Position{X: 4, Y: 3}},
			{Level: 1, Pos: grid.Position{X: 7, Y: 7}},
		},
		Obstacles: []grid.Position{{X: 2, Y: 2}},
	}
}

func TestDiscreteKeyIsPure(t *testing.T) {
	enc := NewDiscrete()
	s := snapshot()
	k1 := enc.Key(s, 0)
	k2 := enc.Key(s, 0)
	if k1 != k2 {
		t.Fatalf("same snapshot encoded differently: %q vs %q", k1, k2)
	}
	if k1 == enc.Key(s, 1) {
		t.Error("different agents should generally see different keys here")
	}
}

func TestDiscreteKeyContents(t *testing.T) {
	enc := NewDiscrete()
	s := snapshot()
	key := enc.Key(s, 0)

	// Position (2,3) in 2x2 buckets is (1,1); nearest food by Manhattan
	// distance is the level-2 food two cells to the right.
	if !strings.HasPrefix(key, "1,1;1,0,2;") {
		t.Errorf("key = %q, want prefix %q", key, "1,1;1,0,2;")
	}
	// The 3x3 window around (2,3) holds the obstacle at (2,2), directly
	// above the agent.
	window := key[strings.LastIndex(key, ";")+1:]
	if len(window) != 8 {
		t.Fatalf("window %q has %d cells, want 8", window, len(window))
	}
	if window[1] != 'o' {
		t.Errorf("window = %q, expected obstacle in the up cell", window)
	}
}

func TestDiscreteKeyTerminal(t *testing.T) {
	enc := NewDiscrete()
	if key := enc.Key(snapshot(), 42); key != TerminalKey {
		t.Errorf("absent agent key = %q, want %q", key, TerminalKey)
	}
}

func TestDiscreteKeyNoFood(t *testing.T) {
	enc := NewDiscrete()
	s := snapshot()
	s.Foods = nil
	key := enc.Key(s, 0)
	if !strings.Contains(key, "done") {
		t.Errorf("key = %q, want a done marker when no food remains", key)
	}
}

func TestContinuousVectorShape(t *testing.T) {
	enc := NewContinuous()
	s := snapshot()
	v := enc.Vector(s, 0)
	if len(v) != enc.Size() {
		t.Fatalf("vector length = %d, want %d", len(v), enc.Size())
	}
	if enc.Size() != 21 {
		t.Fatalf("default encoding size = %d, want 21", enc.Size())
	}

	// Own features.
	if v[0] != 2.0/8 || v[1] != 3.0/8 || v[2] != 1.0/10 {
		t.Errorf("own features = %v", v[:3])
	}
	// One other agent, then zero padding for the remaining two slots.
	if v[3] != 3.0/8 || v[4] != 2.0/8 || v[5] != 2.0/10 {
		t.Errorf("neighbor features = %v", v[3:6])
	}
	for i := 6; i < 12; i++ {
		if v[i] != 0 {
			t.Errorf("v[%d] = %v, want zero padding", i, v[i])
		}
	}
	// Nearest food first.
	if v[12] != 2.0/8 || v[13] != 0 || v[14] != 2.0/10 {
		t.Errorf("food features = %v", v[12:15])
	}
}

func TestContinuousVectorIsPure(t *testing.T) {
	enc := NewContinuous()
	s := snapshot()
	v1 := enc.Vector(s, 0)
	v2 := enc.Vector(s, 0)
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("index %d differs across identical encodes: %v vs %v", i, v1[i], v2[i])
		}
	}

	// Encoding must not reorder the snapshot's own slices.
	if s.Foods[0].Level != 2 || s.Agents[0].ID != 0 {
		t.Error("encoder mutated the snapshot")
	}
}

func TestContinuousAbsentAgentIsZero(t *testing.T) {
	enc := NewContinuous()
	v := enc.Vector(snapshot(), 42)
	if len(v) != enc.Size() {
		t.Fatalf("vector length = %d, want %d", len(v), enc.Size())
	}
	for i, x := range v {
		if x != 0 {
			t.Fatalf("v[%d] = %v, want all zeros for an absent agent", i, x)
		}
	}
}
