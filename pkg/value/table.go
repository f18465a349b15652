// Package value holds the two action-value estimators: a lookup table over
// discrete state keys and a small feed-forward network over feature
// vectors with a lagged target copy for stable learning targets.
package value

import (
	"encoding/gob"
	"fmt"
	"io"
)

// Table maps discrete state keys to per-action values. Rows are created
// lazily and zero-initialized on first access; asking about an unseen state
// is expected behavior, not an error.
type Table struct {
	actions int
	values  map[string][]float64
}

// NewTable creates an empty table for the given action count.
func NewTable(actions int) *Table {
	return &Table{
		actions: actions,
		values:  make(map[string][]float64),
	}
}

func (t *Table) row(key string) []float64 {
	r, ok := t.values[key]
	if !ok {
		r = make([]float64, t.actions)
		t.values[key] = r
	}
	return r
}

// Predict returns a copy of the per-action values for the state key.
func (t *Table) Predict(key string) []float64 {
	return append([]float64(nil), t.row(key)...)
}

// MaxValue returns the largest action value for the state key.
func (t *Table) MaxValue(key string) float64 {
	max := t.row(key)[0]
	for _, v := range t.values[key][1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Learn applies one temporal-difference update at step size alpha:
//
//	Q[s][a] += alpha * (r + gamma*maxNext*(1-done) - Q[s][a])
//
// The step size is a parameter so callers can run the online pass and a
// gentler batched replay pass against the same table.
func (t *Table) Learn(key string, action int, reward float64, nextKey string, done bool, alpha, gamma float64) {
	maxNext := 0.0
	if !done {
		maxNext = t.MaxValue(nextKey)
	}
	row := t.row(key)
	row[action] += alpha * (reward + gamma*maxNext - row[action])
}

// Size is the number of distinct state keys seen so far.
func (t *Table) Size() int { return len(t.values) }

// Actions is the per-state action count.
func (t *Table) Actions() int { return t.actions }

type tableSnapshot struct {
	Actions int
	Values  map[string][]float64
}

// Save writes the table to w.
func (t *Table) Save(w io.Writer) error {
	return gob.NewEncoder(w).Encode(tableSnapshot{Actions: t.actions, Values: t.values})
}

// Load replaces the table contents with a snapshot written by Save.
func (t *Table) Load(r io.Reader) error {
	var snap tableSnapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("value: decoding table: %w", err)
	}
	if snap.Actions != t.actions {
		return fmt.Errorf("value: table has %d actions, want %d", snap.Actions, t.actions)
	}
	t.values = snap.Values
	if t.values == nil {
		t.values = make(map[string][]float64)
	}
	return nil
}
