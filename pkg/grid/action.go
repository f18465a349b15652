package grid

// Action is one of the five moves an agent can take in a single step.
// Integer values are stable: they index per-action value vectors and
// break argmax ties.
type Action int

const (
	ActionUp Action = iota
	ActionDown
	ActionLeft
	ActionRight
	ActionStay
)

// NumActions is the size of the action space.
const NumActions = 5

// Delta returns the grid offset of the action. The origin is the top-left
// corner, so ActionUp decreases y.
func (a Action) Delta() (dx, dy int) {
	switch a {
	case ActionUp:
		return 0, -1
	case ActionDown:
		return 0, 1
	case ActionLeft:
		return -1, 0
	case ActionRight:
		return 1, 0
	default:
		return 0, 0
	}
}

func (a Action) String() string {
	switch a {
	case ActionUp:
		return "up"
	case ActionDown:
		return "down"
	case ActionLeft:
		return "left"
	case ActionRight:
		return "right"
	case ActionStay:
		return "stay"
	}
	return "unknown"
}
