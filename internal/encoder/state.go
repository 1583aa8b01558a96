package encoder

// State is the state of an encoder.
type State int

// states.
const (
	StateIdle State = iota
	StatePreparing
	StatePrepared
	StateCapturing
	StatePaused
	StateDraining
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StatePrepared:
		return "prepared"
	case StateCapturing:
		return "capturing"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}
