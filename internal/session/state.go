package session

// State is the lifecycle position of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateRestoring
	StateReady
	StateSubmitting
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRestoring:
		return "restoring"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
