package behaviour

// State is a behaviour lifecycle state.
type State int

const (
	StateCreated State = iota
	StateValid
	StateReady
	StateConnected
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateValid:
		return "valid"
	case StateReady:
		return "ready"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}
