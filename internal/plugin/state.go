package plugin

// State is the lifecycle state of one installed plugin.
type State int

const (
	// StateInstalled plugins are known but contribute nothing.
	StateInstalled State = iota
	// StateActive plugins have their types and factories registered.
	StateActive
	// StateStopping plugins began deactivating but still own types that
	// live instances reference.
	StateStopping
	// StateFailed plugins failed activation in the last Start run.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Mode is the resolver-wide phase.
type Mode int

const (
	ModeNeutral Mode = iota
	ModeStarting
	ModeStopping
)

func (m Mode) String() string {
	switch m {
	case ModeStarting:
		return "starting"
	case ModeStopping:
		return "stopping"
	}
	return "neutral"
}

// TransitionResult is the outcome of one resolver pass.
type TransitionResult int

const (
	NoChange TransitionResult = iota
	Changed
)

func (r TransitionResult) String() string {
	if r == Changed {
		return "changed"
	}
	return "no_change"
}

// Transition records one plugin state change.
type Transition struct {
	Plugin string
	From   State
	To     State
	Err    error
}

// TransitionObserver is called synchronously for every transition.
type TransitionObserver func(Transition)
