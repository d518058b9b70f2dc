package loader

// State is the lifecycle state of a module record.
type State int

// Module states, in lifecycle order.
const (
	// StateDiscovered - a candidate file was found but not yet mapped.
	StateDiscovered State = iota

	// StateLoaded - the image is mapped into the process.
	StateLoaded

	// StateRegistered - the registration entry point has run.
	StateRegistered

	// StateInitialized - the post-load hook has run (or there is none).
	StateInitialized

	// StateUnloaded - the record has been removed. Terminal.
	StateUnloaded
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateLoaded:
		return "loaded"
	case StateRegistered:
		return "registered"
	case StateInitialized:
		return "initialized"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// IsResident reports whether a module in this state still has an image
// mapped and classes registered.
func (s State) IsResident() bool {
	return s == StateRegistered || s == StateInitialized
}
