package orchestrator

// State values reported by EMR. They are compared as plain strings since the
// client passes them through without validation.
const (
	StateStarting             = "STARTING"
	StateBootstrapping        = "BOOTSTRAPPING"
	StateRunning              = "RUNNING"
	StateWaiting              = "WAITING"
	StateTerminating          = "TERMINATING"
	StateTerminated           = "TERMINATED"
	StateTerminatedWithErrors = "TERMINATED_WITH_ERRORS"
)

// IsActive reports whether a cluster in state is up or coming up.
func IsActive(state string) bool {
	switch state {
	case StateStarting, StateBootstrapping, StateRunning, StateWaiting:
		return true
	}
	return false
}

// IsTerminal reports whether state is final.
func IsTerminal(state string) bool {
	return state == StateTerminated || state == StateTerminatedWithErrors
}

// DisplayState maps a raw state to the label shown to operators.
func DisplayState(state string) string {
	switch state {
	case "":
		return "UNKNOWN"
	case StateTerminatedWithErrors:
		return "FAILED"
	}
	return state
}
