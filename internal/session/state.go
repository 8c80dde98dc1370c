package session

// State names one position in the upload lifecycle. The machine starts in
// StateIdle; StateReady, StateErrored, and StateCancelled are terminal until a
// fresh selection restarts it.
type State string

const (
	StateIdle           State = "idle"
	StateSelected       State = "selected"
	StateRequestingSlot State = "requesting_slot"
	StateTransferring   State = "transferring"
	StateProcessing     State = "processing"
	StateReady          State = "ready"
	StateErrored        State = "errored"
	StateCancelled      State = "cancelled"
)

// Terminal reports whether the machine must be restarted before another
// upload can begin.
func (s State) Terminal() bool {
	switch s {
	case StateReady, StateErrored, StateCancelled:
		return true
	default:
		return false
	}
}

// InFlight reports whether an upload is between selection and resolution.
// Submission controls stay disabled for the whole in-flight span.
func (s State) InFlight() bool {
	switch s {
	case StateSelected, StateRequestingSlot, StateTransferring, StateProcessing:
		return true
	default:
		return false
	}
}

func canTransition(from, to State) bool {
	// Cancellation and failure are reachable from every non-terminal state.
	if !from.Terminal() && (to == StateCancelled || to == StateErrored) {
		return true
	}
	switch from {
	case StateIdle:
		return to == StateSelected
	case StateSelected:
		return to == StateRequestingSlot
	case StateRequestingSlot:
		return to == StateTransferring
	case StateTransferring:
		return to == StateProcessing
	case StateProcessing:
		return to == StateReady
	default:
		return false
	}
}
