package player

// Action is the outcome of a recovery transition.
type Action int

const (
	// ActionGiveUp ends the session with a terminal failure
	ActionGiveUp Action = iota
	// ActionRetry re-resolves the stream URL and reopens media at the last position
	ActionRetry
	// ActionRepair asks the media host to repair its decoder in place
	ActionRepair
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionRepair:
		return "repair"
	default:
		return "give_up"
	}
}

// RecoveryState is the input and output of a network recovery decision.
type RecoveryState struct {
	Attempts    int
	MaxAttempts int
	HasTrack    bool
}

// OnNetworkFatal counts the failure first, then gives up once the count
// exceeds the bound or there is nothing left to recover.
func OnNetworkFatal(s RecoveryState) (RecoveryState, Action) {
	s.Attempts++
	if s.Attempts > s.MaxAttempts || !s.HasTrack {
		return s, ActionGiveUp
	}
	return s, ActionRetry
}

// maxMediaRepairs is the number of in-place decoder repairs per session
const maxMediaRepairs = 1

// OnMediaFatal allows one in-place repair per session.
func OnMediaFatal(repairs int) (int, Action) {
	if repairs >= maxMediaRepairs {
		return repairs, ActionGiveUp
	}
	return repairs + 1, ActionRepair
}
