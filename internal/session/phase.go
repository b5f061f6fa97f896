package session

// Phase is one discrete stage of the portal automation workflow.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseStarting        Phase = "starting"
	PhaseOpeningPortal   Phase = "opening_portal"
	PhaseWaitingUser     Phase = "waiting_user"
	PhaseCheckingSession Phase = "checking_session"
	PhasePersistingState Phase = "persisting_state"
	PhaseCompleted       Phase = "completed"
	PhaseFailed          Phase = "failed"
)

func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed:
		return true
	default:
		return false
	}
}

// transitions lists the targets Update accepts from each phase. Terminal
// phases are reached through Fail/Success only, and idle through Reset, so
// neither appears as a target here. waiting_user may self-loop (MFA retries).
var transitions = map[Phase][]Phase{
	PhaseIdle:            {PhaseStarting},
	PhaseStarting:        {PhaseOpeningPortal, PhaseCheckingSession},
	PhaseOpeningPortal:   {PhaseWaitingUser, PhaseCheckingSession},
	PhaseWaitingUser:     {PhaseWaitingUser, PhaseOpeningPortal, PhaseCheckingSession},
	PhaseCheckingSession: {PhaseOpeningPortal, PhaseWaitingUser, PhasePersistingState},
	PhasePersistingState: {},
}

func canTransition(from, to Phase) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
