package transcript

// Phase is the fine-grained interaction state of a session.
type Phase string

const (
	PhaseWaitingQuestion   Phase = "waiting_question"
	PhaseWaitingPermission Phase = "waiting_permission"
	PhaseInteractable      Phase = "interactable"
	PhaseBusy              Phase = "busy"
)

// StopReasonEndTurn is the stop code an assistant reports when it has
// finished its turn and control is back with the user.
const StopReasonEndTurn = "end_turn"

// ClassifyPhase maps a reduced session to its activity phase.
//
// Classification priority, first match wins:
//  1. Pending AskUserQuestion -> waiting_question
//  2. Any other pending tool -> waiting_permission
//  3. Last stop reason end_turn with no pending tools -> interactable
//  4. Otherwise -> busy
//
// Wait reasons outrank the stop code: a session that finished a turn but
// still has an unanswered question is waiting, not interactable.
func ClassifyPhase(info Info) Phase {
	switch {
	case info.WaitReason == WaitUserQuestion:
		return PhaseWaitingQuestion
	case info.WaitReason == WaitPermission:
		return PhaseWaitingPermission
	case info.LastStopReason == StopReasonEndTurn && len(info.WaitToolNames) == 0:
		return PhaseInteractable
	default:
		return PhaseBusy
	}
}
