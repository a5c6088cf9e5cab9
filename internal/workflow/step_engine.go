package workflow

import "github.com/edrees2022/log-and-ledger-sub005/internal/models"

// Transition is the outcome computed by the step engine for one new decision
type Transition struct {
	// Status the request should move to. StatusPending means it stays open.
	Status models.RequestStatus

	// NextStepIndex is the step the request should be waiting on after the
	// decision is applied. Unchanged unless Advanced is true.
	NextStepIndex int

	// Advanced is true when the current step's quorum was just satisfied and
	// the request moves to a later step (Status stays pending).
	Advanced bool

	// Terminal is true when Status is approved or rejected.
	Terminal bool
}

// Evaluate computes the next state of a request given its frozen step list,
// the step it is waiting on, the number of distinct approvals recorded at that
// step (including the new one, when the decision is an approval), and the new
// decision.
//
// Evaluate is a pure function and never fails on valid input: everything
// invalid (ineligible actor, duplicate vote, terminal request) is rejected by
// the action gate before this point. Rules:
//
//   - a reject terminates the request immediately, regardless of quorum
//   - an approve advances the step once approvalsAtStep reaches the step's
//     quorum; advancing past the last step approves the request
//   - comments never change state
//   - every step's count starts at zero; earlier steps' approvals never carry
//     over, even for an approver eligible on both steps
func Evaluate(steps []models.StepSnapshot, currentIndex, approvalsAtStep int, decision models.Decision) Transition {
	stay := Transition{Status: models.StatusPending, NextStepIndex: currentIndex}

	switch decision {
	case models.DecisionReject:
		return Transition{
			Status:        models.StatusRejected,
			NextStepIndex: currentIndex,
			Terminal:      true,
		}

	case models.DecisionApprove:
		if currentIndex < 0 || currentIndex >= len(steps) {
			return stay
		}
		step := steps[currentIndex]
		if approvalsAtStep < step.RequiredApprovals {
			return stay
		}
		if currentIndex == len(steps)-1 {
			return Transition{
				Status:        models.StatusApproved,
				NextStepIndex: currentIndex,
				Terminal:      true,
			}
		}
		return Transition{
			Status:        models.StatusPending,
			NextStepIndex: currentIndex + 1,
			Advanced:      true,
		}

	default:
		// comment
		return stay
	}
}
