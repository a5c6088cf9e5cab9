package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
)

func steps(quorums ...int) []models.StepSnapshot {
	out := make([]models.StepSnapshot, len(quorums))
	for i, q := range quorums {
		out[i] = models.StepSnapshot{
			StepOrder:         i,
			ApproverRule:      models.RoleRule("approver"),
			RequiredApprovals: q,
			ConcurrencyMode:   models.ConcurrencyParallel,
			ApproverIDs:       []string{"a", "b", "c"},
		}
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name            string
		steps           []models.StepSnapshot
		currentIndex    int
		approvalsAtStep int
		decision        models.Decision
		want            Transition
	}{
		{
			name:            "reject terminates immediately",
			steps:           steps(1, 1),
			currentIndex:    0,
			approvalsAtStep: 0,
			decision:        models.DecisionReject,
			want:            Transition{Status: models.StatusRejected, NextStepIndex: 0, Terminal: true},
		},
		{
			name:            "reject on later step still terminates",
			steps:           steps(1, 2),
			currentIndex:    1,
			approvalsAtStep: 1,
			decision:        models.DecisionReject,
			want:            Transition{Status: models.StatusRejected, NextStepIndex: 1, Terminal: true},
		},
		{
			name:            "approve below quorum stays",
			steps:           steps(2),
			currentIndex:    0,
			approvalsAtStep: 1,
			decision:        models.DecisionApprove,
			want:            Transition{Status: models.StatusPending, NextStepIndex: 0},
		},
		{
			name:            "approve reaching quorum on middle step advances",
			steps:           steps(2, 1),
			currentIndex:    0,
			approvalsAtStep: 2,
			decision:        models.DecisionApprove,
			want:            Transition{Status: models.StatusPending, NextStepIndex: 1, Advanced: true},
		},
		{
			name:            "approve reaching quorum on last step approves",
			steps:           steps(1, 2),
			currentIndex:    1,
			approvalsAtStep: 2,
			decision:        models.DecisionApprove,
			want:            Transition{Status: models.StatusApproved, NextStepIndex: 1, Terminal: true},
		},
		{
			name:            "single step single quorum approves outright",
			steps:           steps(1),
			currentIndex:    0,
			approvalsAtStep: 1,
			decision:        models.DecisionApprove,
			want:            Transition{Status: models.StatusApproved, NextStepIndex: 0, Terminal: true},
		},
		{
			name:            "comment never changes state",
			steps:           steps(1),
			currentIndex:    0,
			approvalsAtStep: 0,
			decision:        models.DecisionComment,
			want:            Transition{Status: models.StatusPending, NextStepIndex: 0},
		},
		{
			name:            "approve with out-of-range index stays pending",
			steps:           steps(1),
			currentIndex:    5,
			approvalsAtStep: 1,
			decision:        models.DecisionApprove,
			want:            Transition{Status: models.StatusPending, NextStepIndex: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.steps, tt.currentIndex, tt.approvalsAtStep, tt.decision)
			assert.Equal(t, tt.want, got)
		})
	}
}
