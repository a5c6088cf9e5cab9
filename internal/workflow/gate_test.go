package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
)

func TestActSequentialChainApproves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Manager then finance",
		DocumentType: models.DocumentTypeExpense,
		Steps: []DefinitionStepInput{
			singleUserStep(0, "manager-1"),
			singleUserStep(1, "finance-1"),
		},
	})
	req := f.openRequest(t, wf, "co-1", "doc-1")

	after, err := f.gate.Act(ctx, "co-1", req.ID, "manager-1", models.DecisionApprove, "looks fine")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, after.Status)
	assert.Equal(t, 1, after.CurrentStepIndex)

	after, err = f.gate.Act(ctx, "co-1", req.ID, "finance-1", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, after.Status)
	require.NotNil(t, after.DecidedAt)
	assert.True(t, after.DocumentSynced)

	outcome, ok := f.documents.outcomeFor(models.DocumentRef{Type: models.DocumentTypeExpense, ID: "doc-1"})
	require.True(t, ok)
	assert.Equal(t, OutcomeApproved, outcome)

	// Next-step approvers and the requester got notified along the way.
	kinds := f.notifier.kinds()
	assert.Contains(t, kinds, EventStepAdvanced)
	assert.Contains(t, kinds, EventRequestApproved)
}

func TestActQuorumStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Two of three accountants",
		DocumentType: models.DocumentTypeExpense,
		Steps: []DefinitionStepInput{
			{StepOrder: 0, ApproverRule: models.RoleRule("accountant"), RequiredApprovals: 2},
		},
	})

	req, err := f.instantiator.Open(ctx, wf, "co-1",
		models.DocumentRef{Type: models.DocumentTypeExpense, ID: "doc-1"}, "requester-1",
		&DocumentAttributes{Amount: 500, Currency: "USD", OwnerID: "owner-1"})
	require.NoError(t, err)

	after, err := f.gate.Act(ctx, "co-1", req.ID, "accountant-1", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, after.Status)
	assert.Equal(t, 0, after.CurrentStepIndex)

	after, err = f.gate.Act(ctx, "co-1", req.ID, "accountant-2", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, after.Status)
}

func TestActRejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Two stage",
		DocumentType: models.DocumentTypeExpense,
		Steps: []DefinitionStepInput{
			{StepOrder: 0, ApproverRule: models.RoleRule("accountant"), RequiredApprovals: 2},
			singleUserStep(1, "finance-1"),
		},
	})
	req := f.openRequest(t, wf, "co-1", "doc-1")

	// One approval, then a rejection from the second approver: the pending
	// quorum does not save the request.
	_, err := f.gate.Act(ctx, "co-1", req.ID, "accountant-1", models.DecisionApprove, "")
	require.NoError(t, err)

	after, err := f.gate.Act(ctx, "co-1", req.ID, "accountant-2", models.DecisionReject, "over budget")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, after.Status)
	require.NotNil(t, after.DecidedAt)

	outcome, ok := f.documents.outcomeFor(models.DocumentRef{Type: models.DocumentTypeExpense, ID: "doc-1"})
	require.True(t, ok)
	assert.Equal(t, OutcomeRejected, outcome)

	// Terminal requests accept no further actions, from anyone.
	_, err = f.gate.Act(ctx, "co-1", req.ID, "finance-1", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrRequestNotActionable)
}

func TestActEligibilityChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Two stage",
		DocumentType: models.DocumentTypeExpense,
		Steps: []DefinitionStepInput{
			singleUserStep(0, "manager-1"),
			singleUserStep(1, "finance-1"),
		},
	})
	req := f.openRequest(t, wf, "co-1", "doc-1")

	// Not in any approver set.
	_, err := f.gate.Act(ctx, "co-1", req.ID, "intruder", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrNotEligibleApprover)

	// Eligible for a later step, but not the current one.
	_, err = f.gate.Act(ctx, "co-1", req.ID, "finance-1", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrNotEligibleApprover)

	// Wrong tenant sees no request at all.
	_, err = f.gate.Act(ctx, "co-2", req.ID, "manager-1", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrRequestNotActionable)

	// Unknown decision kind.
	_, err = f.gate.Act(ctx, "co-1", req.ID, "manager-1", "escalate", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestActDuplicateVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Two of three",
		DocumentType: models.DocumentTypeExpense,
		Steps: []DefinitionStepInput{
			{StepOrder: 0, ApproverRule: models.RoleRule("accountant"), RequiredApprovals: 2},
		},
	})
	req := f.openRequest(t, wf, "co-1", "doc-1")

	_, err := f.gate.Act(ctx, "co-1", req.ID, "accountant-1", models.DecisionApprove, "")
	require.NoError(t, err)

	// Same approver cannot vote twice at the same step.
	_, err = f.gate.Act(ctx, "co-1", req.ID, "accountant-1", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrDuplicateAction)

	// The quorum count is of distinct approvers, so the request is still open.
	refreshed, err := f.requestRepo.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, refreshed.Status)
}

func TestActCommentNeverAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Single step",
		DocumentType: models.DocumentTypeExpense,
		Steps:        []DefinitionStepInput{singleUserStep(0, "alice")},
	})
	req := f.openRequest(t, wf, "co-1", "doc-1")

	after, err := f.gate.Act(ctx, "co-1", req.ID, "alice", models.DecisionComment, "need receipts")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, after.Status)

	// Comments are unbounded; votes are not.
	after, err = f.gate.Act(ctx, "co-1", req.ID, "alice", models.DecisionComment, "still waiting")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, after.Status)

	actions, err := f.actionRepo.ListByRequest(req.ID)
	require.NoError(t, err)
	assert.Len(t, actions, 2)

	// A comment does not consume the commenter's vote.
	after, err = f.gate.Act(ctx, "co-1", req.ID, "alice", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, after.Status)
}

func TestActApprovalsDoNotCarryAcrossSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Alice is eligible on both steps; her step-0 approval must not count
	// toward step 1.
	f.instantiator = NewInstantiator(f.db, f.requestRepo, &mockDirectory{
		resolveFunc: func(ctx context.Context, rule models.ApproverRule, companyID, ownerID string) ([]string, error) {
			return []string{"alice", "bob"}, nil
		},
	}, f.audit, f.notifier, zapNop())

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Same approvers twice",
		DocumentType: models.DocumentTypeExpense,
		Steps: []DefinitionStepInput{
			{StepOrder: 0, ApproverRule: models.RoleRule("reviewer"), RequiredApprovals: 1},
			{StepOrder: 1, ApproverRule: models.RoleRule("reviewer"), RequiredApprovals: 1},
		},
	})
	req := f.openRequest(t, wf, "co-1", "doc-1")

	after, err := f.gate.Act(ctx, "co-1", req.ID, "alice", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, 1, after.CurrentStepIndex)
	assert.Equal(t, models.StatusPending, after.Status)

	// Alice may vote again at the new step; only then is the request approved.
	after, err = f.gate.Act(ctx, "co-1", req.ID, "alice", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, after.Status)
}

func TestCancelPendingRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Single step",
		DocumentType: models.DocumentTypeExpense,
		Steps:        []DefinitionStepInput{singleUserStep(0, "alice")},
	})
	req := f.openRequest(t, wf, "co-1", "doc-1")

	after, err := f.gate.Cancel(ctx, "co-1", req.ID, "requester-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, after.Status)

	outcome, ok := f.documents.outcomeFor(models.DocumentRef{Type: models.DocumentTypeExpense, ID: "doc-1"})
	require.True(t, ok)
	assert.Equal(t, OutcomeCancelled, outcome)

	// Cancelling again is an explicit error, not a silent no-op.
	_, err = f.gate.Cancel(ctx, "co-1", req.ID, "requester-1")
	assert.ErrorIs(t, err, ErrRequestNotActionable)

	// And the terminal request accepts no votes.
	_, err = f.gate.Act(ctx, "co-1", req.ID, "alice", models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrRequestNotActionable)
}

// Two approvers race the quorum-completing vote on a 2-of-3 step of a
// two-step workflow. Both votes must persist and the step must advance
// exactly once.
func TestActConcurrentQuorumVotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Two of three, then finance",
		DocumentType: models.DocumentTypeExpense,
		Steps: []DefinitionStepInput{
			{StepOrder: 0, ApproverRule: models.RoleRule("accountant"), RequiredApprovals: 2},
			singleUserStep(1, "finance-1"),
		},
	})

	f.instantiator = NewInstantiator(f.db, f.requestRepo, &mockDirectory{
		resolveFunc: func(ctx context.Context, rule models.ApproverRule, companyID, ownerID string) ([]string, error) {
			if rule.UserID() != "" {
				return []string{rule.UserID()}, nil
			}
			return []string{"acc-1", "acc-2", "acc-3"}, nil
		},
	}, f.audit, f.notifier, zapNop())
	req := f.openRequest(t, wf, "co-1", "doc-1")

	_, err := f.gate.Act(ctx, "co-1", req.ID, "acc-1", models.DecisionApprove, "")
	require.NoError(t, err)

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, actor := range []string{"acc-2", "acc-3"} {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			<-start
			_, err := f.gate.Act(ctx, "co-1", req.ID, actor, models.DecisionApprove, "")
			errs <- err
		}(actor)
	}
	close(start)
	wg.Wait()
	close(errs)

	// A racer that truly overlapped has its vote recorded and loses only the
	// compare-and-set; one that arrived after the advance committed is turned
	// away as ineligible for the new step. Either way no vote is half-applied.
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrNotEligibleApprover)
		}
	}

	refreshed, err := f.requestRepo.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, refreshed.Status)
	assert.Equal(t, 1, refreshed.CurrentStepIndex)

	actions, err := f.actionRepo.ListByRequest(req.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(actions), 2)
	assert.LessOrEqual(t, len(actions), 3)
	for _, a := range actions {
		assert.Equal(t, 0, a.StepIndex)
		assert.Equal(t, models.DecisionApprove, a.Decision)
	}
}
