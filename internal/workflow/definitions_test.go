package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
)

func TestCreateWorkflowValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		input *DefinitionInput
	}{
		{
			name: "no steps",
			input: &DefinitionInput{
				Name:         "Empty",
				DocumentType: models.DocumentTypeExpense,
			},
		},
		{
			name: "unknown document type",
			input: &DefinitionInput{
				Name:         "Bad type",
				DocumentType: "timesheet",
				Steps:        []DefinitionStepInput{singleUserStep(0, "alice")},
			},
		},
		{
			name: "step orders with a gap",
			input: &DefinitionInput{
				Name:         "Gappy",
				DocumentType: models.DocumentTypeExpense,
				Steps: []DefinitionStepInput{
					singleUserStep(0, "alice"),
					singleUserStep(2, "bob"),
				},
			},
		},
		{
			name: "duplicate step order",
			input: &DefinitionInput{
				Name:         "Duped",
				DocumentType: models.DocumentTypeExpense,
				Steps: []DefinitionStepInput{
					singleUserStep(0, "alice"),
					singleUserStep(0, "bob"),
				},
			},
		},
		{
			name: "zero quorum",
			input: &DefinitionInput{
				Name:         "No quorum",
				DocumentType: models.DocumentTypeExpense,
				Steps: []DefinitionStepInput{
					{StepOrder: 0, ApproverRule: models.UserRule("alice"), RequiredApprovals: 0},
				},
			},
		},
		{
			name: "unknown approver rule",
			input: &DefinitionInput{
				Name:         "Bad rule",
				DocumentType: models.DocumentTypeExpense,
				Steps: []DefinitionStepInput{
					{StepOrder: 0, ApproverRule: "department-head", RequiredApprovals: 1},
				},
			},
		},
		{
			name: "negative threshold",
			input: &DefinitionInput{
				Name:         "Negative",
				DocumentType: models.DocumentTypeExpense,
				MinAmount:    floatPtr(-10),
				Steps:        []DefinitionStepInput{singleUserStep(0, "alice")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.definitions.Create("co-1", tt.input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateWorkflowSequentialStepForcesQuorumOne(t *testing.T) {
	f := newFixture(t)

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Sequential chain",
		DocumentType: models.DocumentTypeExpense,
		Steps: []DefinitionStepInput{
			{
				StepOrder:         0,
				ApproverRule:      models.RoleRule("accountant"),
				RequiredApprovals: 3,
				ConcurrencyMode:   models.ConcurrencySequential,
			},
		},
	})

	require.Len(t, wf.Steps, 1)
	assert.Equal(t, 1, wf.Steps[0].RequiredApprovals)
	assert.Equal(t, models.ConcurrencySequential, wf.Steps[0].ConcurrencyMode)
}

func TestCreateWorkflowSecondCatchAllRejected(t *testing.T) {
	f := newFixture(t)

	f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Catch-all",
		DocumentType: models.DocumentTypeExpense,
		Steps:        []DefinitionStepInput{singleUserStep(0, "alice")},
	})

	_, err := f.definitions.Create("co-1", &DefinitionInput{
		Name:         "Another catch-all",
		DocumentType: models.DocumentTypeExpense,
		Steps:        []DefinitionStepInput{singleUserStep(0, "bob")},
	})
	assert.ErrorIs(t, err, ErrValidation)

	// A catch-all for a different document type is fine.
	_, err = f.definitions.Create("co-1", &DefinitionInput{
		Name:         "PO catch-all",
		DocumentType: models.DocumentTypePurchaseOrder,
		Steps:        []DefinitionStepInput{singleUserStep(0, "bob")},
	})
	assert.NoError(t, err)

	// So is one for a different tenant.
	_, err = f.definitions.Create("co-2", &DefinitionInput{
		Name:         "Other tenant catch-all",
		DocumentType: models.DocumentTypeExpense,
		Steps:        []DefinitionStepInput{singleUserStep(0, "bob")},
	})
	assert.NoError(t, err)
}

func TestCreateWorkflowCatchAllSlotFreedByDeactivation(t *testing.T) {
	f := newFixture(t)

	old := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Old catch-all",
		DocumentType: models.DocumentTypeExpense,
		Steps:        []DefinitionStepInput{singleUserStep(0, "alice")},
	})
	require.NoError(t, f.definitions.Deactivate(old.ID, "co-1"))

	_, err := f.definitions.Create("co-1", &DefinitionInput{
		Name:         "New catch-all",
		DocumentType: models.DocumentTypeExpense,
		Steps:        []DefinitionStepInput{singleUserStep(0, "bob")},
	})
	assert.NoError(t, err)
}

func TestGetAndListWorkflows(t *testing.T) {
	f := newFixture(t)

	wf := f.createWorkflow(t, "co-1", &DefinitionInput{
		Name:         "Expense approval",
		DocumentType: models.DocumentTypeExpense,
		Steps: []DefinitionStepInput{
			singleUserStep(0, "alice"),
			singleUserStep(1, "bob"),
		},
	})

	got, err := f.definitions.Get(wf.ID, "co-1")
	require.NoError(t, err)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, models.UserRule("alice"), got.Steps[0].ApproverRule)
	assert.Equal(t, models.UserRule("bob"), got.Steps[1].ApproverRule)

	// Tenant isolation on reads.
	_, err = f.definitions.Get(wf.ID, "co-2")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	list, err := f.definitions.List("co-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeactivateUnknownWorkflow(t *testing.T) {
	f := newFixture(t)

	err := f.definitions.Deactivate("no-such-id", "co-1")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}
