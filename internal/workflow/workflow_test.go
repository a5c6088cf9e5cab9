package workflow

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"github.com/edrees2022/log-and-ledger-sub005/internal/repository"
	"github.com/edrees2022/log-and-ledger-sub005/migrations"
	"github.com/edrees2022/log-and-ledger-sub005/pkg/database"
)

func zapNop() *zap.Logger { return zap.NewNop() }

// newTestDB opens a migrated throwaway database
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations(migrations.FS))

	return db
}

// Mock collaborators

type mockDirectory struct {
	resolveFunc func(ctx context.Context, rule models.ApproverRule, companyID, ownerID string) ([]string, error)
}

func (m *mockDirectory) ResolveApprovers(ctx context.Context, rule models.ApproverRule, companyID, ownerID string) ([]string, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, rule, companyID, ownerID)
	}
	// Default mapping: user rules resolve to themselves, role rules to two
	// holders, manager to the owner's manager.
	if id := rule.UserID(); id != "" {
		return []string{id}, nil
	}
	if role := rule.Role(); role != "" {
		return []string{role + "-1", role + "-2"}, nil
	}
	return []string{"mgr-" + ownerID}, nil
}

type mockDocumentStore struct {
	mu       sync.Mutex
	attrs    map[string]*DocumentAttributes
	outcomes map[string]Outcome
	setErr   error
}

func newMockDocumentStore() *mockDocumentStore {
	return &mockDocumentStore{
		attrs:    make(map[string]*DocumentAttributes),
		outcomes: make(map[string]Outcome),
	}
}

func (m *mockDocumentStore) GetDocumentAttributes(ctx context.Context, companyID string, ref models.DocumentRef) (*DocumentAttributes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attrs, ok := m.attrs[ref.String()]; ok {
		return attrs, nil
	}
	return &DocumentAttributes{Amount: 100, Currency: "USD", OwnerID: "owner-1"}, nil
}

func (m *mockDocumentStore) SetApprovalOutcome(ctx context.Context, companyID string, ref models.DocumentRef, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.outcomes[ref.String()] = outcome
	return nil
}

func (m *mockDocumentStore) outcomeFor(ref models.DocumentRef) (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome, ok := m.outcomes[ref.String()]
	return outcome, ok
}

type mockAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (m *mockAudit) Record(ctx context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

type mockNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	UserIDs   []string
	RequestID string
	Kind      EventKind
}

func (m *mockNotifier) Notify(ctx context.Context, userIDs []string, requestID string, kind EventKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, notifyCall{UserIDs: userIDs, RequestID: requestID, Kind: kind})
	return nil
}

func (m *mockNotifier) kinds() []EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventKind, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.Kind)
	}
	return out
}

type identityConverter struct{}

func (identityConverter) ToBase(amount float64, currency string) (float64, error) {
	return amount, nil
}

// fixture bundles one fully wired engine over a real database
type fixture struct {
	db           *database.DB
	workflowRepo *repository.WorkflowRepository
	requestRepo  *repository.RequestRepository
	actionRepo   *repository.ActionRepository
	documents    *mockDocumentStore
	audit        *mockAudit
	notifier     *mockNotifier
	selector     *Selector
	instantiator *Instantiator
	gate         *Gate
	sync         *DocumentStatusSync
	definitions  *DefinitionService
	engine       *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	logger := zap.NewNop()

	f := &fixture{
		db:           db,
		workflowRepo: repository.NewWorkflowRepository(db.DB, logger),
		requestRepo:  repository.NewRequestRepository(db.DB, logger),
		actionRepo:   repository.NewActionRepository(db.DB, logger),
		documents:    newMockDocumentStore(),
		audit:        &mockAudit{},
		notifier:     &mockNotifier{},
	}
	f.sync = NewDocumentStatusSync(f.documents, f.requestRepo, logger)
	f.selector = NewSelector(f.workflowRepo, identityConverter{}, logger)
	f.instantiator = NewInstantiator(db, f.requestRepo, &mockDirectory{}, f.audit, f.notifier, logger)
	f.gate = NewGate(db, f.requestRepo, f.actionRepo, f.sync, f.audit, f.notifier, logger)
	f.definitions = NewDefinitionService(db, f.workflowRepo, logger)
	f.engine = NewEngine(f.selector, f.instantiator, f.gate, f.documents, f.requestRepo, f.actionRepo, logger)
	return f
}

// createWorkflow persists a definition through the definition service
func (f *fixture) createWorkflow(t *testing.T, companyID string, input *DefinitionInput) *models.ApprovalWorkflow {
	t.Helper()
	wf, err := f.definitions.Create(companyID, input)
	require.NoError(t, err)
	return wf
}

// openRequest instantiates a request for the given workflow and document
func (f *fixture) openRequest(t *testing.T, wf *models.ApprovalWorkflow, companyID, docID string) *models.ApprovalRequest {
	t.Helper()
	req, err := f.instantiator.Open(context.Background(), wf, companyID,
		models.DocumentRef{Type: wf.DocumentType, ID: docID}, "requester-1",
		&DocumentAttributes{Amount: 500, Currency: "USD", OwnerID: "owner-1"})
	require.NoError(t, err)
	require.NotNil(t, req)
	return req
}

func singleUserStep(order int, userID string) DefinitionStepInput {
	return DefinitionStepInput{
		StepOrder:         order,
		ApproverRule:      models.UserRule(userID),
		RequiredApprovals: 1,
	}
}
