package worker

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/documents"
	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"github.com/edrees2022/log-and-ledger-sub005/internal/repository"
	"github.com/edrees2022/log-and-ledger-sub005/internal/workflow"
	"github.com/edrees2022/log-and-ledger-sub005/migrations"
	"github.com/edrees2022/log-and-ledger-sub005/pkg/database"
)

func newReconcilerFixture(t *testing.T) (*Reconciler, *repository.RequestRepository, *documents.SQLStore, *database.DB) {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations(migrations.FS))

	requestRepo := repository.NewRequestRepository(db.DB, zap.NewNop())
	store := documents.NewSQLStore(db.DB, zap.NewNop())
	statusSync := workflow.NewDocumentStatusSync(store, requestRepo, zap.NewNop())

	return NewReconciler(requestRepo, statusSync, time.Minute, zap.NewNop()), requestRepo, store, db
}

func seedDecidedRequest(t *testing.T, db *database.DB, repo *repository.RequestRepository, id, docID string, status models.RequestStatus) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO documents (document_type, id, company_id, status, amount, owner_id)
		 VALUES ('expense', ?, 'co-1', 'submitted', 100, 'emp-1')`, docID)
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT OR IGNORE INTO approval_workflows (id, company_id, name, document_type)
		 VALUES ('wf-1', 'co-1', 'Seeded', 'expense')`)
	require.NoError(t, err)

	req := &models.ApprovalRequest{
		ID:           id,
		CompanyID:    "co-1",
		DocumentType: models.DocumentTypeExpense,
		DocumentID:   docID,
		WorkflowID:   "wf-1",
		Steps: []models.StepSnapshot{
			{StepOrder: 0, ApproverRule: models.UserRule("alice"), RequiredApprovals: 1, ApproverIDs: []string{"alice"}},
		},
		Status: models.StatusPending,
	}
	require.NoError(t, db.WithTransaction(func(tx *sql.Tx) error {
		if err := repo.Create(tx, req); err != nil {
			return err
		}
		_, err := repo.MarkTerminal(tx, id, status, 0, time.Now().UTC())
		return err
	}))
}

func TestReconcileOnceSyncsDecidedRequests(t *testing.T) {
	r, repo, store, db := newReconcilerFixture(t)
	ctx := context.Background()

	seedDecidedRequest(t, db, repo, "req-1", "doc-1", models.StatusApproved)
	seedDecidedRequest(t, db, repo, "req-2", "doc-2", models.StatusRejected)

	synced := r.ReconcileOnce(ctx)
	assert.Equal(t, 2, synced)

	status, err := store.GetStatus(ctx, "co-1", models.DocumentRef{Type: models.DocumentTypeExpense, ID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, "approved", status)

	status, err = store.GetStatus(ctx, "co-1", models.DocumentRef{Type: models.DocumentTypeExpense, ID: "doc-2"})
	require.NoError(t, err)
	assert.Equal(t, "rejected", status)

	// Nothing left to do on the next pass.
	assert.Equal(t, 0, r.ReconcileOnce(ctx))
}

func TestReconcileSkipsFailingAndContinues(t *testing.T) {
	r, repo, store, db := newReconcilerFixture(t)
	ctx := context.Background()

	seedDecidedRequest(t, db, repo, "req-1", "doc-1", models.StatusApproved)

	// A request whose document is gone keeps failing but does not block others.
	_, err := db.Exec(`DELETE FROM documents WHERE id = 'doc-1'`)
	require.NoError(t, err)
	seedDecidedRequest(t, db, repo, "req-2", "doc-2", models.StatusApproved)

	synced := r.ReconcileOnce(ctx)
	assert.Equal(t, 1, synced)

	status, err := store.GetStatus(ctx, "co-1", models.DocumentRef{Type: models.DocumentTypeExpense, ID: "doc-2"})
	require.NoError(t, err)
	assert.Equal(t, "approved", status)

	unsynced, err := repo.ListUnsynced(10)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, "req-1", unsynced[0].ID)
}

func TestReconcilerStartStop(t *testing.T) {
	r, _, _, _ := newReconcilerFixture(t)

	require.NoError(t, r.Start(context.Background()))
	// Double start is rejected.
	assert.Error(t, r.Start(context.Background()))

	r.Stop()
	// Stop is idempotent.
	r.Stop()
}
