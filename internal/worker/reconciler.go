// Package worker hosts the engine's single background job: re-driving
// document outcome syncs that failed at transition time.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/repository"
	"github.com/edrees2022/log-and-ledger-sub005/internal/workflow"
)

// Reconciler periodically scans for terminal requests whose outcome never
// reached the document store and replays the sync. The terminal request
// status is the source of truth, so replaying is always safe.
type Reconciler struct {
	requestRepo *repository.RequestRepository
	sync        *workflow.DocumentStatusSync
	logger      *zap.Logger

	interval  time.Duration
	batchSize int

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconciler creates a new reconciler
func NewReconciler(
	requestRepo *repository.RequestRepository,
	sync *workflow.DocumentStatusSync,
	interval time.Duration,
	logger *zap.Logger,
) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		requestRepo: requestRepo,
		sync:        sync,
		logger:      logger,
		interval:    interval,
		batchSize:   50,
	}
}

// Start begins the reconcile loop
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("reconciler is already running")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.isRunning = true
	r.done = make(chan struct{})

	r.logger.Info("Reconciler started",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize))

	go r.loop(ctx)
	return nil
}

// Stop stops the reconcile loop and waits for the current pass to finish
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done
	r.logger.Info("Reconciler stopped")
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce runs a single reconcile pass and returns the number of
// requests successfully re-synced
func (r *Reconciler) ReconcileOnce(ctx context.Context) int {
	unsynced, err := r.requestRepo.ListUnsynced(r.batchSize)
	if err != nil {
		r.logger.Error("Failed to list unsynced requests", zap.Error(err))
		return 0
	}
	if len(unsynced) == 0 {
		return 0
	}

	synced := 0
	for _, req := range unsynced {
		if ctx.Err() != nil {
			return synced
		}
		if err := r.sync.Sync(ctx, req); err != nil {
			r.logger.Warn("Reconcile sync failed, will retry next pass",
				zap.String("request_id", req.ID),
				zap.Error(err))
			continue
		}
		synced++
	}

	r.logger.Info("Reconcile pass completed",
		zap.Int("unsynced", len(unsynced)),
		zap.Int("synced", synced))
	return synced
}
