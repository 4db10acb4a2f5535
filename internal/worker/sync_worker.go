package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bollette/internal/amqp"
	"bollette/internal/core"
	"bollette/internal/observability/metrics"
	"bollette/internal/sheets"
)

// SyncStore is the slice of the storage gateway the worker needs for
// sync bookkeeping.
type SyncStore interface {
	GetBill(ctx context.Context, id int64) (core.Bill, error)
	ListPendingSync(ctx context.Context, limit int) ([]core.Bill, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// SyncWorker mirrors bill changes into the Google Sheets backup. It consumes
// events from the broker and periodically scans for bills the broker missed.
type SyncWorker struct {
	store     SyncStore
	appender  sheets.BillAppender
	remover   sheets.BillRemover
	batchSize int
}

func NewSyncWorker(store SyncStore, appender sheets.BillAppender, remover sheets.BillRemover, batchSize int) *SyncWorker {
	return &SyncWorker{
		store:     store,
		appender:  appender,
		remover:   remover,
		batchSize: batchSize,
	}
}

// HandleMessage processes a single bill event from the broker.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.BillEventMessage) error {
	slog.InfoContext(ctx, "Processing bill event", "kind", msg.Kind, "id", msg.ID)

	switch msg.Kind {
	case amqp.KindSync:
		return w.syncBill(ctx, msg.ID)
	case amqp.KindDelete:
		return w.removeBill(ctx, msg.ID, msg.Date)
	default:
		// Unknown kinds are dropped rather than requeued: redelivery
		// would never make them processable.
		slog.WarnContext(ctx, "Dropping bill event of unknown kind", "kind", msg.Kind, "id", msg.ID)
		return nil
	}
}

// ProcessPendingBills pushes any bills still marked pending to the backup.
// This is the safety net for lost broker messages and worker downtime.
func (w *SyncWorker) ProcessPendingBills(ctx context.Context) error {
	pending, err := w.store.ListPendingSync(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending bills: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending bills", "count", len(pending))

	for _, bill := range pending {
		if err := w.appendToBackup(ctx, bill); err != nil {
			slog.ErrorContext(ctx, "Failed to sync pending bill", "id", bill.ID, "error", err)
		}
	}
	return nil
}

// StartupSyncCheck drains the pending backlog once at worker startup, with a
// larger batch than the periodic scan.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.store.ListPendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending bills at startup: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending bills found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending bills on startup, processing...", "count", len(pending))

	synced := 0
	failed := 0
	for _, bill := range pending {
		if err := w.appendToBackup(ctx, bill); err != nil {
			slog.ErrorContext(ctx, "Failed to sync bill during startup", "id", bill.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *SyncWorker) syncBill(ctx context.Context, id int64) error {
	bill, err := w.store.GetBill(ctx, id)
	if err != nil {
		// The bill may have been deleted between publish and consume.
		slog.WarnContext(ctx, "Bill no longer in storage, skipping sync", "id", id, "error", err)
		return nil
	}
	return w.appendToBackup(ctx, bill)
}

func (w *SyncWorker) appendToBackup(ctx context.Context, bill core.Bill) error {
	if w.appender == nil {
		slog.WarnContext(ctx, "No backup appender configured, skipping sync", "id", bill.ID)
		return nil
	}

	ref, err := w.appender.AppendBill(ctx, bill)
	if err != nil {
		metrics.ObserveSync(metrics.ResultError)
		if markErr := w.store.MarkSyncError(ctx, bill.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", bill.ID, "error", markErr)
		}
		return fmt.Errorf("append bill to backup: %w", err)
	}

	if err := w.store.MarkSynced(ctx, bill.ID); err != nil {
		// The append itself succeeded, so keep going.
		slog.ErrorContext(ctx, "Failed to mark bill as synced", "id", bill.ID, "error", err)
	}
	metrics.ObserveSync(metrics.ResultSuccess)

	slog.InfoContext(ctx, "Bill synced to backup",
		"id", bill.ID,
		"date", bill.Date,
		"backup_ref", ref)
	return nil
}

func (w *SyncWorker) removeBill(ctx context.Context, id int64, date string) error {
	if w.remover == nil {
		slog.WarnContext(ctx, "No backup remover configured, skipping removal", "id", id)
		return nil
	}
	if date == "" {
		slog.WarnContext(ctx, "Delete event without a date, skipping removal", "id", id)
		return nil
	}

	parsed, err := core.ParseDate(date)
	if err != nil {
		slog.WarnContext(ctx, "Delete event with malformed date, skipping removal",
			"id", id, "date", date, "error", err)
		return nil
	}

	if err := w.remover.RemoveBillRow(ctx, parsed); err != nil {
		metrics.ObserveSync(metrics.ResultError)
		return fmt.Errorf("remove bill row from backup: %w", err)
	}
	metrics.ObserveSync(metrics.ResultSuccess)

	slog.InfoContext(ctx, "Bill removed from backup", "id", id, "date", date)
	return nil
}
