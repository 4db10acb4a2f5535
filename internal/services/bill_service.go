package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bollette/internal/core"
	"bollette/internal/observability/metrics"
	"bollette/internal/storage"
)

// Error taxonomy exposed to interface adapters. Adapters translate these
// into protocol responses and never interpret storage errors directly.
var (
	ErrValidation    = errors.New("invalid input")
	ErrDuplicateDate = errors.New("a bill already exists for this date")
	ErrNotFound      = errors.New("bill not found")
)

// Store is the storage gateway surface the service depends on.
// *storage.SQLiteRepository satisfies it; tests use fakes.
type Store interface {
	ListBills(ctx context.Context) ([]core.Bill, error)
	ListRecentBills(ctx context.Context, limit int) ([]core.Bill, error)
	GetBill(ctx context.Context, id int64) (core.Bill, error)
	InsertBill(ctx context.Context, b core.Bill) (core.Bill, error)
	UpdateBill(ctx context.Context, id int64, b core.Bill) (core.Bill, error)
	DeleteBill(ctx context.Context, id int64) error
}

// EventPublisher notifies the backup pipeline about bill changes. Publishing
// is best-effort: a broker outage never fails the originating request.
type EventPublisher interface {
	PublishBillSync(ctx context.Context, id int64) error
	PublishBillDelete(ctx context.Context, id int64, date core.Date) error
}

// BillRecord is the stable result shape returned to every adapter: the
// persisted fields plus the derived aggregates, computed on read.
type BillRecord struct {
	core.Bill
	TotalCost core.Money `json:"total_cost"`
	TotalKWh  float64    `json:"total_kwh"`
}

func newBillRecord(b core.Bill) BillRecord {
	return BillRecord{Bill: b, TotalCost: b.TotalCost(), TotalKWh: b.TotalKWh()}
}

// BillService validates and normalizes input, orchestrates the storage
// gateway and decorates read results. It holds no state beyond its
// dependencies and never caches: every call round-trips to storage.
type BillService struct {
	store     Store
	publisher EventPublisher
}

func NewBillService(store Store, publisher EventPublisher) *BillService {
	return &BillService{store: store, publisher: publisher}
}

// CreateBill normalizes the input and persists a new bill. A date collision
// surfaces as ErrDuplicateDate and leaves prior state untouched.
func (s *BillService) CreateBill(ctx context.Context, in core.BillInput) (BillRecord, error) {
	start := time.Now()

	bill, err := in.Normalize()
	if err != nil {
		metrics.ObserveBillOp(metrics.OpCreate, metrics.ResultInvalid, time.Since(start))
		return BillRecord{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	saved, err := s.store.InsertBill(ctx, bill)
	if err != nil {
		metrics.ObserveBillOp(metrics.OpCreate, metrics.ResultError, time.Since(start))
		return BillRecord{}, s.translate(err, "insert bill")
	}
	metrics.ObserveBillOp(metrics.OpCreate, metrics.ResultSuccess, time.Since(start))

	s.publishSync(ctx, saved.ID)
	return newBillRecord(saved), nil
}

// UpdateBill applies the same normalization as CreateBill and replaces every
// client-supplied field of the bill. Identity (id, created_at) is preserved.
func (s *BillService) UpdateBill(ctx context.Context, id int64, in core.BillInput) (BillRecord, error) {
	start := time.Now()

	bill, err := in.Normalize()
	if err != nil {
		metrics.ObserveBillOp(metrics.OpUpdate, metrics.ResultInvalid, time.Since(start))
		return BillRecord{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	updated, err := s.store.UpdateBill(ctx, id, bill)
	if err != nil {
		metrics.ObserveBillOp(metrics.OpUpdate, metrics.ResultError, time.Since(start))
		return BillRecord{}, s.translate(err, "update bill")
	}
	metrics.ObserveBillOp(metrics.OpUpdate, metrics.ResultSuccess, time.Since(start))

	s.publishSync(ctx, updated.ID)
	return newBillRecord(updated), nil
}

func (s *BillService) GetBill(ctx context.Context, id int64) (BillRecord, error) {
	b, err := s.store.GetBill(ctx, id)
	if err != nil {
		return BillRecord{}, s.translate(err, "get bill")
	}
	return newBillRecord(b), nil
}

// ListBills returns every bill, newest date first, each decorated with its
// derived aggregates.
func (s *BillService) ListBills(ctx context.Context) ([]BillRecord, error) {
	bills, err := s.store.ListBills(ctx)
	if err != nil {
		return nil, s.translate(err, "list bills")
	}
	records := make([]BillRecord, len(bills))
	for i, b := range bills {
		records[i] = newBillRecord(b)
	}
	return records, nil
}

// ListRecentBills returns up to limit bills, newest date first.
func (s *BillService) ListRecentBills(ctx context.Context, limit int) ([]BillRecord, error) {
	bills, err := s.store.ListRecentBills(ctx, limit)
	if err != nil {
		return nil, s.translate(err, "list recent bills")
	}
	records := make([]BillRecord, len(bills))
	for i, b := range bills {
		records[i] = newBillRecord(b)
	}
	return records, nil
}

// DeleteBill removes the bill and notifies the backup pipeline. The bill is
// read first so the delete event can carry its date: by the time the worker
// handles the event the row is gone.
func (s *BillService) DeleteBill(ctx context.Context, id int64) error {
	start := time.Now()

	bill, err := s.store.GetBill(ctx, id)
	if err != nil {
		metrics.ObserveBillOp(metrics.OpDelete, metrics.ResultError, time.Since(start))
		return s.translate(err, "delete bill")
	}
	if err := s.store.DeleteBill(ctx, id); err != nil {
		metrics.ObserveBillOp(metrics.OpDelete, metrics.ResultError, time.Since(start))
		return s.translate(err, "delete bill")
	}
	metrics.ObserveBillOp(metrics.OpDelete, metrics.ResultSuccess, time.Since(start))

	if s.publisher != nil {
		if err := s.publisher.PublishBillDelete(ctx, id, bill.Date); err != nil {
			slog.ErrorContext(ctx, "Failed to publish delete event", "id", id, "error", err)
		}
	}
	return nil
}

func (s *BillService) publishSync(ctx context.Context, id int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBillSync(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync event", "id", id, "error", err)
	}
}

// translate maps gateway errors into the service taxonomy; anything else is
// a storage failure and propagates wrapped, never swallowed.
func (s *BillService) translate(err error, op string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrDuplicateDate):
		return ErrDuplicateDate
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
