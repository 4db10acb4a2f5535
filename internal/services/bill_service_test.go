package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"bollette/internal/core"
	"bollette/internal/storage"
)

// fakeStore is an in-memory stand-in for the SQLite gateway, enforcing the
// same date-uniqueness and not-found semantics.
type fakeStore struct {
	bills  map[int64]core.Bill
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{bills: make(map[int64]core.Bill), nextID: 1}
}

func (f *fakeStore) ListBills(ctx context.Context) ([]core.Bill, error) {
	out := make([]core.Bill, 0, len(f.bills))
	for _, b := range f.bills {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeStore) ListRecentBills(ctx context.Context, limit int) ([]core.Bill, error) {
	all, _ := f.ListBills(ctx)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeStore) GetBill(ctx context.Context, id int64) (core.Bill, error) {
	b, ok := f.bills[id]
	if !ok {
		return core.Bill{}, storage.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) InsertBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	for _, existing := range f.bills {
		if existing.Date.Equal(b.Date.Time) {
			return core.Bill{}, storage.ErrDuplicateDate
		}
	}
	b.ID = f.nextID
	f.nextID++
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	f.bills[b.ID] = b
	return b, nil
}

func (f *fakeStore) UpdateBill(ctx context.Context, id int64, b core.Bill) (core.Bill, error) {
	existing, ok := f.bills[id]
	if !ok {
		return core.Bill{}, storage.ErrNotFound
	}
	for otherID, other := range f.bills {
		if otherID != id && other.Date.Equal(b.Date.Time) {
			return core.Bill{}, storage.ErrDuplicateDate
		}
	}
	b.ID = id
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	f.bills[id] = b
	return b, nil
}

func (f *fakeStore) DeleteBill(ctx context.Context, id int64) error {
	if _, ok := f.bills[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.bills, id)
	return nil
}

type recordingPublisher struct {
	synced       []int64
	deleted      []int64
	deletedDates []string
	fail         bool
}

func (p *recordingPublisher) PublishBillSync(ctx context.Context, id int64) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.synced = append(p.synced, id)
	return nil
}

func (p *recordingPublisher) PublishBillDelete(ctx context.Context, id int64, date core.Date) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.deleted = append(p.deleted, id)
	p.deletedDates = append(p.deletedDates, date.String())
	return nil
}

func TestCreateBillValidation(t *testing.T) {
	svc := NewBillService(newFakeStore(), nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input core.BillInput
	}{
		{"missing date", core.BillInput{GasCost: "10"}},
		{"malformed date", core.BillInput{Date: "01/15/2024"}},
		{"non-numeric cost", core.BillInput{Date: "2024-01-15", GasCost: "a lot"}},
		{"negative cost", core.BillInput{Date: "2024-01-15", OtherCost: "-5"}},
		{"non-numeric usage", core.BillInput{Date: "2024-01-15", GasTherms: "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBill(ctx, tt.input)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateBillNormalizationIdempotence(t *testing.T) {
	svc := NewBillService(newFakeStore(), nil)
	ctx := context.Background()

	created, err := svc.CreateBill(ctx, core.BillInput{Date: "2024-01-15"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.GetBill(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GasCost.Cents != 0 || got.OtherCost.Cents != 0 || got.GasTherms != 0 || got.TotalKWh != 0 {
		t.Errorf("omitted fields should read back as zero: %+v", got)
	}
	if got.ID != created.ID || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("read-after-write mismatch: %+v vs %+v", got, created)
	}
}

func TestCreateBillDuplicateDate(t *testing.T) {
	svc := NewBillService(newFakeStore(), nil)
	ctx := context.Background()

	if _, err := svc.CreateBill(ctx, core.BillInput{Date: "2024-01-15"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreateBill(ctx, core.BillInput{Date: "2024-01-15"})
	if !errors.Is(err, ErrDuplicateDate) {
		t.Fatalf("expected ErrDuplicateDate, got %v", err)
	}
}

func TestDerivedAggregates(t *testing.T) {
	svc := NewBillService(newFakeStore(), nil)
	ctx := context.Background()

	created, err := svc.CreateBill(ctx, core.BillInput{
		Date:                      "2024-01-15",
		GasCost:                   "45.20",
		ElectricityDeliveryCost:   "30.00",
		ElectricityGenerationCost: "25.00",
		ElectricityOnPeakKWh:      "100",
		ElectricityOffPeakKWh:     "200.5",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.TotalCost.Units() != 100.20 {
		t.Errorf("TotalCost = %v, want 100.20", created.TotalCost.Units())
	}
	if created.TotalKWh != 300.5 {
		t.Errorf("TotalKWh = %v, want 300.5", created.TotalKWh)
	}

	records, err := svc.ListBills(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].TotalCost.Cents != 10020 {
		t.Errorf("list should decorate every element: %+v", records)
	}
}

func TestListOrdering(t *testing.T) {
	svc := NewBillService(newFakeStore(), nil)
	ctx := context.Background()

	for _, d := range []string{"2024-01-15", "2024-03-01", "2024-02-10"} {
		if _, err := svc.CreateBill(ctx, core.BillInput{Date: d}); err != nil {
			t.Fatalf("create %s: %v", d, err)
		}
	}
	records, err := svc.ListBills(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"2024-03-01", "2024-02-10", "2024-01-15"}
	for i, d := range want {
		if records[i].Date.String() != d {
			t.Errorf("position %d: got %s, want %s", i, records[i].Date, d)
		}
	}
}

func TestUpdateBillErrors(t *testing.T) {
	svc := NewBillService(newFakeStore(), nil)
	ctx := context.Background()

	if _, err := svc.UpdateBill(ctx, 99, core.BillInput{Date: "2024-01-15"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id: expected ErrNotFound, got %v", err)
	}

	first, err := svc.CreateBill(ctx, core.BillInput{Date: "2024-01-15"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.CreateBill(ctx, core.BillInput{Date: "2024-02-10"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateBill(ctx, second.ID, core.BillInput{Date: first.Date.String()}); !errors.Is(err, ErrDuplicateDate) {
		t.Fatalf("date collision: expected ErrDuplicateDate, got %v", err)
	}
}

func TestDeleteBill(t *testing.T) {
	store := newFakeStore()
	pub := &recordingPublisher{}
	svc := NewBillService(store, pub)
	ctx := context.Background()

	created, err := svc.CreateBill(ctx, core.BillInput{Date: "2024-01-15"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteBill(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetBill(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteBill(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if len(pub.deleted) != 1 || pub.deleted[0] != created.ID {
		t.Errorf("delete event not published: %+v", pub.deleted)
	}
	if len(pub.deletedDates) != 1 || pub.deletedDates[0] != "2024-01-15" {
		t.Errorf("delete event should carry the bill date: %+v", pub.deletedDates)
	}
}

func TestPublisherFailureDoesNotFailRequest(t *testing.T) {
	svc := NewBillService(newFakeStore(), &recordingPublisher{fail: true})
	ctx := context.Background()

	created, err := svc.CreateBill(ctx, core.BillInput{Date: "2024-01-15"})
	if err != nil {
		t.Fatalf("create should succeed despite broker failure: %v", err)
	}
	if err := svc.DeleteBill(ctx, created.ID); err != nil {
		t.Fatalf("delete should succeed despite broker failure: %v", err)
	}
}

func TestSyncEventsPublished(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewBillService(newFakeStore(), pub)
	ctx := context.Background()

	created, err := svc.CreateBill(ctx, core.BillInput{Date: "2024-01-15"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateBill(ctx, created.ID, core.BillInput{Date: "2024-01-16"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(pub.synced) != 2 {
		t.Errorf("expected sync events for create and update, got %+v", pub.synced)
	}
}
