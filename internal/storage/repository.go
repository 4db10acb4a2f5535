package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bollette/internal/core"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when no bill exists for the given id.
	ErrNotFound = errors.New("bill not found")
	// ErrDuplicateDate is returned when a write would leave two bills on
	// the same calendar date. The UNIQUE index on bills.date makes the
	// check-then-write atomic even under concurrent requests.
	ErrDuplicateDate = errors.New("a bill already exists for this date")
)

// SQLiteRepository is the storage gateway: the only component that reads or
// writes the bills table. It owns id assignment, timestamp bookkeeping and
// the date uniqueness constraint.
type SQLiteRepository struct {
	db *sql.DB
}

const timestampLayout = time.RFC3339

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows a single writer; one pooled connection sidesteps
	// SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const billColumns = `id, date, gas_cost_cents, electricity_delivery_cost_cents,
	electricity_generation_cost_cents, other_cost_cents, gas_therms,
	electricity_on_peak_kwh, electricity_off_peak_kwh,
	electricity_super_off_peak_kwh, created_at, updated_at`

// ListBills returns every bill ordered by date descending, ties broken by
// id descending so the order is deterministic.
func (r *SQLiteRepository) ListBills(ctx context.Context) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()
	return scanBills(rows)
}

// ListRecentBills returns the most recent bills by date, newest first.
func (r *SQLiteRepository) ListRecentBills(ctx context.Context, limit int) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills ORDER BY date DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent bills: %w", err)
	}
	defer rows.Close()
	return scanBills(rows)
}

func (r *SQLiteRepository) GetBill(ctx context.Context, id int64) (core.Bill, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE id = ?`, id)
	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, ErrNotFound
	}
	if err != nil {
		return core.Bill{}, fmt.Errorf("get bill %d: %w", id, err)
	}
	return b, nil
}

// InsertBill persists a new bill, assigning id and both timestamps.
func (r *SQLiteRepository) InsertBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	now := time.Now().UTC().Truncate(time.Second)
	ts := now.Format(timestampLayout)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO bills (
			date, gas_cost_cents, electricity_delivery_cost_cents,
			electricity_generation_cost_cents, other_cost_cents, gas_therms,
			electricity_on_peak_kwh, electricity_off_peak_kwh,
			electricity_super_off_peak_kwh, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Date.String(),
		b.GasCost.Cents,
		b.ElectricityDeliveryCost.Cents,
		b.ElectricityGenerationCost.Cents,
		b.OtherCost.Cents,
		b.GasTherms,
		b.ElectricityOnPeakKWh,
		b.ElectricityOffPeakKWh,
		b.ElectricitySuperOffPeakKWh,
		ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Bill{}, ErrDuplicateDate
		}
		return core.Bill{}, fmt.Errorf("insert bill: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Bill{}, fmt.Errorf("last insert id: %w", err)
	}

	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now

	slog.InfoContext(ctx, "Bill saved",
		"id", b.ID,
		"date", b.Date.String(),
		"total_cost_cents", b.TotalCost().Cents)

	return b, nil
}

// UpdateBill replaces every client-supplied field of an existing bill and
// refreshes updated_at. created_at is never touched. A date collision with
// a different bill surfaces as ErrDuplicateDate; the row is left unchanged.
func (r *SQLiteRepository) UpdateBill(ctx context.Context, id int64, b core.Bill) (core.Bill, error) {
	now := time.Now().UTC().Truncate(time.Second)

	res, err := r.db.ExecContext(ctx, `
		UPDATE bills SET
			date = ?,
			gas_cost_cents = ?,
			electricity_delivery_cost_cents = ?,
			electricity_generation_cost_cents = ?,
			other_cost_cents = ?,
			gas_therms = ?,
			electricity_on_peak_kwh = ?,
			electricity_off_peak_kwh = ?,
			electricity_super_off_peak_kwh = ?,
			updated_at = ?,
			sync_status = 'pending'
		WHERE id = ?`,
		b.Date.String(),
		b.GasCost.Cents,
		b.ElectricityDeliveryCost.Cents,
		b.ElectricityGenerationCost.Cents,
		b.OtherCost.Cents,
		b.GasTherms,
		b.ElectricityOnPeakKWh,
		b.ElectricityOffPeakKWh,
		b.ElectricitySuperOffPeakKWh,
		now.Format(timestampLayout),
		id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Bill{}, ErrDuplicateDate
		}
		return core.Bill{}, fmt.Errorf("update bill %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return core.Bill{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.Bill{}, ErrNotFound
	}

	return r.GetBill(ctx, id)
}

// DeleteBill removes a bill. Deleting an unknown id is an ErrNotFound, not
// a silent success; AUTOINCREMENT guarantees the id is never reused.
func (r *SQLiteRepository) DeleteBill(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bills WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete bill %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Bill deleted", "id", id)
	return nil
}

// ListPendingSync returns bills not yet mirrored to the backup spreadsheet.
func (r *SQLiteRepository) ListPendingSync(ctx context.Context, limit int) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE sync_status = 'pending' ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending sync: %w", err)
	}
	defer rows.Close()
	return scanBills(rows)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(timestampLayout)
	if _, err := r.db.ExecContext(ctx,
		`UPDATE bills SET sync_status = 'synced', synced_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("mark bill synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE bills SET sync_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark bill sync error: %w", err)
	}
	slog.WarnContext(ctx, "Bill marked with sync error", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (core.Bill, error) {
	var (
		b                 core.Bill
		dateStr, cAt, uAt string
	)
	err := row.Scan(
		&b.ID,
		&dateStr,
		&b.GasCost.Cents,
		&b.ElectricityDeliveryCost.Cents,
		&b.ElectricityGenerationCost.Cents,
		&b.OtherCost.Cents,
		&b.GasTherms,
		&b.ElectricityOnPeakKWh,
		&b.ElectricityOffPeakKWh,
		&b.ElectricitySuperOffPeakKWh,
		&cAt,
		&uAt,
	)
	if err != nil {
		return core.Bill{}, err
	}
	if b.Date, err = core.ParseDate(dateStr); err != nil {
		return core.Bill{}, fmt.Errorf("stored date %q: %w", dateStr, err)
	}
	if b.CreatedAt, err = time.Parse(timestampLayout, cAt); err != nil {
		return core.Bill{}, fmt.Errorf("stored created_at %q: %w", cAt, err)
	}
	if b.UpdatedAt, err = time.Parse(timestampLayout, uAt); err != nil {
		return core.Bill{}, fmt.Errorf("stored updated_at %q: %w", uAt, err)
	}
	return b, nil
}

func scanBills(rows *sql.Rows) ([]core.Bill, error) {
	var bills []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}
	return bills, nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
