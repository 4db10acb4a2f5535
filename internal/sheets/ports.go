package sheets

import (
	"context"

	"bollette/internal/core"
)

// Ports for the backup spreadsheet adapter.
type (
	// BillAppender mirrors one bill to the backup sheet and returns an
	// opaque row reference.
	BillAppender interface {
		AppendBill(ctx context.Context, b core.Bill) (rowRef string, err error)
	}

	// BillRemover clears the backup row for a deleted bill. The date is
	// the lookup key since the backup carries no database ids.
	BillRemover interface {
		RemoveBillRow(ctx context.Context, date core.Date) error
	}
)
