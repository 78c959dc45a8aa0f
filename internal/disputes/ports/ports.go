// Package ports defines the interfaces the dispute engine uses to reach the
// tracking sheet, the profile service, the log warehouse and export storage.
// Implementations are wired by disputes.NewModule.
package ports

import (
	"context"

	"supplier_dispute_backend/internal/disputes/domain"
)

// SheetRow is one tracking-sheet row with the engine's columns already resolved.
type SheetRow struct {
	RowID            int64
	RowNumber        int
	Notes            string
	SupplierComments string
	Status           string
	Completion       string
	ClientReference  string
}

// SheetUpdate is the write-back for a resolved dispute.
type SheetUpdate struct {
	Status          string
	Completion      string
	SupplierComment string
	Notes           string
}

// Sheet is the tracking sheet boundary.
type Sheet interface {
	ListRows(ctx context.Context) ([]SheetRow, error)
	// UpdateRow applies update to a single row.
	UpdateRow(ctx context.Context, rowID int64, update SheetUpdate) error
	// AttachFile uploads a local file as a row attachment.
	AttachFile(ctx context.Context, rowID int64, path string) error
	Ping(ctx context.Context) error
}

// BookingSource is the profile service boundary.
type BookingSource interface {
	// SearchBookings returns every booking event for ref.
	// An unknown reference returns an empty slice, not an error.
	SearchBookings(ctx context.Context, ref string) ([]domain.BookingEvent, error)
	Ping(ctx context.Context) error
}

// LogQuery selects warehouse rows for one dispute.
type LogQuery struct {
	ClientReference string
	BookingID       string
	Limit           int
}

// LogRows is a warehouse result: the raw table for export plus mapped entries.
type LogRows struct {
	Columns   []string
	Rows      [][]string
	Entries   []domain.LogEntry
	Truncated bool
}

// LogSource is the log warehouse boundary.
type LogSource interface {
	QueryLogs(ctx context.Context, q LogQuery) (LogRows, error)
	Ping(ctx context.Context) error
}

// ArtifactWriter persists the raw rows of one dispute and returns the local path.
type ArtifactWriter interface {
	WriteExport(ctx context.Context, ref string, columns []string, rows [][]string) (string, error)
}
