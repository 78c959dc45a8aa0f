package investigate

import (
	"context"
	"slices"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/internal/disputes/ports"
	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/logger"
	"supplier_dispute_backend/platform/retry"
)

// LogResult is the evidence fetched from the warehouse for one dispute.
type LogResult struct {
	Entries    []domain.LogEntry
	Failures   []domain.TransportFailure
	Truncated  bool
	ExportPath string
}

// LogRetriever queries the warehouse and exports the raw rows.
type LogRetriever struct {
	source ports.LogSource
	writer ports.ArtifactWriter
	rowCap int
	policy retry.Policy
	log    *logger.Logger
}

// NewLogRetriever builds a retriever. writer may be nil to disable exports.
func NewLogRetriever(source ports.LogSource, writer ports.ArtifactWriter, rowCap int, policy retry.Policy, log *logger.Logger) *LogRetriever {
	return &LogRetriever{source: source, writer: writer, rowCap: rowCap, policy: policy, log: log}
}

// FetchLogs returns the dispute's log entries oldest first. bookingID may be empty.
// Hitting the row cap is logged and reported, never an error. The raw rows are
// exported even when empty; an export failure is only logged.
func (r *LogRetriever) FetchLogs(ctx context.Context, ref, bookingID string) (LogResult, error) {
	failures := newFailureLog(BoundaryWarehouse, r.log)
	query := ports.LogQuery{ClientReference: ref, BookingID: bookingID, Limit: r.rowCap}

	var rows ports.LogRows
	err := retry.Do(ctx, r.policy, failures.observe(), func(ctx context.Context) error {
		got, err := r.source.QueryLogs(ctx, query)
		if err != nil {
			return err
		}
		rows = got
		return nil
	})
	if apperr.Is(err, apperr.KindNotFound) {
		err = nil
	}
	if err != nil {
		return LogResult{Failures: failures.result(false)}, err
	}

	if rows.Truncated {
		r.log.Warn("log rows truncated at cap", "client_reference", ref, "row_cap", r.rowCap)
	}

	entries := slices.Clone(rows.Entries)
	slices.SortStableFunc(entries, func(a, b domain.LogEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	result := LogResult{
		Entries:   entries,
		Failures:  failures.result(true),
		Truncated: rows.Truncated,
	}

	if r.writer != nil {
		path, werr := r.writer.WriteExport(ctx, ref, rows.Columns, rows.Rows)
		if werr != nil {
			r.log.Warn("failed to export log rows", "client_reference", ref, "error", werr)
		} else {
			result.ExportPath = path
		}
	}

	return result, nil
}
