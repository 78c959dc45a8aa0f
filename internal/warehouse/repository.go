// Package warehouse reads supplier call logs from the log warehouse.
package warehouse

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/internal/disputes/ports"
	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed default_query.sql
var defaultQuery string

const opQueryLogs = "warehouse.QueryLogs"

// Repository runs the log query template against the warehouse.
type Repository struct {
	pool  *pgxpool.Pool
	query string
	log   *logger.Logger
}

// New creates a repository. An empty queryFile uses the built-in query.
func New(pool *pgxpool.Pool, queryFile string, log *logger.Logger) (*Repository, error) {
	query := defaultQuery
	if queryFile != "" {
		data, err := os.ReadFile(queryFile)
		if err != nil {
			return nil, fmt.Errorf("read warehouse query: %w", err)
		}
		query = string(data)
	}
	if !strings.Contains(query, "@client_reference_id") {
		return nil, errors.New("warehouse query must reference @client_reference_id")
	}
	return &Repository{pool: pool, query: query, log: log}, nil
}

// QueryLogs runs the template for one dispute. One extra row is requested to
// detect truncation; it is never returned.
func (r *Repository) QueryLogs(ctx context.Context, q ports.LogQuery) (ports.LogRows, error) {
	args := pgx.NamedArgs{
		"client_reference_id": q.ClientReference,
		"booking_id":          nullable(q.BookingID),
		"row_limit":           q.Limit + 1,
	}

	rows, err := r.pool.Query(ctx, r.query, args)
	if err != nil {
		return ports.LogRows{}, classify(opQueryLogs, err)
	}
	defer rows.Close()

	columns := columnNames(rows.FieldDescriptions())
	result := ports.LogRows{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return ports.LogRows{}, classify(opQueryLogs, err)
		}
		if q.Limit > 0 && len(result.Rows) == q.Limit {
			result.Truncated = true
			break
		}
		raw := stringify(values)
		result.Rows = append(result.Rows, raw)
		result.Entries = append(result.Entries, MapEntry(columns, raw, values))
	}
	if err := rows.Err(); err != nil {
		return ports.LogRows{}, classify(opQueryLogs, err)
	}

	r.log.Debug("warehouse logs fetched", "client_reference", q.ClientReference, "rows", len(result.Rows), "truncated", result.Truncated)
	return result, nil
}

// Ping runs a trivial query.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return classify("warehouse.Ping", err)
	}
	return nil
}

// MapEntry turns one result row into a LogEntry using well-known column names.
// detailed_status wins over status as the error code.
func MapEntry(columns, raw []string, values []any) domain.LogEntry {
	idx := make(map[string]int, len(columns))
	for i, name := range columns {
		idx[strings.ToLower(name)] = i
	}
	get := func(name string) string {
		if i, ok := idx[name]; ok && i < len(raw) {
			return raw[i]
		}
		return ""
	}

	entry := domain.LogEntry{
		ErrorCode:       get("detailed_status"),
		Message:         get("reason"),
		Source:          get("supplier"),
		ClientReference: get("client_reference_id"),
	}
	if entry.ErrorCode == "" {
		entry.ErrorCode = get("status")
	}
	if i, ok := idx["created_at"]; ok && i < len(values) {
		entry.Timestamp = toTime(values[i], raw[i])
	}
	return entry
}

func columnNames(fields []pgconn.FieldDescription) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func stringify(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = formatValue(v)
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func toTime(v any, raw string) time.Time {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// classify maps driver errors onto the connectivity taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return apperr.Timeout("warehouse query timed out", err).WithOp(op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "28"):
			return apperr.Wrap(apperr.KindUnauthorized, "warehouse rejected credentials", err).WithOp(op)
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "53300":
			return apperr.Connectivity("warehouse connection failed", err).WithOp(op)
		case pgErr.Code == "57014":
			return apperr.Timeout("warehouse query cancelled", err).WithOp(op)
		case strings.HasPrefix(pgErr.Code, "42"), strings.HasPrefix(pgErr.Code, "22"):
			return apperr.Wrap(apperr.KindValidation, "warehouse query rejected", err).WithOp(op)
		default:
			return apperr.Wrap(apperr.KindInternal, "warehouse query failed", err).WithOp(op)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperr.Timeout("warehouse query timed out", err).WithOp(op)
		}
		return apperr.Connectivity("warehouse connection failed", err).WithOp(op)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return apperr.Connectivity("warehouse connection failed", err).WithOp(op)
	}
	return apperr.Wrap(apperr.KindInternal, "warehouse query failed", err).WithOp(op)
}
