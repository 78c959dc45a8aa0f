// Package exports writes the raw warehouse rows of each dispute to a CSV file
// that is later attached to the sheet row, and optionally archives it.
package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"supplier_dispute_backend/internal/adapters/storage"
	"supplier_dispute_backend/platform/logger"
)

const timestampLayout = "20060102_150405"

var unsafeRef = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Writer implements ports.ArtifactWriter.
type Writer struct {
	dir    string
	store  storage.ObjectStore
	bucket string
	log    *logger.Logger
	now    func() time.Time
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, log *logger.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithArchive mirrors every export into bucket under disputes/<ref>/.
func (w *Writer) WithArchive(store storage.ObjectStore, bucket string) *Writer {
	w.store = store
	w.bucket = bucket
	return w
}

// FileName returns the export name for ref at t.
func FileName(ref string, t time.Time) string {
	return fmt.Sprintf("booking_logs_%s_%s.csv", SafeReference(ref), t.Format(timestampLayout))
}

// SafeReference strips characters that do not belong in a file name.
func SafeReference(ref string) string {
	safe := unsafeRef.ReplaceAllString(ref, "_")
	if safe == "" || safe == "." || safe == ".." {
		return "unknown"
	}
	return safe
}

// WriteExport writes columns and rows to a new CSV file and returns its path.
// Archive failures are logged and do not affect the local file.
func (w *Writer) WriteExport(ctx context.Context, ref string, columns []string, rows [][]string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if len(columns) > 0 {
		if err := cw.Write(columns); err != nil {
			return "", fmt.Errorf("write export header: %w", err)
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write export rows: %w", err)
	}

	name := FileName(ref, w.now())
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	w.log.Info("saved booking logs", "client_reference", ref, "path", path, "rows", len(rows))

	if w.store != nil {
		key, err := w.store.UploadFile(ctx, w.bucket, "disputes/"+SafeReference(ref), name, "text/csv", bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		if err != nil {
			w.log.Warn("failed to archive booking logs", "client_reference", ref, "error", err)
		} else {
			w.log.Debug("archived booking logs", "client_reference", ref, "bucket", w.bucket, "key", key)
		}
	}

	return path, nil
}
