// Package client provides the Smartsheet REST client for the dispute tracking sheet.
// Columns are resolved by title, so the sheet layout can change without a deploy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"supplier_dispute_backend/internal/disputes/ports"
	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/config"
	"supplier_dispute_backend/platform/httpkit"
	"supplier_dispute_backend/platform/logger"
)

// Client reads and writes the tracking sheet.
type Client struct {
	baseURL string
	token   string
	sheetID string
	titles  config.SheetColumns
	http    *httpkit.Client
	log     *logger.Logger

	mu      sync.RWMutex
	columns *columnIDs
}

// columnIDs maps the engine's fields to Smartsheet column ids.
type columnIDs struct {
	notes, supplierComments, status, completion, clientReference int64
}

// New creates a sheet client.
func New(cfg config.SheetConfig, httpClient *httpkit.Client, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GetSheetBaseURL(), "/"),
		token:   cfg.GetSheetAPIToken(),
		sheetID: cfg.GetSheetID(),
		titles:  cfg.GetSheetColumns(),
		http:    httpClient,
		log:     log,
	}
}

// ListRows fetches the whole sheet and maps each row onto the engine's columns.
func (c *Client) ListRows(ctx context.Context) ([]ports.SheetRow, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.sheetURL(), nil)
	if err != nil {
		return nil, err
	}

	var sheet apiSheet
	if err := c.http.DoJSON(req, &sheet); err != nil {
		return nil, err
	}

	ids, err := c.resolveColumns(sheet.Columns)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.columns = ids
	c.mu.Unlock()

	rows := make([]ports.SheetRow, 0, len(sheet.Rows))
	for _, r := range sheet.Rows {
		cells := make(map[int64]string, len(r.Cells))
		for _, cell := range r.Cells {
			cells[cell.ColumnID] = cell.text()
		}
		rows = append(rows, ports.SheetRow{
			RowID:            r.ID,
			RowNumber:        r.RowNumber,
			Notes:            cells[ids.notes],
			SupplierComments: cells[ids.supplierComments],
			Status:           cells[ids.status],
			Completion:       cells[ids.completion],
			ClientReference:  cells[ids.clientReference],
		})
	}

	c.log.Debug("sheet rows fetched", "sheet_id", c.sheetID, "rows", len(rows))
	return rows, nil
}

// UpdateRow writes the resolution columns of one row.
func (c *Client) UpdateRow(ctx context.Context, rowID int64, update ports.SheetUpdate) error {
	ids, err := c.columnIDs(ctx)
	if err != nil {
		return err
	}

	payload := []apiRowUpdate{{
		ID: rowID,
		Cells: []apiCellUpdate{
			{ColumnID: ids.status, Value: update.Status},
			{ColumnID: ids.completion, Value: update.Completion},
			{ColumnID: ids.supplierComments, Value: update.SupplierComment},
			{ColumnID: ids.notes, Value: update.Notes},
		},
	}}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode row update: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, c.sheetURL()+"/rows", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.http.DoJSON(req, nil); err != nil {
		return err
	}
	c.log.Info("sheet row updated", "row_id", rowID, "status", update.Status, "completion", update.Completion)
	return nil
}

// AttachFile uploads a local file to a row.
func (c *Client) AttachFile(ctx context.Context, rowID int64, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "read attachment", err)
	}
	name := filepath.Base(path)

	reqURL := fmt.Sprintf("%s/rows/%d/attachments", c.sheetURL(), rowID)
	req, err := c.newRequest(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	req.ContentLength = int64(len(data))

	if err := c.http.DoJSON(req, nil); err != nil {
		return err
	}
	c.log.Info("sheet row attachment uploaded", "row_id", rowID, "file", name)
	return nil
}

// Ping fetches the column definitions and checks the configured titles exist.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetchColumnIDs(ctx)
	return err
}

func (c *Client) columnIDs(ctx context.Context) (*columnIDs, error) {
	c.mu.RLock()
	ids := c.columns
	c.mu.RUnlock()
	if ids != nil {
		return ids, nil
	}

	ids, err := c.fetchColumnIDs(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.columns = ids
	c.mu.Unlock()
	return ids, nil
}

func (c *Client) fetchColumnIDs(ctx context.Context) (*columnIDs, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.sheetURL()+"/columns?includeAll=true", nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Data []apiColumn `json:"data"`
	}
	if err := c.http.DoJSON(req, &page); err != nil {
		return nil, err
	}
	return c.resolveColumns(page.Data)
}

func (c *Client) resolveColumns(columns []apiColumn) (*columnIDs, error) {
	byTitle := make(map[string]int64, len(columns))
	for _, col := range columns {
		byTitle[strings.ToLower(strings.TrimSpace(col.Title))] = col.ID
	}

	var missing []string
	lookup := func(title string) int64 {
		id, ok := byTitle[strings.ToLower(strings.TrimSpace(title))]
		if !ok {
			missing = append(missing, title)
		}
		return id
	}

	ids := &columnIDs{
		notes:            lookup(c.titles.Notes),
		supplierComments: lookup(c.titles.SupplierComments),
		status:           lookup(c.titles.Status),
		completion:       lookup(c.titles.Completion),
		clientReference:  lookup(c.titles.ClientReference),
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("sheet is missing columns: " + strings.Join(missing, ", ")).WithOp("sheet")
	}
	return ids, nil
}

func (c *Client) sheetURL() string {
	return c.baseURL + "/sheets/" + c.sheetID
}

func (c *Client) newRequest(ctx context.Context, method, reqURL string, body *bytes.Reader) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

type apiSheet struct {
	ID      int64       `json:"id"`
	Name    string      `json:"name"`
	Columns []apiColumn `json:"columns"`
	Rows    []apiRow    `json:"rows"`
}

type apiColumn struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type apiRow struct {
	ID        int64     `json:"id"`
	RowNumber int       `json:"rowNumber"`
	Cells     []apiCell `json:"cells"`
}

type apiCell struct {
	ColumnID     int64  `json:"columnId"`
	Value        any    `json:"value"`
	DisplayValue string `json:"displayValue"`
}

// text prefers the rendered value, falling back to the raw one.
func (c apiCell) text() string {
	if c.DisplayValue != "" {
		return c.DisplayValue
	}
	switch v := c.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

type apiRowUpdate struct {
	ID    int64           `json:"id"`
	Cells []apiCellUpdate `json:"cells"`
}

type apiCellUpdate struct {
	ColumnID int64  `json:"columnId"`
	Value    string `json:"value"`
}
