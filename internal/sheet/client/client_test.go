package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"supplier_dispute_backend/internal/disputes/ports"
	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/config"
	"supplier_dispute_backend/platform/httpkit"
	"supplier_dispute_backend/platform/logger"
)

const sheetBody = `{
	"id": 42,
	"columns": [
		{"id": 1, "title": "Round 1: Super Additional Notes"},
		{"id": 2, "title": "Round 1: Supplier comments"},
		{"id": 3, "title": "Round 1: Status"},
		{"id": 4, "title": "Round 1: Completion"},
		{"id": 5, "title": "Client Reference Number"}
	],
	"rows": [
		{"id": 100, "rowNumber": 1, "cells": [
			{"columnId": 1, "value": "provider error"},
			{"columnId": 2, "value": "in escalation process"},
			{"columnId": 3, "value": "escalation"},
			{"columnId": 4, "value": "need help"},
			{"columnId": 5, "value": 1001, "displayValue": "CR-1001"}
		]},
		{"id": 101, "rowNumber": 2, "cells": [
			{"columnId": 5, "value": 2002}
		]}
	]
}`

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		SheetBaseURL:  baseURL,
		SheetAPIToken: "token",
		SheetID:       "42",
		SheetColumns: config.SheetColumns{
			Notes:            "Round 1: Super Additional Notes",
			SupplierComments: "Round 1: Supplier comments",
			Status:           "Round 1: Status",
			Completion:       "Round 1: Completion",
			ClientReference:  "Client Reference Number",
		},
	}
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(testConfig(srv.URL), httpkit.NewClientWith("sheet", srv.Client(), nil, logger.Discard()), logger.Discard())
}

func TestListRowsMapsColumnsByTitle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sheets/42", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(sheetBody))
	})
	c := newTestClient(t, mux)

	rows, err := c.ListRows(context.Background())
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	want := ports.SheetRow{
		RowID:            100,
		RowNumber:        1,
		Notes:            "provider error",
		SupplierComments: "in escalation process",
		Status:           "escalation",
		Completion:       "need help",
		ClientReference:  "CR-1001",
	}
	if rows[0] != want {
		t.Fatalf("got %+v, want %+v", rows[0], want)
	}
	if rows[1].ClientReference != "2002" {
		t.Fatalf("numeric cell should render without exponent, got %q", rows[1].ClientReference)
	}
}

func TestListRowsMissingColumnIsValidationError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sheets/42", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"columns":[{"id":1,"title":"Round 1: Status"}],"rows":[]}`))
	})
	c := newTestClient(t, mux)

	_, err := c.ListRows(context.Background())
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Client Reference Number") {
		t.Fatalf("error should name the missing column: %v", err)
	}
}

func TestUpdateRowResolvesColumnsAndSendsCells(t *testing.T) {
	var got []apiRowUpdate
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sheets/42/columns", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"id":1,"title":"Round 1: Super Additional Notes"},
			{"id":2,"title":"Round 1: Supplier comments"},
			{"id":3,"title":"Round 1: Status"},
			{"id":4,"title":"Round 1: Completion"},
			{"id":5,"title":"Client Reference Number"}]}`))
	})
	mux.HandleFunc("PUT /sheets/42/rows", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":"SUCCESS","resultCode":0}`))
	})
	c := newTestClient(t, mux)

	err := c.UpdateRow(context.Background(), 100, ports.SheetUpdate{
		Status:          "will not pay",
		Completion:      "ready to submit",
		SupplierComment: "reviewed by ST technical team",
		Notes:           "note",
	})
	if err != nil {
		t.Fatalf("UpdateRow: %v", err)
	}
	if len(got) != 1 || got[0].ID != 100 || len(got[0].Cells) != 4 {
		t.Fatalf("unexpected payload %+v", got)
	}
	values := map[int64]string{}
	for _, cell := range got[0].Cells {
		values[cell.ColumnID] = cell.Value
	}
	if values[3] != "will not pay" || values[4] != "ready to submit" || values[1] != "note" {
		t.Fatalf("unexpected cells %v", values)
	}
}

func TestAttachFileUploadsBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "booking_logs_CR-1_20250301_100000.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	var disposition, body string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sheets/42/rows/100/attachments", func(w http.ResponseWriter, r *http.Request) {
		disposition = r.Header.Get("Content-Disposition")
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		_, _ = w.Write([]byte(`{"message":"SUCCESS"}`))
	})
	c := newTestClient(t, mux)

	if err := c.AttachFile(context.Background(), 100, path); err != nil {
		t.Fatalf("AttachFile: %v", err)
	}
	if !strings.Contains(disposition, "booking_logs_CR-1_20250301_100000.csv") {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	if body != "a,b\n1,2\n" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestAttachFileMissingFile(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())
	err := c.AttachFile(context.Background(), 100, filepath.Join(t.TempDir(), "nope.csv"))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
