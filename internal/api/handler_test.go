package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mapleridge/billing-engine/internal/billing"
	"github.com/mapleridge/billing-engine/internal/domain"
	"github.com/mapleridge/billing-engine/internal/ingest"
	"github.com/mapleridge/billing-engine/internal/sheet"
	"github.com/mapleridge/billing-engine/internal/store"
)

func testServer(t *testing.T, apiKey string) (*http.Server, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	engine := billing.NewEngine(st, "CAD", decimal.RequireFromString("0.71"))
	svc := ingest.NewService(st, sheet.StandardSpecs())
	return NewServer("0", NewHandler(svc, engine, st), apiKey), st
}

func workbookBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheets := map[string][][]any{
		sheet.SheetBillingTier: {
			{"tier id", "portfolio aum min ($)", "portfolio aum max ($)", "fee percentage (%)"},
			{"T1", 0, 1000000, 1.25},
		},
		sheet.SheetClientBilling: {
			{"client id", "client name", "province", "country", "billing tier id"},
			{"C001", "Acme Holdings", "ON", "Canada", "T1"},
		},
		sheet.SheetPortfolio: {
			{"client id", "portfolio id", "portfolio currency"},
			{"C001", "P1", "CAD"},
		},
		sheet.SheetAssets: {
			{"asset id", "portfolio id", "asset value", "currency", "date"},
			{"A1", "P1", 10000, "CAD", "2024-03-31"},
			{"A2", "P1", 20000, "CAD", "2024-03-31"},
		},
	}
	for name, rows := range sheets {
		if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("creating sheet: %v", err)
		}
		for i, row := range rows {
			if err := f.SetSheetRow(name, fmt.Sprintf("A%d", i+1), &row); err != nil {
				t.Fatalf("writing row: %v", err)
			}
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		t.Fatalf("deleting default sheet: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("serializing workbook: %v", err)
	}
	return buf.Bytes()
}

func multipartUpload(t *testing.T, workbook []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "billing.xlsx")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := part.Write(workbook); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func TestUploadWorkbookEndpoint(t *testing.T) {
	srv, st := testServer(t, "")

	body, contentType := multipartUpload(t, workbookBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-Id", "ops")
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != domain.StatusCompleted {
		t.Fatalf("upload status = %s, result = %s", resp.Status, resp.ProcessingResult)
	}
	if resp.FileName != "billing.xlsx" {
		t.Errorf("fileName = %q", resp.FileName)
	}

	if _, err := st.GetClient(context.Background(), "C001"); err != nil {
		t.Errorf("client not committed: %v", err)
	}
}

func TestUploadWorkbookMissingFile(t *testing.T) {
	srv, _ := testServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListClientsAttachesTotals(t *testing.T) {
	srv, _ := testServer(t, "")

	body, contentType := multipartUpload(t, workbookBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var clients []clientResponse
	if err := json.Unmarshal(w.Body.Bytes(), &clients); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("client count = %d", len(clients))
	}
	c := clients[0]
	if domain.FormatMoney(c.TotalAum) != "30000.00" {
		t.Errorf("totalAum = %s, want 30000.00", c.TotalAum)
	}
	if domain.FormatMoney(c.TotalFee) != "375.00" {
		t.Errorf("totalFee = %s, want 375.00", c.TotalFee)
	}
	if c.EffectiveFeeRate.String() != "1.25" {
		t.Errorf("effectiveFeeRate = %s, want 1.25", c.EffectiveFeeRate)
	}
}

func TestListPortfoliosAttachesAum(t *testing.T) {
	srv, _ := testServer(t, "")

	body, contentType := multipartUpload(t, workbookBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/portfolios", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var portfolios []portfolioResponse
	if err := json.Unmarshal(w.Body.Bytes(), &portfolios); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(portfolios) != 1 {
		t.Fatalf("portfolio count = %d", len(portfolios))
	}
	if domain.FormatMoney(portfolios[0].PortfolioAum) != "30000.00" {
		t.Errorf("portfolioAum = %s", portfolios[0].PortfolioAum)
	}
	if domain.FormatMoney(portfolios[0].PortfolioFee) != "375.00" {
		t.Errorf("portfolioFee = %s", portfolios[0].PortfolioFee)
	}
}

func TestListUploadsEmpty(t *testing.T) {
	srv, _ := testServer(t, "")

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var records []domain.UploadRecord
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("record count = %d, want 0", len(records))
	}
}

func TestUploadRequiresAuthWhenKeySet(t *testing.T) {
	srv, _ := testServer(t, "secret-key")

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret-key", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer secret-key", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, contentType := multipartUpload(t, workbookBytes(t))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
			req.Header.Set("Content-Type", contentType)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestListingsAreUnauthenticated(t *testing.T) {
	srv, _ := testServer(t, "secret-key")

	for _, path := range []string{
		"/api/v1/uploads", "/api/v1/clients", "/api/v1/portfolios",
		"/api/v1/billing-tiers", "/api/v1/assets",
	} {
		w := httptest.NewRecorder()
		srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
	}
}
