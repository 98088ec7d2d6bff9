package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mapleridge/billing-engine/internal/billing"
	"github.com/mapleridge/billing-engine/internal/domain"
	"github.com/mapleridge/billing-engine/internal/ingest"
	"github.com/mapleridge/billing-engine/internal/store"
)

// maxUploadBytes bounds the accepted workbook size.
const maxUploadBytes = 32 << 20

// Ingestor is the upload surface the handler drives.
type Ingestor interface {
	Upload(ctx context.Context, meta ingest.FileMeta, r io.Reader, userID string) (*domain.UploadRecord, error)
	Records(ctx context.Context) ([]domain.UploadRecord, error)
}

// Calculator is the fee/AUM surface the handler drives.
type Calculator interface {
	PortfolioAUM(ctx context.Context, p domain.Portfolio) (decimal.Decimal, error)
	PortfolioFee(ctx context.Context, balance decimal.Decimal, p domain.Portfolio) (decimal.Decimal, error)
	ClientTotalAUM(ctx context.Context, clientID string) (decimal.Decimal, error)
	ClientTotalFee(ctx context.Context, clientID string) (decimal.Decimal, error)
	EffectiveFeeRate(fee, aum decimal.Decimal) decimal.Decimal
}

// Handler provides the billing HTTP endpoints.
type Handler struct {
	ingestor Ingestor
	engine   Calculator
	store    store.Store
}

// NewHandler creates a new API handler.
func NewHandler(ingestor Ingestor, engine Calculator, st store.Store) *Handler {
	return &Handler{ingestor: ingestor, engine: engine, store: st}
}

type uploadResponse struct {
	FileName         string `json:"fileName"`
	FileType         string `json:"fileType"`
	FileSize         int64  `json:"fileSize"`
	Status           string `json:"status"`
	ProcessingResult string `json:"processingResult"`
}

func toUploadResponse(rec domain.UploadRecord) uploadResponse {
	return uploadResponse{
		FileName:         rec.FileName,
		FileType:         rec.FileType,
		FileSize:         rec.FileSize,
		Status:           rec.Status,
		ProcessingResult: rec.Result,
	}
}

// UploadWorkbook handles POST /api/v1/uploads. The acting user identity comes
// from the X-User-Id header; its absence is tolerated and audited with a
// sentinel by the ingestion service.
func (h *Handler) UploadWorkbook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing multipart field 'file'")
		return
	}
	defer file.Close()

	meta := ingest.FileMeta{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}

	rec, err := h.ingestor.Upload(r.Context(), meta, file, r.Header.Get("X-User-Id"))
	if err != nil {
		slog.Error("upload tracking failed", "file", meta.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toUploadResponse(*rec))
}

// ListUploads handles GET /api/v1/uploads.
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	records, err := h.ingestor.Records(r.Context())
	if err != nil {
		slog.Error("failed to list uploads", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type clientResponse struct {
	domain.Client
	TotalAum         decimal.Decimal `json:"totalAum"`
	TotalFee         decimal.Decimal `json:"totalFee"`
	EffectiveFeeRate decimal.Decimal `json:"effectiveFeeRate"`
}

// ListClients handles GET /api/v1/clients, attaching per-client totals.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clients, err := h.store.ListClients(ctx)
	if err != nil {
		slog.Error("failed to list clients", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		aum, err := h.engine.ClientTotalAUM(ctx, c.ClientID)
		if err != nil {
			h.writeCalcError(w, "client total AUM", c.ClientID, err)
			return
		}
		fee, err := h.engine.ClientTotalFee(ctx, c.ClientID)
		if err != nil {
			h.writeCalcError(w, "client total fee", c.ClientID, err)
			return
		}
		resp = append(resp, clientResponse{
			Client:           c,
			TotalAum:         aum,
			TotalFee:         fee,
			EffectiveFeeRate: h.engine.EffectiveFeeRate(fee, aum),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type portfolioResponse struct {
	domain.Portfolio
	PortfolioAum decimal.Decimal `json:"portfolioAum"`
	PortfolioFee decimal.Decimal `json:"portfolioFee"`
}

// ListPortfolios handles GET /api/v1/portfolios, attaching AUM and fee.
func (h *Handler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	portfolios, err := h.store.ListPortfolios(ctx)
	if err != nil {
		slog.Error("failed to list portfolios", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]portfolioResponse, 0, len(portfolios))
	for _, p := range portfolios {
		aum, err := h.engine.PortfolioAUM(ctx, p)
		if err != nil {
			h.writeCalcError(w, "portfolio AUM", p.PortfolioID, err)
			return
		}
		fee, err := h.engine.PortfolioFee(ctx, aum, p)
		if err != nil {
			h.writeCalcError(w, "portfolio fee", p.PortfolioID, err)
			return
		}
		resp = append(resp, portfolioResponse{Portfolio: p, PortfolioAum: aum, PortfolioFee: fee})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListBillingTiers handles GET /api/v1/billing-tiers.
func (h *Handler) ListBillingTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.store.ListBillingTiers(r.Context())
	if err != nil {
		slog.Error("failed to list billing tiers", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tiers)
}

// ListAssets handles GET /api/v1/assets.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.store.ListAssets(r.Context())
	if err != nil {
		slog.Error("failed to list assets", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

// writeCalcError reports a calculation failure. Integrity failures mean
// committed data broke an invariant, so they surface as server errors with
// the detail logged.
func (h *Handler) writeCalcError(w http.ResponseWriter, op, id string, err error) {
	if errors.Is(err, billing.ErrClientNotFound) || errors.Is(err, billing.ErrNoMatchingTier) {
		slog.Error("calculation integrity failure", "op", op, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "calculation integrity failure")
		return
	}
	slog.Error("calculation failed", "op", op, "id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
