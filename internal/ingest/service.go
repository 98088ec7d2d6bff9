// Package ingest drives workbook ingestion: schema validation, typed row
// extraction, ordered multi-sheet upsert, and workbook-atomic commit or
// rollback. Every ingestion attempt leaves behind an upload record whether or
// not its domain writes survive.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/mapleridge/billing-engine/internal/domain"
	"github.com/mapleridge/billing-engine/internal/instrument"
	"github.com/mapleridge/billing-engine/internal/sheet"
	"github.com/mapleridge/billing-engine/internal/store"
)

// UploadHook is called after an upload commits successfully.
type UploadHook interface {
	UploadCompleted(ctx context.Context, rec domain.UploadRecord)
}

// FileMeta describes the uploaded file for record keeping.
type FileMeta struct {
	Name        string
	ContentType string
	Size        int64
}

// Service is the ingestion orchestrator.
type Service struct {
	store store.Store
	specs []sheet.Spec
	hook  UploadHook // optional
}

// NewService creates an ingestion service processing sheets per the given
// specs, in slice order. An optional hook fires after each committed upload.
func NewService(st store.Store, specs []sheet.Spec, hooks ...UploadHook) *Service {
	var hook UploadHook
	if len(hooks) > 0 {
		hook = hooks[0]
	}
	return &Service{store: st, specs: specs, hook: hook}
}

// Upload ingests one workbook. The returned record carries the final status
// and result text; a non-nil error means the attempt itself could not be
// tracked, not that the workbook was invalid — workbook problems surface as a
// FAILED record.
func (s *Service) Upload(ctx context.Context, meta FileMeta, r io.Reader, userID string) (*domain.UploadRecord, error) {
	defer instrument.Track("ingest", "Upload")()

	if userID == "" {
		// No identity context weakens the audit trail; make it loud.
		slog.Warn("upload without acting user identity", "file", meta.Name)
		userID = domain.AnonymousUser
	}

	rec := domain.UploadRecord{
		UploadID:   uuid.NewString(),
		FileName:   meta.Name,
		FileType:   meta.ContentType,
		FileSize:   meta.Size,
		Status:     domain.StatusProcessing,
		CreatedBy:  userID,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.store.CreateUploadRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating upload record: %w", err)
	}
	slog.Info("processing upload", "upload_id", rec.UploadID, "file", meta.Name, "user", userID)

	f, err := excelize.OpenReader(r)
	if err != nil {
		// Fatal pre-processing failure: no sheet is attempted.
		return s.finish(ctx, rec, domain.StatusFailed,
			fmt.Sprintf("Error: invalid workbook: %v", err))
	}
	defer f.Close()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return s.finish(ctx, rec, domain.StatusFailed,
			fmt.Sprintf("Error: starting transaction: %v", err))
	}

	summary, rowErrs := s.processWorkbook(ctx, tx, f, userID)

	if len(rowErrs) > 0 {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.Error("rollback failed", "upload_id", rec.UploadID, "error", rbErr)
		}
		slog.Warn("upload failed validation",
			"upload_id", rec.UploadID, "errors", len(rowErrs))
		return s.finish(ctx, rec, domain.StatusFailed, errorReport(rowErrs))
	}

	if err := tx.Commit(ctx); err != nil {
		slog.Error("commit failed", "upload_id", rec.UploadID, "error", err)
		return s.finish(ctx, rec, domain.StatusFailed,
			fmt.Sprintf("Error: committing upload: %v", err))
	}

	final, err := s.finish(ctx, rec, domain.StatusCompleted, truncate(summary, domain.MaxResultLength))
	if err == nil && s.hook != nil {
		s.hook.UploadCompleted(ctx, *final)
	}
	return final, err
}

// processWorkbook walks the configured sheets in order, collecting row errors
// instead of raising them. Sheets absent from the workbook are noted and
// skipped; they are not errors.
func (s *Service) processWorkbook(ctx context.Context, tx store.Tx, f *excelize.File, userID string) (string, []RowError) {
	var summary strings.Builder
	var rowErrs []RowError

	for _, spec := range s.specs {
		idx, err := f.GetSheetIndex(spec.Name)
		if err != nil || idx < 0 {
			slog.Warn("sheet not found", "sheet", spec.Name)
			summary.WriteString(fmt.Sprintf("Sheet not found: %s\n", spec.Name))
			continue
		}

		processed, errs := s.processSheet(ctx, tx, f, spec, userID)
		rowErrs = append(rowErrs, errs...)
		summary.WriteString(fmt.Sprintf("Processed %d rows from '%s'. ", processed, spec.Name))
	}

	return summary.String(), rowErrs
}

// processSheet validates headers and upserts every data row. Each row is
// attempted regardless of earlier failures; the count of successful rows and
// the collected errors are both returned.
func (s *Service) processSheet(ctx context.Context, tx store.Tx, f *excelize.File, spec sheet.Spec, userID string) (int, []RowError) {
	rows, err := f.GetRows(spec.Name)
	if err != nil {
		return 0, []RowError{{Sheet: spec.Name, Msg: fmt.Sprintf("reading sheet: %v", err)}}
	}
	if len(rows) == 0 {
		return 0, []RowError{{Sheet: spec.Name, Msg: fmt.Sprintf("Invalid headers: expected columns %v", spec.Columns)}}
	}

	headers, err := sheet.MapHeaders(rows[0], spec.Columns)
	if err != nil {
		slog.Warn("invalid headers", "sheet", spec.Name, "error", err)
		return 0, []RowError{{Sheet: spec.Name, Msg: err.Error()}}
	}

	now := time.Now().UTC()
	processed := 0
	var rowErrs []RowError

	for i, row := range rows[1:] {
		if sheet.IsEmptyRow(row) {
			continue
		}
		rowNum := i + 2 // 1-based, after the header row

		if err := s.upsertRow(ctx, tx, spec.Name, headers, row, now, userID); err != nil {
			rowErrs = append(rowErrs, RowError{Sheet: spec.Name, Row: rowNum, Msg: err.Error()})
			continue
		}
		processed++
	}

	slog.Info("processed sheet", "sheet", spec.Name,
		"rows", processed, "errors", len(rowErrs))
	return processed, rowErrs
}

func (s *Service) upsertRow(ctx context.Context, tx store.Tx, sheetName string, headers sheet.HeaderMap, row []string, now time.Time, userID string) error {
	switch sheetName {
	case sheet.SheetBillingTier:
		return upsertBillingTierRow(ctx, tx, headers, row, now, userID)
	case sheet.SheetClientBilling:
		return upsertClientRow(ctx, tx, headers, row, now, userID)
	case sheet.SheetPortfolio:
		return upsertPortfolioRow(ctx, tx, headers, row, now, userID)
	case sheet.SheetAssets:
		return upsertAssetRow(ctx, tx, headers, row, now, userID)
	default:
		return fmt.Errorf("unknown sheet %q", sheetName)
	}
}

// finish records the terminal status transition. The write happens outside
// the domain transaction in every path, so the record survives a rollback.
func (s *Service) finish(ctx context.Context, rec domain.UploadRecord, status, result string) (*domain.UploadRecord, error) {
	if err := s.store.FinishUploadRecord(ctx, rec.UploadID, status, result); err != nil {
		return nil, fmt.Errorf("finishing upload record: %w", err)
	}
	rec.Status = status
	rec.Result = result
	slog.Info("upload finished", "upload_id", rec.UploadID, "status", status)
	return &rec, nil
}

// Records returns the upload history, newest first.
func (s *Service) Records(ctx context.Context) ([]domain.UploadRecord, error) {
	return s.store.ListUploadRecords(ctx)
}
