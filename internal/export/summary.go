// Package export builds client and portfolio billing summaries and publishes
// them to Google Sheets after each committed upload.
package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mapleridge/billing-engine/internal/domain"
)

const (
	clientsSheet    = "CLIENTS"
	portfoliosSheet = "PORTFOLIOS"
)

// ClientRow is one exported client summary line.
type ClientRow struct {
	ClientID         string
	Name             string
	Province         string
	Country          string
	BillingTierID    string
	TotalAum         decimal.Decimal
	TotalFee         decimal.Decimal
	EffectiveFeeRate decimal.Decimal
}

// PortfolioRow is one exported portfolio summary line.
type PortfolioRow struct {
	PortfolioID string
	ClientID    string
	Currency    string
	Aum         decimal.Decimal
	Fee         decimal.Decimal
}

// Summary is the exported dataset.
type Summary struct {
	Clients    []ClientRow
	Portfolios []PortfolioRow
}

// Lister reads the committed entities the summary covers.
type Lister interface {
	ListClients(ctx context.Context) ([]domain.Client, error)
	ListPortfolios(ctx context.Context) ([]domain.Portfolio, error)
}

// Calculator computes the figures attached to each summary line.
type Calculator interface {
	PortfolioAUM(ctx context.Context, p domain.Portfolio) (decimal.Decimal, error)
	PortfolioFee(ctx context.Context, balance decimal.Decimal, p domain.Portfolio) (decimal.Decimal, error)
	ClientTotalAUM(ctx context.Context, clientID string) (decimal.Decimal, error)
	ClientTotalFee(ctx context.Context, clientID string) (decimal.Decimal, error)
	EffectiveFeeRate(fee, aum decimal.Decimal) decimal.Decimal
}

// SummaryWriter publishes a built summary.
type SummaryWriter interface {
	Write(ctx context.Context, s Summary) error
}

// Exporter builds and publishes billing summaries. It satisfies the
// ingestion service's post-commit hook.
type Exporter struct {
	store  Lister
	engine Calculator
	writer SummaryWriter
}

// NewExporter creates a summary exporter.
func NewExporter(store Lister, engine Calculator, writer SummaryWriter) *Exporter {
	return &Exporter{store: store, engine: engine, writer: writer}
}

// UploadCompleted rebuilds and publishes the summary after a committed
// upload. Failures are logged, never surfaced to the upload path: export is
// best-effort and must not affect the recorded upload outcome.
func (e *Exporter) UploadCompleted(ctx context.Context, rec domain.UploadRecord) {
	if err := e.Publish(ctx); err != nil {
		slog.Error("summary export failed", "upload_id", rec.UploadID, "error", err)
		return
	}
	slog.Info("summary export completed", "upload_id", rec.UploadID)
}

// Publish rebuilds the summary and writes it out.
func (e *Exporter) Publish(ctx context.Context) error {
	summary, err := e.Build(ctx)
	if err != nil {
		return fmt.Errorf("building summary: %w", err)
	}
	if err := e.writer.Write(ctx, summary); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// Build assembles the summary from committed entities.
func (e *Exporter) Build(ctx context.Context) (Summary, error) {
	clients, err := e.store.ListClients(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing clients: %w", err)
	}
	portfolios, err := e.store.ListPortfolios(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing portfolios: %w", err)
	}

	var s Summary
	for _, c := range clients {
		aum, err := e.engine.ClientTotalAUM(ctx, c.ClientID)
		if err != nil {
			return Summary{}, fmt.Errorf("client %s total AUM: %w", c.ClientID, err)
		}
		fee, err := e.engine.ClientTotalFee(ctx, c.ClientID)
		if err != nil {
			return Summary{}, fmt.Errorf("client %s total fee: %w", c.ClientID, err)
		}
		s.Clients = append(s.Clients, ClientRow{
			ClientID:         c.ClientID,
			Name:             c.Name,
			Province:         c.Province,
			Country:          c.Country,
			BillingTierID:    c.BillingTierID,
			TotalAum:         aum,
			TotalFee:         fee,
			EffectiveFeeRate: e.engine.EffectiveFeeRate(fee, aum),
		})
	}

	for _, p := range portfolios {
		aum, err := e.engine.PortfolioAUM(ctx, p)
		if err != nil {
			return Summary{}, fmt.Errorf("portfolio %s AUM: %w", p.PortfolioID, err)
		}
		fee, err := e.engine.PortfolioFee(ctx, aum, p)
		if err != nil {
			return Summary{}, fmt.Errorf("portfolio %s fee: %w", p.PortfolioID, err)
		}
		s.Portfolios = append(s.Portfolios, PortfolioRow{
			PortfolioID: p.PortfolioID,
			ClientID:    p.ClientID,
			Currency:    p.Currency,
			Aum:         aum,
			Fee:         fee,
		})
	}

	return s, nil
}

// buildClientValues renders the CLIENTS sheet data.
// Columns: Client | Name | Province | Country | Tier | AUM | Fee | Effective %
func buildClientValues(rows []ClientRow) [][]any {
	data := make([][]any, 0, len(rows)+1)
	data = append(data, []any{
		"Client", "Name", "Province", "Country", "Tier",
		"Total AUM", "Total Fee", "Effective %",
	})
	for _, r := range rows {
		data = append(data, []any{
			r.ClientID, r.Name, r.Province, r.Country, r.BillingTierID,
			r.TotalAum.InexactFloat64(),
			r.TotalFee.InexactFloat64(),
			r.EffectiveFeeRate.InexactFloat64(),
		})
	}
	return data
}

// buildPortfolioValues renders the PORTFOLIOS sheet data.
// Columns: Portfolio | Client | Currency | AUM | Fee
func buildPortfolioValues(rows []PortfolioRow) [][]any {
	data := [][]any{
		{"Portfolio", "Client", "Currency", "AUM", "Fee"},
	}
	data = append(data, lo.Map(rows, func(r PortfolioRow, _ int) []any {
		return []any{
			r.PortfolioID, r.ClientID, r.Currency,
			r.Aum.InexactFloat64(), r.Fee.InexactFloat64(),
		}
	})...)
	return data
}
