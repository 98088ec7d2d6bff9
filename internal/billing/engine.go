// Package billing computes portfolio AUM, tiered management fees, currency
// conversion and client-level aggregates from committed entities. Every call
// re-reads stored state; there is no caching layer.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mapleridge/billing-engine/internal/domain"
	"github.com/mapleridge/billing-engine/internal/instrument"
	"github.com/mapleridge/billing-engine/internal/store"
)

// Integrity failures. These are fatal for the calculation request, not
// recoverable per-row conditions: committed data referencing a missing client
// or an uncovered balance range means the store has lost an invariant.
var (
	ErrClientNotFound = errors.New("client not found")
	ErrNoMatchingTier = errors.New("no billing tier matches balance")
)

// Reader is the subset of the store the engine needs.
type Reader interface {
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	ListPortfoliosByClient(ctx context.Context, clientID string) ([]domain.Portfolio, error)
	ListAssetsByPortfolio(ctx context.Context, portfolioID string) ([]domain.Asset, error)
	FindBillingTier(ctx context.Context, tierID string, balance decimal.Decimal) (*domain.BillingTier, error)
}

// Engine performs fee and AUM calculations. Asset values are stored in the
// base currency; a single scalar rate converts into any other portfolio
// currency.
type Engine struct {
	store        Reader
	baseCurrency string
	rate         decimal.Decimal
}

// NewEngine creates a calculation engine with the given base currency and
// base→target exchange rate.
func NewEngine(st Reader, baseCurrency string, rate decimal.Decimal) *Engine {
	return &Engine{
		store:        st,
		baseCurrency: domain.NormalizeCurrency(baseCurrency),
		rate:         rate,
	}
}

// ConvertToTargetCurrency converts an amount in the base currency. The base
// currency passes through unchanged; anything else is multiplied by the
// configured rate and rounded to 2 decimal places, half up.
func (e *Engine) ConvertToTargetCurrency(amount decimal.Decimal, targetCurrency string) decimal.Decimal {
	if domain.NormalizeCurrency(targetCurrency) == e.baseCurrency {
		return amount
	}
	return domain.Round2(amount.Mul(e.rate))
}

// PortfolioAUM sums the converted value of every asset snapshot recorded for
// the portfolio, denominated in the portfolio's currency.
func (e *Engine) PortfolioAUM(ctx context.Context, p domain.Portfolio) (decimal.Decimal, error) {
	defer instrument.Track("billing", "PortfolioAUM")()

	assets, err := e.store.ListAssetsByPortfolio(ctx, p.PortfolioID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("listing assets for portfolio %s: %w", p.PortfolioID, err)
	}

	return lo.Reduce(assets, func(acc decimal.Decimal, a domain.Asset, _ int) decimal.Decimal {
		return acc.Add(e.ConvertToTargetCurrency(a.Value, p.Currency))
	}, decimal.Zero), nil
}

// PortfolioFee resolves the owning client's billing tier for the given
// balance and returns round(balance * feePercentage / 100, 2). A missing
// client or an uncovered balance is an integrity failure.
func (e *Engine) PortfolioFee(ctx context.Context, balance decimal.Decimal, p domain.Portfolio) (decimal.Decimal, error) {
	defer instrument.Track("billing", "PortfolioFee")()

	client, err := e.store.GetClient(ctx, p.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("portfolio %s: %w: %s", p.PortfolioID, ErrClientNotFound, p.ClientID)
		}
		return decimal.Zero, fmt.Errorf("getting client %s: %w", p.ClientID, err)
	}

	tier, err := e.store.FindBillingTier(ctx, client.BillingTierID, balance)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("tier %s, balance %s: %w",
				client.BillingTierID, balance, ErrNoMatchingTier)
		}
		return decimal.Zero, fmt.Errorf("finding billing tier %s: %w", client.BillingTierID, err)
	}

	return domain.ApplyPercentage(balance, tier.FeePercentage), nil
}

// ClientTotalAUM sums PortfolioAUM over every portfolio the client owns.
func (e *Engine) ClientTotalAUM(ctx context.Context, clientID string) (decimal.Decimal, error) {
	return e.sumPortfolios(ctx, clientID, func(ctx context.Context, p domain.Portfolio) (decimal.Decimal, error) {
		return e.PortfolioAUM(ctx, p)
	})
}

// ClientTotalFee sums PortfolioFee over every portfolio the client owns.
func (e *Engine) ClientTotalFee(ctx context.Context, clientID string) (decimal.Decimal, error) {
	return e.sumPortfolios(ctx, clientID, func(ctx context.Context, p domain.Portfolio) (decimal.Decimal, error) {
		aum, err := e.PortfolioAUM(ctx, p)
		if err != nil {
			return decimal.Zero, err
		}
		return e.PortfolioFee(ctx, aum, p)
	})
}

func (e *Engine) sumPortfolios(ctx context.Context, clientID string, per func(context.Context, domain.Portfolio) (decimal.Decimal, error)) (decimal.Decimal, error) {
	portfolios, err := e.store.ListPortfoliosByClient(ctx, clientID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("listing portfolios for client %s: %w", clientID, err)
	}

	total := decimal.Zero
	for _, p := range portfolios {
		v, err := per(ctx, p)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

// EffectiveFeeRate expresses fee as a percentage of aum, rounded to 2 decimal
// places. A non-positive aum yields exactly zero rather than dividing by it.
func (e *Engine) EffectiveFeeRate(fee, aum decimal.Decimal) decimal.Decimal {
	if aum.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return domain.Round2(fee.Mul(decimal.NewFromInt(100)).Div(aum))
}
