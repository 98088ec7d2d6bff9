package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mapleridge/billing-engine/internal/domain"
	"github.com/mapleridge/billing-engine/internal/sheet"
	"github.com/mapleridge/billing-engine/internal/store"
)

// requiredID extracts a non-blank identifier bounded at domain.MaxIDLength.
func requiredID(row []string, headers sheet.HeaderMap, col string) (string, error) {
	id := sheet.CellString(row, headers.Index(col))
	if id == "" {
		return "", fmt.Errorf("empty %s", col)
	}
	if len(id) > domain.MaxIDLength {
		return "", fmt.Errorf("%s %q exceeds %d characters", col, id, domain.MaxIDLength)
	}
	return id, nil
}

func upsertBillingTierRow(ctx context.Context, tx store.Tx, headers sheet.HeaderMap, row []string, now time.Time, userID string) error {
	tierID, err := requiredID(row, headers, sheet.ColTierID)
	if err != nil {
		return err
	}

	aumMin, err := sheet.CellDecimal(row, headers.Index(sheet.ColAumMin))
	if err != nil {
		return fmt.Errorf("%s: %v", sheet.ColAumMin, err)
	}
	aumMax, err := sheet.CellDecimal(row, headers.Index(sheet.ColAumMax))
	if err != nil {
		return fmt.Errorf("%s: %v", sheet.ColAumMax, err)
	}
	feePct, err := sheet.CellDecimal(row, headers.Index(sheet.ColFeePercentage))
	if err != nil {
		return fmt.Errorf("%s: %v", sheet.ColFeePercentage, err)
	}

	if feePct.IsNegative() || feePct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("invalid fee percentage for tier %s: %s. It must be between 0 and 100", tierID, feePct)
	}
	if aumMin.IsNegative() {
		return fmt.Errorf("invalid AUM range for tier %s: min(%s) is negative", tierID, aumMin)
	}
	if aumMin.GreaterThan(aumMax) {
		return fmt.Errorf("invalid AUM range for tier %s: min(%s) > max(%s)", tierID, aumMin, aumMax)
	}

	return tx.SaveBillingTier(ctx, domain.BillingTier{
		TierID:        tierID,
		AumMin:        aumMin,
		AumMax:        aumMax,
		FeePercentage: feePct,
		Audit:         stamp(now, userID),
	})
}

func upsertClientRow(ctx context.Context, tx store.Tx, headers sheet.HeaderMap, row []string, now time.Time, userID string) error {
	clientID, err := requiredID(row, headers, sheet.ColClientID)
	if err != nil {
		return err
	}

	name := sheet.CellString(row, headers.Index(sheet.ColClientName))
	if name == "" {
		return fmt.Errorf("empty %s for client %s", sheet.ColClientName, clientID)
	}
	tierID := sheet.CellString(row, headers.Index(sheet.ColBillingTierID))
	if tierID == "" {
		return fmt.Errorf("empty %s for client %s", sheet.ColBillingTierID, clientID)
	}

	return tx.SaveClient(ctx, domain.Client{
		ClientID:      clientID,
		Name:          name,
		Province:      sheet.CellString(row, headers.Index(sheet.ColProvince)),
		Country:       sheet.CellString(row, headers.Index(sheet.ColCountry)),
		BillingTierID: tierID,
		Audit:         stamp(now, userID),
	})
}

func upsertPortfolioRow(ctx context.Context, tx store.Tx, headers sheet.HeaderMap, row []string, now time.Time, userID string) error {
	portfolioID, err := requiredID(row, headers, sheet.ColPortfolioID)
	if err != nil {
		return err
	}
	clientID, err := requiredID(row, headers, sheet.ColClientID)
	if err != nil {
		return err
	}

	currency := domain.NormalizeCurrency(sheet.CellString(row, headers.Index(sheet.ColPortfolioCurrency)))
	if len(currency) != 3 {
		return fmt.Errorf("invalid currency %q for portfolio %s", currency, portfolioID)
	}

	// The client must already exist, either from persisted state or from the
	// client_billing sheet processed earlier in this same transaction.
	if _, err := tx.GetClient(ctx, clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("client %s does not exist for portfolio %s", clientID, portfolioID)
		}
		return fmt.Errorf("looking up client %s: %v", clientID, err)
	}

	return tx.SavePortfolio(ctx, domain.Portfolio{
		PortfolioID: portfolioID,
		ClientID:    clientID,
		Currency:    currency,
		Audit:       stamp(now, userID),
	})
}

func upsertAssetRow(ctx context.Context, tx store.Tx, headers sheet.HeaderMap, row []string, now time.Time, userID string) error {
	assetID := sheet.CellString(row, headers.Index(sheet.ColAssetID))
	if assetID == "" {
		return fmt.Errorf("empty %s", sheet.ColAssetID)
	}
	portfolioID, err := requiredID(row, headers, sheet.ColPortfolioID)
	if err != nil {
		return err
	}

	if _, err := tx.GetPortfolio(ctx, portfolioID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("portfolio %s does not exist for asset %s", portfolioID, assetID)
		}
		return fmt.Errorf("looking up portfolio %s: %v", portfolioID, err)
	}

	value, err := sheet.CellDecimal(row, headers.Index(sheet.ColAssetValue))
	if err != nil {
		return fmt.Errorf("%s: %v", sheet.ColAssetValue, err)
	}
	if value.IsNegative() {
		return fmt.Errorf("negative %s for asset %s", sheet.ColAssetValue, assetID)
	}

	currency := domain.NormalizeCurrency(sheet.CellString(row, headers.Index(sheet.ColCurrency)))
	if currency == "" {
		return fmt.Errorf("empty %s for asset %s", sheet.ColCurrency, assetID)
	}

	date, err := sheet.CellDate(row, headers.Index(sheet.ColDate))
	if err != nil {
		return fmt.Errorf("%s: %v", sheet.ColDate, err)
	}

	return tx.SaveAsset(ctx, domain.Asset{
		AssetID:     assetID,
		PortfolioID: portfolioID,
		Date:        date,
		Value:       value,
		Currency:    currency,
		Audit:       stamp(now, userID),
	})
}

// stamp builds the audit metadata for an upsert: the created fields apply if
// the row is new, the updated fields if it already exists.
func stamp(now time.Time, userID string) domain.Audit {
	return domain.Audit{
		CreatedAt: now,
		CreatedBy: userID,
		UpdatedAt: now,
		UpdatedBy: userID,
	}
}
