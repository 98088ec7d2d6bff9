// Package sheet provides typed cell extraction and header validation for
// workbook ingestion. It operates on the formatted row values produced by
// excelize, so the displayed text of a cell is the extraction contract.
package sheet

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// Spec names a sheet and the column headers it must carry. Header matching is
// case-insensitive and ignores spaces and underscores; order does not matter.
type Spec struct {
	Name    string
	Columns []string
}

// Sheet names in processing order. Later sheets hold foreign keys into
// earlier ones, so the order is load-bearing.
const (
	SheetBillingTier   = "billing_tier"
	SheetClientBilling = "client_billing"
	SheetPortfolio     = "portfolio"
	SheetAssets        = "assets"
)

// Column names used by the four standard sheets. Earlier workbook revisions
// spelled these with underscores instead of spaces; normalizeHeader folds the
// two spellings together so both generations of files are accepted.
const (
	ColTierID        = "tier id"
	ColAumMin        = "portfolio aum min ($)"
	ColAumMax        = "portfolio aum max ($)"
	ColFeePercentage = "fee percentage (%)"

	ColClientID      = "client id"
	ColClientName    = "client name"
	ColProvince      = "province"
	ColCountry       = "country"
	ColBillingTierID = "billing tier id"

	ColPortfolioID       = "portfolio id"
	ColPortfolioCurrency = "portfolio currency"

	ColAssetID    = "asset id"
	ColAssetValue = "asset value"
	ColCurrency   = "currency"
	ColDate       = "date"
)

// StandardSpecs returns the sheet specifications for a billing workbook, in
// processing order. Callers receive a fresh slice each time; there is no
// shared mutable state.
func StandardSpecs() []Spec {
	return []Spec{
		{Name: SheetBillingTier, Columns: []string{ColTierID, ColAumMin, ColAumMax, ColFeePercentage}},
		{Name: SheetClientBilling, Columns: []string{ColClientID, ColClientName, ColProvince, ColCountry, ColBillingTierID}},
		{Name: SheetPortfolio, Columns: []string{ColClientID, ColPortfolioID, ColPortfolioCurrency}},
		{Name: SheetAssets, Columns: []string{ColAssetID, ColPortfolioID, ColAssetValue, ColCurrency, ColDate}},
	}
}

// HeaderMap maps normalized column names to their zero-based index in the
// header row.
type HeaderMap map[string]int

// Index returns the column index for name, or -1 if the column is absent.
func (m HeaderMap) Index(name string) int {
	idx, ok := m[normalizeHeader(name)]
	if !ok {
		return -1
	}
	return idx
}

// MapHeaders validates that the header row carries every expected column and
// returns the resulting name→index map. A missing column is a sheet-level
// error: no map is returned and the sheet must not be processed.
func MapHeaders(headerRow []string, expected []string) (HeaderMap, error) {
	m := make(HeaderMap, len(headerRow))
	for i, h := range headerRow {
		name := normalizeHeader(h)
		if name == "" {
			continue
		}
		m[name] = i
	}

	missing := lo.Filter(expected, func(col string, _ int) bool {
		_, ok := m[normalizeHeader(col)]
		return !ok
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("Invalid headers: expected columns %v", expected)
	}
	return m, nil
}

// IsEmptyRow reports whether every cell of the row is blank.
func IsEmptyRow(row []string) bool {
	return lo.EveryBy(row, func(cell string) bool {
		return strings.TrimSpace(cell) == ""
	})
}

// normalizeHeader lowercases and drops spaces and underscores, so
// "Portfolio AUM Min ($)" and "portfolio_aum_min($)" name the same column.
func normalizeHeader(h string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '_':
			return -1
		}
		return unicode.ToLower(r)
	}, h)
}
