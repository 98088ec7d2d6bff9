package sheet

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// dateLayout is the canonical date format accepted in string date cells.
const dateLayout = "2006-01-02"

// extraDateLayouts covers the renderings excelize produces for
// date-formatted numeric cells under common number formats.
var extraDateLayouts = []string{
	"2006/01/02",
	"01-02-06",
	"1/2/06",
	"01/02/2006",
}

// CellString returns the trimmed text of the cell at idx, or "" when the
// column is absent or the cell is blank. Required-field enforcement is the
// caller's job.
func CellString(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// CellDecimal extracts a decimal value from the cell at idx. Display
// decoration is stripped: a trailing "%" is removed with the number kept in
// percentage points ("1.25%" yields 1.25), and "$" and thousands separators
// are ignored. A blank or unparsable cell is an error; absence of the column
// itself must be handled by the caller before calling (optional numeric
// columns default to zero only when the column is missing).
func CellDecimal(row []string, idx int) (decimal.Decimal, error) {
	raw := CellString(row, idx)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("blank numeric cell")
	}

	cleaned := strings.TrimSuffix(raw, "%")
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid numeric value %q", raw)
	}
	return d, nil
}

// CellDate extracts a calendar date from the cell at idx. String cells must
// match yyyy-MM-dd or one of the renderings excelize applies to
// date-formatted cells; a bare numeric cell is interpreted as an Excel date
// serial. Blank or unparsable cells return the zero time with an error, which
// callers treat as a required-field violation where the date is mandatory.
func CellDate(row []string, idx int) (time.Time, error) {
	raw := CellString(row, idx)
	if raw == "" {
		return time.Time{}, fmt.Errorf("blank date cell")
	}

	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	for _, layout := range extraDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	// Raw date serial, seen when the source cell carries no date format.
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.Truncate(24 * time.Hour), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date value %q", raw)
}
