package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/mapleridge/billing-engine/internal/domain"
)

// RowError records one validation failure during sheet processing. Row 0
// marks a sheet-level failure (invalid headers). Row errors are collected,
// never raised: a non-empty collection is the signal that the whole upload
// rolls back.
type RowError struct {
	Sheet string
	Row   int
	Msg   string
}

func (e RowError) String() string {
	if e.Row == 0 {
		return fmt.Sprintf("%s: %s", e.Sheet, e.Msg)
	}
	return fmt.Sprintf("%s row %d: %s", e.Sheet, e.Row, e.Msg)
}

// errorReport concatenates all row errors into the text stored on a FAILED
// upload record, truncated to the record's capacity.
func errorReport(errs []RowError) string {
	parts := lo.Map(errs, func(e RowError, _ int) string { return e.String() })
	return truncate(strings.Join(parts, "; "), domain.MaxResultLength)
}

// truncate cuts s to at most n bytes without splitting a rune, so the stored
// result text stays valid UTF-8. Truncation of the result text is a
// documented loss boundary, not a failure.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
