package sheet

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCellStringTrims(t *testing.T) {
	row := []string{"  C001  ", ""}
	if got := CellString(row, 0); got != "C001" {
		t.Errorf("CellString = %q, want C001", got)
	}
	if got := CellString(row, 1); got != "" {
		t.Errorf("blank cell = %q, want empty", got)
	}
	if got := CellString(row, 5); got != "" {
		t.Errorf("out-of-range cell = %q, want empty", got)
	}
	if got := CellString(row, -1); got != "" {
		t.Errorf("absent column = %q, want empty", got)
	}
}

func TestCellDecimalPlain(t *testing.T) {
	d, err := CellDecimal([]string{"10000"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("value = %s, want 10000", d)
	}
}

func TestCellDecimalPercentagePoints(t *testing.T) {
	// A percent-formatted cell displays "1.25%"; the stored number stays in
	// percentage points.
	d, err := CellDecimal([]string{"1.25%"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("value = %s, want 1.25", d)
	}
}

func TestCellDecimalCurrencyDecoration(t *testing.T) {
	d, err := CellDecimal([]string{"$1,000,000.50"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("1000000.50")) {
		t.Errorf("value = %s, want 1000000.50", d)
	}
}

func TestCellDecimalBlankErrors(t *testing.T) {
	if _, err := CellDecimal([]string{""}, 0); err == nil {
		t.Error("expected error for blank cell")
	}
	if _, err := CellDecimal([]string{"abc"}, 0); err == nil {
		t.Error("expected error for non-numeric cell")
	}
}

func TestCellDateCanonical(t *testing.T) {
	d, err := CellDate([]string{"2024-03-31"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	if !d.Equal(want) {
		t.Errorf("date = %v, want %v", d, want)
	}
}

func TestCellDateSerial(t *testing.T) {
	// 45382 is 2024-03-31 in the 1900 date system.
	d, err := CellDate([]string{"45382"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.March || d.Day() != 31 {
		t.Errorf("serial date = %v, want 2024-03-31", d)
	}
}

func TestCellDateInvalid(t *testing.T) {
	if _, err := CellDate([]string{""}, 0); err == nil {
		t.Error("expected error for blank date")
	}
	if _, err := CellDate([]string{"not-a-date"}, 0); err == nil {
		t.Error("expected error for unparsable date")
	}
}
