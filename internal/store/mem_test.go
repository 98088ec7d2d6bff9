package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mapleridge/billing-engine/internal/domain"
)

func testClient(id string) domain.Client {
	return domain.Client{
		ClientID:      id,
		Name:          "Client " + id,
		BillingTierID: "T1",
		Audit: domain.Audit{
			CreatedAt: time.Now().UTC(),
			CreatedBy: "tester",
			UpdatedAt: time.Now().UTC(),
			UpdatedBy: "tester",
		},
	}
}

func TestMemStoreTxCommitPublishes(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.SaveClient(ctx, testClient("C001")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Invisible before commit.
	if _, err := s.GetClient(ctx, "C001"); err != ErrNotFound {
		t.Errorf("pre-commit read err = %v, want ErrNotFound", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	c, err := s.GetClient(ctx, "C001")
	if err != nil {
		t.Fatalf("post-commit read: %v", err)
	}
	if c.Name != "Client C001" {
		t.Errorf("name = %q", c.Name)
	}
}

func TestMemStoreTxRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	tx, _ := s.Begin(ctx)
	if err := tx.SaveClient(ctx, testClient("C001")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if _, err := s.GetClient(ctx, "C001"); err != ErrNotFound {
		t.Errorf("post-rollback read err = %v, want ErrNotFound", err)
	}
}

func TestMemStoreUpsertKeepsCreatedStamps(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	first := testClient("C001")
	first.CreatedBy = "alice"
	if err := s.SaveClient(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := testClient("C001")
	second.Name = "Renamed"
	second.CreatedBy = "bob"
	second.UpdatedBy = "bob"
	if err := s.SaveClient(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, err := s.GetClient(ctx, "C001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed (last write wins)", c.Name)
	}
	if c.CreatedBy != "alice" {
		t.Errorf("createdBy = %q, want alice preserved", c.CreatedBy)
	}
	if c.UpdatedBy != "bob" {
		t.Errorf("updatedBy = %q, want bob", c.UpdatedBy)
	}
}

func TestMemStoreFindBillingTierInclusiveBounds(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	tier := domain.BillingTier{
		TierID:        "T1",
		AumMin:        decimal.Zero,
		AumMax:        decimal.NewFromInt(1000000),
		FeePercentage: decimal.RequireFromString("1.25"),
	}
	if err := s.SaveBillingTier(ctx, tier); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, balance := range []decimal.Decimal{
		decimal.Zero,
		decimal.NewFromInt(30000),
		decimal.NewFromInt(1000000),
	} {
		got, err := s.FindBillingTier(ctx, "T1", balance)
		if err != nil {
			t.Errorf("balance %s: unexpected error: %v", balance, err)
			continue
		}
		if !got.FeePercentage.Equal(tier.FeePercentage) {
			t.Errorf("balance %s: fee = %s", balance, got.FeePercentage)
		}
	}

	if _, err := s.FindBillingTier(ctx, "T1", decimal.NewFromInt(1000001)); err != ErrNotFound {
		t.Errorf("out-of-range balance err = %v, want ErrNotFound", err)
	}
	if _, err := s.FindBillingTier(ctx, "T9", decimal.NewFromInt(100)); err != ErrNotFound {
		t.Errorf("unknown tier err = %v, want ErrNotFound", err)
	}
}

func TestMemStoreUploadRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	rec := domain.UploadRecord{
		UploadID:   "u-1",
		FileName:   "data.xlsx",
		Status:     domain.StatusProcessing,
		CreatedBy:  "tester",
		UploadedAt: time.Now().UTC(),
	}
	if err := s.CreateUploadRecord(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.FinishUploadRecord(ctx, "u-1", domain.StatusCompleted, "ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second transition must fail: PROCESSING → terminal happens exactly once.
	if err := s.FinishUploadRecord(ctx, "u-1", domain.StatusFailed, "again"); err == nil {
		t.Error("expected error finishing an already-finished record")
	}

	got, err := s.GetUploadRecord(ctx, "u-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.Result != "ok" {
		t.Errorf("record = %+v", got)
	}
}

func TestMemStoreAssetCompositeKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	date := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	a := domain.Asset{
		AssetID:     "A1",
		PortfolioID: "P1",
		Date:        date,
		Value:       decimal.NewFromInt(100),
		Currency:    "CAD",
	}
	if err := s.SaveAsset(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same key overwrites, different date inserts.
	a.Value = decimal.NewFromInt(200)
	if err := s.SaveAsset(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := a
	b.Date = date.AddDate(0, 0, 1)
	if err := s.SaveAsset(ctx, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assets, err := s.ListAssetsByPortfolio(ctx, "P1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("asset count = %d, want 2", len(assets))
	}
	if !assets[0].Value.Equal(decimal.NewFromInt(200)) {
		t.Errorf("overwritten value = %s, want 200", assets[0].Value)
	}
}
