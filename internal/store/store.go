// Package store defines persistent storage for billing entities and upload
// records, with PostgreSQL and in-memory implementations.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mapleridge/billing-engine/internal/domain"
)

// ErrNotFound indicates that the requested row does not exist.
var ErrNotFound = errors.New("row not found")

// DomainStore is the entity read/write surface shared by the root store and
// by transactions. Every Save is an upsert on the entity's natural key:
// created-* audit fields apply on insert, updated-* on overwrite, and the
// write is last-write-wins with no field-level merge.
type DomainStore interface {
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	SaveClient(ctx context.Context, c domain.Client) error
	ListClients(ctx context.Context) ([]domain.Client, error)

	GetPortfolio(ctx context.Context, portfolioID string) (*domain.Portfolio, error)
	SavePortfolio(ctx context.Context, p domain.Portfolio) error
	ListPortfolios(ctx context.Context) ([]domain.Portfolio, error)
	ListPortfoliosByClient(ctx context.Context, clientID string) ([]domain.Portfolio, error)

	SaveBillingTier(ctx context.Context, t domain.BillingTier) error
	ListBillingTiers(ctx context.Context) ([]domain.BillingTier, error)
	// FindBillingTier returns the tier bucket whose [AumMin, AumMax] range
	// contains balance, bounds inclusive, for the given tier id.
	FindBillingTier(ctx context.Context, tierID string, balance decimal.Decimal) (*domain.BillingTier, error)

	SaveAsset(ctx context.Context, a domain.Asset) error
	ListAssets(ctx context.Context) ([]domain.Asset, error)
	ListAssetsByPortfolio(ctx context.Context, portfolioID string) ([]domain.Asset, error)
}

// Tx scopes a set of domain writes to one atomic unit. Writes become visible
// to other readers only after Commit; Rollback discards them all.
type Tx interface {
	DomainStore
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the full storage surface. Upload-record writes deliberately bypass
// Begin's transaction scope: an upload's outcome must be recorded even when
// its domain writes are rolled back.
type Store interface {
	DomainStore
	Begin(ctx context.Context) (Tx, error)

	CreateUploadRecord(ctx context.Context, rec domain.UploadRecord) error
	// FinishUploadRecord performs the single PROCESSING → COMPLETED/FAILED
	// transition, setting the result text.
	FinishUploadRecord(ctx context.Context, uploadID, status, result string) error
	ListUploadRecords(ctx context.Context) ([]domain.UploadRecord, error)
	GetUploadRecord(ctx context.Context, uploadID string) (*domain.UploadRecord, error)
}
