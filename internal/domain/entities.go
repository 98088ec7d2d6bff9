package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxIDLength is the maximum length of client, portfolio, asset and tier identifiers.
const MaxIDLength = 10

// AnonymousUser is the audit identity recorded when no acting user is known.
const AnonymousUser = "anonymous"

// Audit holds creation and modification metadata stamped on every domain row.
type Audit struct {
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// Client is a billable customer. BillingTierID selects the rate schedule
// applied to every portfolio the client owns.
type Client struct {
	ClientID      string `json:"clientId"`
	Name          string `json:"clientName"`
	Province      string `json:"province"`
	Country       string `json:"country"`
	BillingTierID string `json:"billingTierId"`
	Audit
}

// Portfolio is a managed account owned by a client, denominated in a
// three-letter currency code.
type Portfolio struct {
	PortfolioID string `json:"portfolioId"`
	ClientID    string `json:"clientId"`
	Currency    string `json:"portfolioCurrency"`
	Audit
}

// BillingTier is one bucket of a rate schedule: the fee percentage charged
// when a portfolio's AUM falls within [AumMin, AumMax]. The composite key is
// (TierID, AumMin, AumMax); many buckets share a TierID.
type BillingTier struct {
	TierID        string          `json:"tierId"`
	AumMin        decimal.Decimal `json:"portfolioAumMin"`
	AumMax        decimal.Decimal `json:"portfolioAumMax"`
	FeePercentage decimal.Decimal `json:"feePercentage"`
	Audit
}

// Asset is a dated valuation snapshot of a single holding within a portfolio.
// The composite key is (Date, PortfolioID, AssetID). Value is expressed in
// the base currency.
type Asset struct {
	AssetID     string          `json:"assetId"`
	PortfolioID string          `json:"portfolioId"`
	Date        time.Time       `json:"date"`
	Value       decimal.Decimal `json:"assetValue"`
	Currency    string          `json:"currency"`
	Audit
}

// Upload statuses. An upload record moves from StatusProcessing to exactly
// one of StatusCompleted or StatusFailed.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// MaxResultLength caps the stored processing result text.
const MaxResultLength = 2000

// UploadRecord tracks the outcome of one ingestion attempt. It is persisted
// outside the domain transaction so it survives a rollback.
type UploadRecord struct {
	UploadID   string    `json:"uploadId"`
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType"`
	FileSize   int64     `json:"fileSize"`
	Status     string    `json:"status"`
	Result     string    `json:"processingResult"`
	CreatedBy  string    `json:"createdBy"`
	UploadedAt time.Time `json:"uploadDate"`
}
