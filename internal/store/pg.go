package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mapleridge/billing-engine/internal/domain"
)

// querier is the query surface shared by pgxpool.Pool and pgx.Tx, letting
// the same entity methods run inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgDomain implements DomainStore against any querier. Numeric columns cross
// the boundary as text, parsed into decimals on the way out.
type pgDomain struct {
	q querier
}

// PgStore implements Store with PostgreSQL. Upserts rely on
// INSERT ... ON CONFLICT, so concurrent writers on the same natural key
// cannot lose updates.
type PgStore struct {
	pgDomain
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL-backed store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pgDomain: pgDomain{q: pool}, pool: pool}
}

// Begin opens a domain transaction. Upload-record methods stay on the pool
// and are unaffected by the transaction's outcome.
func (s *PgStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &pgTx{pgDomain: pgDomain{q: tx}, tx: tx}, nil
}

type pgTx struct {
	pgDomain
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

func (d *pgDomain) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	row := d.q.QueryRow(ctx, `
		SELECT client_id, client_name, province, country, billing_tier_id,
		       created_at, created_by, updated_at, updated_by
		FROM clients WHERE client_id = $1`, clientID)

	var c domain.Client
	var ua *time.Time
	var ub *string
	err := row.Scan(&c.ClientID, &c.Name, &c.Province, &c.Country, &c.BillingTierID,
		&c.CreatedAt, &c.CreatedBy, &ua, &ub)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting client %s: %w", clientID, err)
	}
	applyUpdated(&c.Audit, ua, ub)
	return &c, nil
}

func (d *pgDomain) SaveClient(ctx context.Context, c domain.Client) error {
	_, err := d.q.Exec(ctx, `
		INSERT INTO clients (client_id, client_name, province, country, billing_tier_id, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (client_id) DO UPDATE SET
			client_name     = EXCLUDED.client_name,
			province        = EXCLUDED.province,
			country         = EXCLUDED.country,
			billing_tier_id = EXCLUDED.billing_tier_id,
			updated_at      = $8,
			updated_by      = $9`,
		c.ClientID, c.Name, c.Province, c.Country, c.BillingTierID,
		c.CreatedAt, c.CreatedBy, c.UpdatedAt, c.UpdatedBy)
	if err != nil {
		return fmt.Errorf("saving client %s: %w", c.ClientID, err)
	}
	return nil
}

func (d *pgDomain) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := d.q.Query(ctx, `
		SELECT client_id, client_name, province, country, billing_tier_id,
		       created_at, created_by, updated_at, updated_by
		FROM clients ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		var c domain.Client
		var ua *time.Time
		var ub *string
		if err := rows.Scan(&c.ClientID, &c.Name, &c.Province, &c.Country, &c.BillingTierID,
			&c.CreatedAt, &c.CreatedBy, &ua, &ub); err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		applyUpdated(&c.Audit, ua, ub)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (d *pgDomain) GetPortfolio(ctx context.Context, portfolioID string) (*domain.Portfolio, error) {
	row := d.q.QueryRow(ctx, `
		SELECT portfolio_id, client_id, portfolio_currency,
		       created_at, created_by, updated_at, updated_by
		FROM portfolios WHERE portfolio_id = $1`, portfolioID)

	var p domain.Portfolio
	var ua *time.Time
	var ub *string
	err := row.Scan(&p.PortfolioID, &p.ClientID, &p.Currency,
		&p.CreatedAt, &p.CreatedBy, &ua, &ub)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting portfolio %s: %w", portfolioID, err)
	}
	applyUpdated(&p.Audit, ua, ub)
	return &p, nil
}

func (d *pgDomain) SavePortfolio(ctx context.Context, p domain.Portfolio) error {
	_, err := d.q.Exec(ctx, `
		INSERT INTO portfolios (portfolio_id, client_id, portfolio_currency, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (portfolio_id) DO UPDATE SET
			client_id          = EXCLUDED.client_id,
			portfolio_currency = EXCLUDED.portfolio_currency,
			updated_at         = $6,
			updated_by         = $7`,
		p.PortfolioID, p.ClientID, p.Currency,
		p.CreatedAt, p.CreatedBy, p.UpdatedAt, p.UpdatedBy)
	if err != nil {
		return fmt.Errorf("saving portfolio %s: %w", p.PortfolioID, err)
	}
	return nil
}

func (d *pgDomain) ListPortfolios(ctx context.Context) ([]domain.Portfolio, error) {
	return d.queryPortfolios(ctx, `
		SELECT portfolio_id, client_id, portfolio_currency,
		       created_at, created_by, updated_at, updated_by
		FROM portfolios ORDER BY portfolio_id`)
}

func (d *pgDomain) ListPortfoliosByClient(ctx context.Context, clientID string) ([]domain.Portfolio, error) {
	return d.queryPortfolios(ctx, `
		SELECT portfolio_id, client_id, portfolio_currency,
		       created_at, created_by, updated_at, updated_by
		FROM portfolios WHERE client_id = $1 ORDER BY portfolio_id`, clientID)
}

func (d *pgDomain) queryPortfolios(ctx context.Context, sql string, args ...any) ([]domain.Portfolio, error) {
	rows, err := d.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		var p domain.Portfolio
		var ua *time.Time
		var ub *string
		if err := rows.Scan(&p.PortfolioID, &p.ClientID, &p.Currency,
			&p.CreatedAt, &p.CreatedBy, &ua, &ub); err != nil {
			return nil, fmt.Errorf("scanning portfolio: %w", err)
		}
		applyUpdated(&p.Audit, ua, ub)
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

func (d *pgDomain) SaveBillingTier(ctx context.Context, t domain.BillingTier) error {
	_, err := d.q.Exec(ctx, `
		INSERT INTO billing_tiers (tier_id, aum_min, aum_max, fee_percentage, created_at, created_by)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5, $6)
		ON CONFLICT (tier_id, aum_min, aum_max) DO UPDATE SET
			fee_percentage = EXCLUDED.fee_percentage,
			updated_at     = $7,
			updated_by     = $8`,
		t.TierID, t.AumMin.String(), t.AumMax.String(), t.FeePercentage.String(),
		t.CreatedAt, t.CreatedBy, t.UpdatedAt, t.UpdatedBy)
	if err != nil {
		return fmt.Errorf("saving billing tier %s: %w", t.TierID, err)
	}
	return nil
}

func (d *pgDomain) ListBillingTiers(ctx context.Context) ([]domain.BillingTier, error) {
	rows, err := d.q.Query(ctx, `
		SELECT tier_id, aum_min::text, aum_max::text, fee_percentage::text,
		       created_at, created_by, updated_at, updated_by
		FROM billing_tiers ORDER BY tier_id, aum_min`)
	if err != nil {
		return nil, fmt.Errorf("listing billing tiers: %w", err)
	}
	defer rows.Close()

	var tiers []domain.BillingTier
	for rows.Next() {
		t, err := scanBillingTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (d *pgDomain) FindBillingTier(ctx context.Context, tierID string, balance decimal.Decimal) (*domain.BillingTier, error) {
	rows, err := d.q.Query(ctx, `
		SELECT tier_id, aum_min::text, aum_max::text, fee_percentage::text,
		       created_at, created_by, updated_at, updated_by
		FROM billing_tiers
		WHERE tier_id = $1 AND aum_min <= $2::numeric AND aum_max >= $2::numeric
		ORDER BY aum_min
		LIMIT 1`, tierID, balance.String())
	if err != nil {
		return nil, fmt.Errorf("finding billing tier %s: %w", tierID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("finding billing tier %s: %w", tierID, err)
		}
		return nil, ErrNotFound
	}
	t, err := scanBillingTier(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanBillingTier(rows pgx.Rows) (domain.BillingTier, error) {
	var t domain.BillingTier
	var minStr, maxStr, pctStr string
	var ua *time.Time
	var ub *string
	if err := rows.Scan(&t.TierID, &minStr, &maxStr, &pctStr,
		&t.CreatedAt, &t.CreatedBy, &ua, &ub); err != nil {
		return domain.BillingTier{}, fmt.Errorf("scanning billing tier: %w", err)
	}
	t.AumMin = domain.SafeParse(minStr)
	t.AumMax = domain.SafeParse(maxStr)
	t.FeePercentage = domain.SafeParse(pctStr)
	applyUpdated(&t.Audit, ua, ub)
	return t, nil
}

func (d *pgDomain) SaveAsset(ctx context.Context, a domain.Asset) error {
	_, err := d.q.Exec(ctx, `
		INSERT INTO assets (snapshot_date, portfolio_id, asset_id, asset_value, currency, created_at, created_by)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (snapshot_date, portfolio_id, asset_id) DO UPDATE SET
			asset_value = EXCLUDED.asset_value,
			currency    = EXCLUDED.currency,
			updated_at  = $8,
			updated_by  = $9`,
		a.Date, a.PortfolioID, a.AssetID, a.Value.String(), a.Currency,
		a.CreatedAt, a.CreatedBy, a.UpdatedAt, a.UpdatedBy)
	if err != nil {
		return fmt.Errorf("saving asset %s: %w", a.AssetID, err)
	}
	return nil
}

func (d *pgDomain) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	return d.queryAssets(ctx, `
		SELECT snapshot_date, portfolio_id, asset_id, asset_value::text, currency,
		       created_at, created_by, updated_at, updated_by
		FROM assets ORDER BY snapshot_date, portfolio_id, asset_id`)
}

func (d *pgDomain) ListAssetsByPortfolio(ctx context.Context, portfolioID string) ([]domain.Asset, error) {
	return d.queryAssets(ctx, `
		SELECT snapshot_date, portfolio_id, asset_id, asset_value::text, currency,
		       created_at, created_by, updated_at, updated_by
		FROM assets WHERE portfolio_id = $1 ORDER BY snapshot_date, asset_id`, portfolioID)
}

func (d *pgDomain) queryAssets(ctx context.Context, sql string, args ...any) ([]domain.Asset, error) {
	rows, err := d.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var valStr string
		var ua *time.Time
		var ub *string
		if err := rows.Scan(&a.Date, &a.PortfolioID, &a.AssetID, &valStr, &a.Currency,
			&a.CreatedAt, &a.CreatedBy, &ua, &ub); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		a.Value = domain.SafeParse(valStr)
		applyUpdated(&a.Audit, ua, ub)
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (s *PgStore) CreateUploadRecord(ctx context.Context, rec domain.UploadRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO upload_records (upload_id, file_name, file_type, file_size, status, processing_result, created_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.UploadID, rec.FileName, rec.FileType, rec.FileSize,
		rec.Status, rec.Result, rec.CreatedBy, rec.UploadedAt)
	if err != nil {
		return fmt.Errorf("creating upload record: %w", err)
	}
	return nil
}

func (s *PgStore) FinishUploadRecord(ctx context.Context, uploadID, status, result string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE upload_records
		SET status = $2, processing_result = $3
		WHERE upload_id = $1 AND status = $4`,
		uploadID, status, result, domain.StatusProcessing)
	if err != nil {
		return fmt.Errorf("finishing upload record %s: %w", uploadID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upload record %s: %w", uploadID, ErrNotFound)
	}
	return nil
}

func (s *PgStore) ListUploadRecords(ctx context.Context) ([]domain.UploadRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT upload_id, file_name, file_type, file_size, status, processing_result, created_by, uploaded_at
		FROM upload_records ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing upload records: %w", err)
	}
	defer rows.Close()

	var records []domain.UploadRecord
	for rows.Next() {
		var r domain.UploadRecord
		if err := rows.Scan(&r.UploadID, &r.FileName, &r.FileType, &r.FileSize,
			&r.Status, &r.Result, &r.CreatedBy, &r.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning upload record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PgStore) GetUploadRecord(ctx context.Context, uploadID string) (*domain.UploadRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT upload_id, file_name, file_type, file_size, status, processing_result, created_by, uploaded_at
		FROM upload_records WHERE upload_id = $1`, uploadID)

	var r domain.UploadRecord
	err := row.Scan(&r.UploadID, &r.FileName, &r.FileType, &r.FileSize,
		&r.Status, &r.Result, &r.CreatedBy, &r.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting upload record %s: %w", uploadID, err)
	}
	return &r, nil
}

func applyUpdated(a *domain.Audit, updatedAt *time.Time, updatedBy *string) {
	if updatedAt != nil {
		a.UpdatedAt = *updatedAt
	}
	if updatedBy != nil {
		a.UpdatedBy = *updatedBy
	}
}
