package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mapleridge/billing-engine/internal/domain"
)

type tierKey struct {
	tierID string
	min    string
	max    string
}

type assetKey struct {
	date        string
	portfolioID string
	assetID     string
}

func newTierKey(t domain.BillingTier) tierKey {
	return tierKey{tierID: t.TierID, min: t.AumMin.String(), max: t.AumMax.String()}
}

func newAssetKey(a domain.Asset) assetKey {
	return assetKey{
		date:        a.Date.Format("2006-01-02"),
		portfolioID: a.PortfolioID,
		assetID:     a.AssetID,
	}
}

// tables holds one consistent view of all domain entities.
type tables struct {
	clients    map[string]domain.Client
	portfolios map[string]domain.Portfolio
	tiers      map[tierKey]domain.BillingTier
	assets     map[assetKey]domain.Asset
}

func newTables() *tables {
	return &tables{
		clients:    make(map[string]domain.Client),
		portfolios: make(map[string]domain.Portfolio),
		tiers:      make(map[tierKey]domain.BillingTier),
		assets:     make(map[assetKey]domain.Asset),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.clients {
		c.clients[k] = v
	}
	for k, v := range t.portfolios {
		c.portfolios[k] = v
	}
	for k, v := range t.tiers {
		c.tiers[k] = v
	}
	for k, v := range t.assets {
		c.assets[k] = v
	}
	return c
}

// MemStore is a map-backed Store. Transactions operate on a cloned table set
// that replaces the live one on Commit, giving the same all-or-nothing
// visibility as the PostgreSQL implementation.
type MemStore struct {
	mu      sync.RWMutex
	tables  *tables
	uploads map[string]domain.UploadRecord
	order   []string // upload ids in creation order
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		tables:  newTables(),
		uploads: make(map[string]domain.UploadRecord),
	}
}

func (s *MemStore) Begin(_ context.Context) (Tx, error) {
	s.mu.RLock()
	staged := s.tables.clone()
	s.mu.RUnlock()
	return &memTx{memDomain: memDomain{t: staged}, parent: s}, nil
}

type memTx struct {
	memDomain
	parent *MemStore
	done   bool
}

func (tx *memTx) Commit(_ context.Context) error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	tx.parent.mu.Lock()
	tx.parent.tables = tx.t
	tx.parent.mu.Unlock()
	tx.done = true
	return nil
}

func (tx *memTx) Rollback(_ context.Context) error {
	tx.done = true
	return nil
}

// memDomain implements DomainStore over a table set. MemStore embeds it
// behind the store mutex; transactions embed it over their staged clone.
type memDomain struct {
	t *tables
}

func (d *memDomain) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	c, ok := d.t.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (d *memDomain) SaveClient(_ context.Context, c domain.Client) error {
	if existing, ok := d.t.clients[c.ClientID]; ok {
		c.CreatedAt = existing.CreatedAt
		c.CreatedBy = existing.CreatedBy
	} else {
		c.UpdatedAt = time.Time{}
		c.UpdatedBy = ""
	}
	d.t.clients[c.ClientID] = c
	return nil
}

func (d *memDomain) ListClients(_ context.Context) ([]domain.Client, error) {
	clients := lo.Values(d.t.clients)
	sort.Slice(clients, func(i, j int) bool { return clients[i].ClientID < clients[j].ClientID })
	return clients, nil
}

func (d *memDomain) GetPortfolio(_ context.Context, portfolioID string) (*domain.Portfolio, error) {
	p, ok := d.t.portfolios[portfolioID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (d *memDomain) SavePortfolio(_ context.Context, p domain.Portfolio) error {
	if existing, ok := d.t.portfolios[p.PortfolioID]; ok {
		p.CreatedAt = existing.CreatedAt
		p.CreatedBy = existing.CreatedBy
	} else {
		p.UpdatedAt = time.Time{}
		p.UpdatedBy = ""
	}
	d.t.portfolios[p.PortfolioID] = p
	return nil
}

func (d *memDomain) ListPortfolios(_ context.Context) ([]domain.Portfolio, error) {
	portfolios := lo.Values(d.t.portfolios)
	sort.Slice(portfolios, func(i, j int) bool { return portfolios[i].PortfolioID < portfolios[j].PortfolioID })
	return portfolios, nil
}

func (d *memDomain) ListPortfoliosByClient(ctx context.Context, clientID string) ([]domain.Portfolio, error) {
	all, _ := d.ListPortfolios(ctx)
	return lo.Filter(all, func(p domain.Portfolio, _ int) bool {
		return p.ClientID == clientID
	}), nil
}

func (d *memDomain) SaveBillingTier(_ context.Context, t domain.BillingTier) error {
	key := newTierKey(t)
	if existing, ok := d.t.tiers[key]; ok {
		t.CreatedAt = existing.CreatedAt
		t.CreatedBy = existing.CreatedBy
	} else {
		t.UpdatedAt = time.Time{}
		t.UpdatedBy = ""
	}
	d.t.tiers[key] = t
	return nil
}

func (d *memDomain) ListBillingTiers(_ context.Context) ([]domain.BillingTier, error) {
	tiers := lo.Values(d.t.tiers)
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].TierID != tiers[j].TierID {
			return tiers[i].TierID < tiers[j].TierID
		}
		return tiers[i].AumMin.LessThan(tiers[j].AumMin)
	})
	return tiers, nil
}

func (d *memDomain) FindBillingTier(ctx context.Context, tierID string, balance decimal.Decimal) (*domain.BillingTier, error) {
	tiers, _ := d.ListBillingTiers(ctx)
	for _, t := range tiers {
		if t.TierID == tierID && t.AumMin.LessThanOrEqual(balance) && t.AumMax.GreaterThanOrEqual(balance) {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memDomain) SaveAsset(_ context.Context, a domain.Asset) error {
	key := newAssetKey(a)
	if existing, ok := d.t.assets[key]; ok {
		a.CreatedAt = existing.CreatedAt
		a.CreatedBy = existing.CreatedBy
	} else {
		a.UpdatedAt = time.Time{}
		a.UpdatedBy = ""
	}
	d.t.assets[key] = a
	return nil
}

func (d *memDomain) ListAssets(_ context.Context) ([]domain.Asset, error) {
	assets := lo.Values(d.t.assets)
	sort.Slice(assets, func(i, j int) bool {
		ki, kj := newAssetKey(assets[i]), newAssetKey(assets[j])
		if ki.date != kj.date {
			return ki.date < kj.date
		}
		if ki.portfolioID != kj.portfolioID {
			return ki.portfolioID < kj.portfolioID
		}
		return ki.assetID < kj.assetID
	})
	return assets, nil
}

func (d *memDomain) ListAssetsByPortfolio(ctx context.Context, portfolioID string) ([]domain.Asset, error) {
	all, _ := d.ListAssets(ctx)
	return lo.Filter(all, func(a domain.Asset, _ int) bool {
		return a.PortfolioID == portfolioID
	}), nil
}

// Non-transactional reads and writes operate on the live table set under the
// store lock.

func (s *MemStore) read() memDomain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memDomain{t: s.tables}
}

func (s *MemStore) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	d := s.read()
	return d.GetClient(ctx, clientID)
}

func (s *MemStore) SaveClient(ctx context.Context, c domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := memDomain{t: s.tables}
	return d.SaveClient(ctx, c)
}

func (s *MemStore) ListClients(ctx context.Context) ([]domain.Client, error) {
	d := s.read()
	return d.ListClients(ctx)
}

func (s *MemStore) GetPortfolio(ctx context.Context, portfolioID string) (*domain.Portfolio, error) {
	d := s.read()
	return d.GetPortfolio(ctx, portfolioID)
}

func (s *MemStore) SavePortfolio(ctx context.Context, p domain.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := memDomain{t: s.tables}
	return d.SavePortfolio(ctx, p)
}

func (s *MemStore) ListPortfolios(ctx context.Context) ([]domain.Portfolio, error) {
	d := s.read()
	return d.ListPortfolios(ctx)
}

func (s *MemStore) ListPortfoliosByClient(ctx context.Context, clientID string) ([]domain.Portfolio, error) {
	d := s.read()
	return d.ListPortfoliosByClient(ctx, clientID)
}

func (s *MemStore) SaveBillingTier(ctx context.Context, t domain.BillingTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := memDomain{t: s.tables}
	return d.SaveBillingTier(ctx, t)
}

func (s *MemStore) ListBillingTiers(ctx context.Context) ([]domain.BillingTier, error) {
	d := s.read()
	return d.ListBillingTiers(ctx)
}

func (s *MemStore) FindBillingTier(ctx context.Context, tierID string, balance decimal.Decimal) (*domain.BillingTier, error) {
	d := s.read()
	return d.FindBillingTier(ctx, tierID, balance)
}

func (s *MemStore) SaveAsset(ctx context.Context, a domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := memDomain{t: s.tables}
	return d.SaveAsset(ctx, a)
}

func (s *MemStore) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	d := s.read()
	return d.ListAssets(ctx)
}

func (s *MemStore) ListAssetsByPortfolio(ctx context.Context, portfolioID string) ([]domain.Asset, error) {
	d := s.read()
	return d.ListAssetsByPortfolio(ctx, portfolioID)
}

func (s *MemStore) CreateUploadRecord(_ context.Context, rec domain.UploadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[rec.UploadID]; ok {
		return fmt.Errorf("upload record %s already exists", rec.UploadID)
	}
	s.uploads[rec.UploadID] = rec
	s.order = append(s.order, rec.UploadID)
	return nil
}

func (s *MemStore) FinishUploadRecord(_ context.Context, uploadID, status, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.uploads[uploadID]
	if !ok || rec.Status != domain.StatusProcessing {
		return fmt.Errorf("upload record %s: %w", uploadID, ErrNotFound)
	}
	rec.Status = status
	rec.Result = result
	s.uploads[uploadID] = rec
	return nil
}

func (s *MemStore) ListUploadRecords(_ context.Context) ([]domain.UploadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]domain.UploadRecord, 0, len(s.order))
	// newest first, matching the SQL ordering
	for i := len(s.order) - 1; i >= 0; i-- {
		records = append(records, s.uploads[s.order[i]])
	}
	return records, nil
}

func (s *MemStore) GetUploadRecord(_ context.Context, uploadID string) (*domain.UploadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.uploads[uploadID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}
