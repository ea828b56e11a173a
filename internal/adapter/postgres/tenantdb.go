package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RxMesh/PharmaCore/internal/config"
	"github.com/RxMesh/PharmaCore/internal/domain/catalog"
	"github.com/RxMesh/PharmaCore/internal/domain/registry"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
	"github.com/RxMesh/PharmaCore/internal/port/tenantdb"
)

// TenantStore implements tenantdb.Store against one tenant's database.
type TenantStore struct {
	pool *pgxpool.Pool
}

// Connector implements tenantdb.Connector by opening a small pgx pool per
// tenant database. Each fan-out operation connects, works, and closes; no
// pool outlives the operation that opened it.
type Connector struct {
	cfg config.TenantDB
}

// NewConnector creates a Connector from tenant database configuration.
func NewConnector(cfg config.TenantDB) *Connector {
	return &Connector{cfg: cfg}
}

// Connect opens a connection pool to the tenant's database.
func (c *Connector) Connect(ctx context.Context, rec *tenant.Record) (tenantdb.Store, error) {
	poolCfg, err := pgxpool.ParseConfig(rec.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse tenant dsn %s: %w", rec.ID, err)
	}
	poolCfg.MaxConns = c.cfg.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = c.cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect tenant %s: %w", rec.ID, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping tenant %s: %w", rec.ID, err)
	}
	return &TenantStore{pool: pool}, nil
}

// NewTenantStore wraps an existing pool as a TenantStore. Used by tests.
func NewTenantStore(pool *pgxpool.Pool) *TenantStore {
	return &TenantStore{pool: pool}
}

// Close releases the tenant connection pool.
func (s *TenantStore) Close() {
	s.pool.Close()
}

// --- Catalog ---

func scanTenantProduct(row scannable) (catalog.TenantProduct, error) {
	var p catalog.TenantProduct
	var historyJSON []byte
	err := row.Scan(&p.GTIN, &p.Name, &p.ManufacturerGLN, &p.ManufacturerName,
		&p.Price, &historyJSON, &p.Active, &p.Imported, &p.LastSyncedAt)
	if err != nil {
		return p, err
	}
	if historyJSON != nil {
		if err := json.Unmarshal(historyJSON, &p.PriceHistory); err != nil {
			return p, fmt.Errorf("decode price history %s: %w", p.GTIN, err)
		}
	}
	return p, nil
}

const tenantProductColumns = `gtin, name, manufacturer_gln, manufacturer_name, price, price_history, active, imported, last_synced_at`

func (s *TenantStore) GetProductsByGTIN(ctx context.Context, gtins []string) (map[string]catalog.TenantProduct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantProductColumns+` FROM catalog WHERE gtin = ANY($1)`, gtins)
	if err != nil {
		return nil, fmt.Errorf("get tenant products: %w", err)
	}
	defer rows.Close()

	products := make(map[string]catalog.TenantProduct, len(gtins))
	for rows.Next() {
		p, err := scanTenantProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant product: %w", err)
		}
		products[p.GTIN] = p
	}
	return products, rows.Err()
}

// ApplyProducts writes one fan-out batch in a single transaction. Inserts
// carry a zero price and empty history; updates touch upstream-owned columns
// only. No statement in this method reads or writes price or price_history
// for an existing row.
func (s *TenantStore) ApplyProducts(ctx context.Context, inserts []catalog.TenantProduct, updates []catalog.CentralProduct) error {
	if len(inserts) == 0 && len(updates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin apply products: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := range inserts {
		p := &inserts[i]
		historyJSON, err := json.Marshal(p.PriceHistory)
		if err != nil {
			return fmt.Errorf("encode price history %s: %w", p.GTIN, err)
		}
		batch.Queue(
			`INSERT INTO catalog (`+tenantProductColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (gtin) DO NOTHING`,
			p.GTIN, p.Name, p.ManufacturerGLN, p.ManufacturerName,
			p.Price, historyJSON, p.Active, p.Imported, p.LastSyncedAt)
	}
	for i := range updates {
		c := &updates[i]
		batch.Queue(
			`UPDATE catalog SET
			   name = $2,
			   manufacturer_gln = $3,
			   manufacturer_name = $4,
			   active = $5,
			   imported = $6,
			   last_synced_at = $7
			 WHERE gtin = $1`,
			c.GTIN, c.Name, c.ManufacturerGLN, c.ManufacturerName,
			c.Active, c.Imported, c.LastSyncedAt)
	}

	if err := flushBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("apply products: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit apply products: %w", err)
	}
	return nil
}

func (s *TenantStore) GetProduct(ctx context.Context, gtin string) (*catalog.TenantProduct, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantProductColumns+` FROM catalog WHERE gtin = $1`, gtin)
	p, err := scanTenantProduct(row)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant product %s", gtin)
	}
	return &p, nil
}

// SavePrice persists a tenant-owned price change. This is the only write
// path that touches the price columns.
func (s *TenantStore) SavePrice(ctx context.Context, p *catalog.TenantProduct) error {
	historyJSON, err := json.Marshal(p.PriceHistory)
	if err != nil {
		return fmt.Errorf("encode price history %s: %w", p.GTIN, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE catalog SET price = $2, price_history = $3 WHERE gtin = $1`,
		p.GTIN, p.Price, historyJSON)
	return execExpectOne(tag, err, "save price %s", p.GTIN)
}

// --- Partner registry ---

// UpsertPartners mirrors central partner rows into the tenant store. The
// registry has no tenant-owned fields, so every column is overwritten.
func (s *TenantStore) UpsertPartners(ctx context.Context, partners []registry.Partner) error {
	if len(partners) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert tenant partners: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := range partners {
		p := &partners[i]
		batch.Queue(
			`INSERT INTO partner_registry (`+partnerColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (gln) DO UPDATE SET
			   company_name = EXCLUDED.company_name,
			   authorized_contact = EXCLUDED.authorized_contact,
			   email = EXCLUDED.email,
			   phone = EXCLUDED.phone,
			   city = EXCLUDED.city,
			   address = EXCLUDED.address,
			   active = EXCLUDED.active,
			   last_synced_at = EXCLUDED.last_synced_at`,
			p.GLN, p.CompanyName, p.AuthorizedContact, p.Email,
			p.Phone, p.City, p.Address, p.Active, p.LastSyncedAt)
	}

	if err := flushBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("upsert tenant partners: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert tenant partners: %w", err)
	}
	return nil
}

// --- Profile ---

func (s *TenantStore) SaveProfile(ctx context.Context, tenantID string, owner tenant.OwnerMetadata) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenant_profile (tenant_id, display_name, region, is_completed)
		 VALUES ($1, $2, $3, false)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   region = EXCLUDED.region`,
		tenantID, owner.DisplayName, owner.Region)
	if err != nil {
		return fmt.Errorf("save tenant profile %s: %w", tenantID, err)
	}
	return nil
}
