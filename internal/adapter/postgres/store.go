package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RxMesh/PharmaCore/internal/domain/catalog"
	"github.com/RxMesh/PharmaCore/internal/domain/registry"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Central catalog ---

const centralProductColumns = `gtin, name, manufacturer_gln, manufacturer_name, active, imported, raw_payload, last_synced_at`

func scanCentralProduct(row scannable) (catalog.CentralProduct, error) {
	var p catalog.CentralProduct
	err := row.Scan(&p.GTIN, &p.Name, &p.ManufacturerGLN, &p.ManufacturerName,
		&p.Active, &p.Imported, &p.RawPayload, &p.LastSyncedAt)
	return p, err
}

func (s *Store) GetProductsByGTIN(ctx context.Context, gtins []string) (map[string]catalog.CentralProduct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+centralProductColumns+` FROM central_catalog WHERE gtin = ANY($1)`, gtins)
	if err != nil {
		return nil, fmt.Errorf("get products by gtin: %w", err)
	}
	defer rows.Close()

	products := make(map[string]catalog.CentralProduct, len(gtins))
	for rows.Next() {
		p, err := scanCentralProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan central product: %w", err)
		}
		products[p.GTIN] = p
	}
	return products, rows.Err()
}

// UpsertProducts writes one ingest batch in a single transaction. Central
// catalog rows are entirely upstream-owned, so conflicts overwrite every
// field. Rows are never deleted; deactivation arrives as active=false.
func (s *Store) UpsertProducts(ctx context.Context, products []catalog.CentralProduct) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert products: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := range products {
		p := &products[i]
		batch.Queue(
			`INSERT INTO central_catalog (`+centralProductColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (gtin) DO UPDATE SET
			   name = EXCLUDED.name,
			   manufacturer_gln = EXCLUDED.manufacturer_gln,
			   manufacturer_name = EXCLUDED.manufacturer_name,
			   active = EXCLUDED.active,
			   imported = EXCLUDED.imported,
			   raw_payload = EXCLUDED.raw_payload,
			   last_synced_at = EXCLUDED.last_synced_at`,
			p.GTIN, p.Name, p.ManufacturerGLN, p.ManufacturerName,
			p.Active, p.Imported, p.RawPayload, p.LastSyncedAt)
	}

	if err := flushBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("upsert products: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert products: %w", err)
	}
	return nil
}

func (s *Store) ListProductsPage(ctx context.Context, afterGTIN string, limit int) ([]catalog.CentralProduct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+centralProductColumns+` FROM central_catalog
		 WHERE gtin > $1 ORDER BY gtin ASC LIMIT $2`, afterGTIN, limit)
	if err != nil {
		return nil, fmt.Errorf("list products page: %w", err)
	}
	defer rows.Close()

	var products []catalog.CentralProduct
	for rows.Next() {
		p, err := scanCentralProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan central product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// --- Partner registry ---

const partnerColumns = `gln, company_name, authorized_contact, email, phone, city, address, active, last_synced_at`

func scanPartner(row scannable) (registry.Partner, error) {
	var p registry.Partner
	err := row.Scan(&p.GLN, &p.CompanyName, &p.AuthorizedContact, &p.Email,
		&p.Phone, &p.City, &p.Address, &p.Active, &p.LastSyncedAt)
	return p, err
}

func (s *Store) GetPartnersByGLN(ctx context.Context, glns []string) (map[string]registry.Partner, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+partnerColumns+` FROM partner_registry WHERE gln = ANY($1)`, glns)
	if err != nil {
		return nil, fmt.Errorf("get partners by gln: %w", err)
	}
	defer rows.Close()

	partners := make(map[string]registry.Partner, len(glns))
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		partners[p.GLN] = p
	}
	return partners, rows.Err()
}

func (s *Store) UpsertPartners(ctx context.Context, partners []registry.Partner) error {
	if len(partners) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert partners: %w", err)
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
		return fmt.Errorf("upsert partners: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert partners: %w", err)
	}
	return nil
}

func (s *Store) ListPartnersPage(ctx context.Context, afterGLN string, limit int) ([]registry.Partner, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+partnerColumns+` FROM partner_registry
		 WHERE gln > $1 ORDER BY gln ASC LIMIT $2`, afterGLN, limit)
	if err != nil {
		return nil, fmt.Errorf("list partners page: %w", err)
	}
	defer rows.Close()

	var partners []registry.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

// --- Tenant records ---

func (s *Store) CreateTenantRecord(ctx context.Context, rec *tenant.Record) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (id, database_name, dsn, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
		   database_name = EXCLUDED.database_name,
		   dsn = EXCLUDED.dsn,
		   status = EXCLUDED.status,
		   updated_at = now()
		 RETURNING created_at, updated_at`,
		rec.ID, rec.DatabaseName, rec.DSN, rec.Status,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create tenant record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) GetTenantRecord(ctx context.Context, id string) (*tenant.Record, error) {
	var rec tenant.Record
	err := s.pool.QueryRow(ctx,
		`SELECT id, database_name, dsn, status, created_at, updated_at
		 FROM tenants WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.DatabaseName, &rec.DSN, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant record %s", id)
	}
	return &rec, nil
}

func (s *Store) ListTenantRecords(ctx context.Context) ([]tenant.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, database_name, dsn, status, created_at, updated_at
		 FROM tenants ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenant records: %w", err)
	}
	defer rows.Close()

	var records []tenant.Record
	for rows.Next() {
		var rec tenant.Record
		if err := rows.Scan(&rec.ID, &rec.DatabaseName, &rec.DSN, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) UpdateTenantStatus(ctx context.Context, id string, status tenant.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return execExpectOne(tag, err, "update tenant %s status", id)
}

// flushBatch sends a queued batch through tx and surfaces the first error.
func flushBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	br := tx.SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}
