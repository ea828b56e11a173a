package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RxMesh/PharmaCore/internal/config"
)

// tenantSchemaDDL is the fixed schema every tenant database receives:
// exactly three tables. Provisioning callers validate tenant identifiers
// before any of this runs; the DDL itself takes no interpolated input.
var tenantSchemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS catalog (
		gtin              text PRIMARY KEY,
		name              text NOT NULL,
		manufacturer_gln  text NOT NULL DEFAULT '',
		manufacturer_name text NOT NULL DEFAULT '',
		price             numeric(10,2) NOT NULL DEFAULT 0,
		price_history     jsonb NOT NULL DEFAULT '[]',
		active            boolean NOT NULL DEFAULT true,
		imported          boolean NOT NULL DEFAULT false,
		last_synced_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS partner_registry (
		gln                text PRIMARY KEY,
		company_name       text NOT NULL,
		authorized_contact text NOT NULL DEFAULT '',
		email              text NOT NULL DEFAULT '',
		phone              text NOT NULL DEFAULT '',
		city               text NOT NULL DEFAULT '',
		address            text NOT NULL DEFAULT '',
		active             boolean NOT NULL DEFAULT true,
		last_synced_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tenant_profile (
		tenant_id    text PRIMARY KEY,
		display_name text NOT NULL,
		region       text NOT NULL DEFAULT '',
		is_completed boolean NOT NULL DEFAULT false
	)`,
}

// Provisioner implements tenantdb.Provisioner using a maintenance connection
// on the tenant database cluster.
type Provisioner struct {
	admin *pgxpool.Pool
	cfg   config.TenantDB
}

// NewProvisioner connects to the maintenance database named in cfg.AdminDSN.
// The connecting role needs CREATEDB rights.
func NewProvisioner(ctx context.Context, cfg config.TenantDB) (*Provisioner, error) {
	admin, err := pgxpool.New(ctx, cfg.AdminDSN)
	if err != nil {
		return nil, fmt.Errorf("connect admin dsn: %w", err)
	}
	if err := admin.Ping(ctx); err != nil {
		admin.Close()
		return nil, fmt.Errorf("ping admin dsn: %w", err)
	}
	return &Provisioner{admin: admin, cfg: cfg}, nil
}

// Close releases the maintenance connection pool.
func (p *Provisioner) Close() {
	p.admin.Close()
}

// DatabaseExists reports whether the named database already exists.
func (p *Provisioner) DatabaseExists(ctx context.Context, dbName string) (bool, error) {
	var exists bool
	err := p.admin.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, dbName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check database %s: %w", dbName, err)
	}
	return exists, nil
}

// CreateDatabase creates the named database. CREATE DATABASE cannot take
// bind parameters, so the identifier is quoted with pgx's sanitizer; dbName
// is always derived from an allow-list-validated tenant id upstream of here.
func (p *Provisioner) CreateDatabase(ctx context.Context, dbName string) error {
	ident := pgx.Identifier{dbName}.Sanitize()
	if _, err := p.admin.Exec(ctx, "CREATE DATABASE "+ident); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

// CreateSchema connects to the tenant database and executes the fixed
// three-table schema DDL on a single short-lived connection.
func (p *Provisioner) CreateSchema(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect tenant database: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	for _, ddl := range tenantSchemaDDL {
		if _, err := conn.Exec(ctx, ddl); err != nil {
			table := ddlTableName(ddl)
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

// DSN builds the tenant database connection string by swapping the database
// name into the admin DSN.
func (p *Provisioner) DSN(dbName string) string {
	u, err := url.Parse(p.cfg.AdminDSN)
	if err != nil {
		return ""
	}
	u.Path = "/" + dbName
	return u.String()
}

// ddlTableName extracts the table name from a CREATE TABLE statement for
// error messages.
func ddlTableName(ddl string) string {
	fields := strings.Fields(ddl)
	for i, f := range fields {
		if strings.EqualFold(f, "EXISTS") && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return "?"
}
