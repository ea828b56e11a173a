// Package tenantdb defines the ports for per-tenant databases: the store a
// fan-out run writes through, and the connector/provisioner that produce it.
package tenantdb

import (
	"context"

	"github.com/RxMesh/PharmaCore/internal/domain/catalog"
	"github.com/RxMesh/PharmaCore/internal/domain/registry"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
)

// Store is the port interface for one tenant's isolated database.
type Store interface {
	// Catalog
	GetProductsByGTIN(ctx context.Context, gtins []string) (map[string]catalog.TenantProduct, error)
	// ApplyProducts writes one fan-out batch in a single transaction:
	// inserts contains brand-new tenant rows, updates carries central rows
	// whose upstream-owned fields overwrite the matching tenant rows.
	// Price and price history columns are not part of any update statement.
	ApplyProducts(ctx context.Context, inserts []catalog.TenantProduct, updates []catalog.CentralProduct) error
	// GetProduct returns a single tenant row with its price history.
	GetProduct(ctx context.Context, gtin string) (*catalog.TenantProduct, error)
	// SavePrice persists a tenant-owned price change (price + appended
	// history). It is the only write path touching price columns.
	SavePrice(ctx context.Context, p *catalog.TenantProduct) error

	// Partner registry (pure mirror, always overwrite-or-insert)
	UpsertPartners(ctx context.Context, partners []registry.Partner) error

	// Profile
	SaveProfile(ctx context.Context, tenantID string, owner tenant.OwnerMetadata) error

	// Close releases the tenant connection pool.
	Close()
}

// Connector opens a Store for a provisioned tenant.
type Connector interface {
	Connect(ctx context.Context, rec *tenant.Record) (Store, error)
}

// Provisioner performs the database-level provisioning steps. Implementations
// must only ever receive identifiers derived from validated tenant IDs.
type Provisioner interface {
	// DatabaseExists reports whether the named database already exists.
	DatabaseExists(ctx context.Context, dbName string) (bool, error)
	// CreateDatabase creates the named database.
	CreateDatabase(ctx context.Context, dbName string) error
	// CreateSchema connects to the tenant database and executes the fixed
	// schema DDL (catalog, partner_registry, tenant_profile).
	CreateSchema(ctx context.Context, dsn string) error
	// DSN builds the connection string for the named tenant database.
	DSN(dbName string) string
}
