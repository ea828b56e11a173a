// Package database defines the central store port (interface).
package database

import (
	"context"

	"github.com/RxMesh/PharmaCore/internal/domain/catalog"
	"github.com/RxMesh/PharmaCore/internal/domain/registry"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
)

// Store is the port interface for the platform-owned central database. It is
// written only by the ingest adapters and the provisioner; fan-out reads it.
type Store interface {
	// Central catalog
	GetProductsByGTIN(ctx context.Context, gtins []string) (map[string]catalog.CentralProduct, error)
	// UpsertProducts writes one batch in a single transaction: existing
	// rows get every upstream field overwritten, the rest are inserted.
	// The batch commits or fails as a whole.
	UpsertProducts(ctx context.Context, products []catalog.CentralProduct) error
	// ListProductsPage returns up to limit products with GTIN > afterGTIN
	// in GTIN order. An empty afterGTIN starts from the beginning.
	ListProductsPage(ctx context.Context, afterGTIN string, limit int) ([]catalog.CentralProduct, error)

	// Partner registry
	GetPartnersByGLN(ctx context.Context, glns []string) (map[string]registry.Partner, error)
	UpsertPartners(ctx context.Context, partners []registry.Partner) error
	ListPartnersPage(ctx context.Context, afterGLN string, limit int) ([]registry.Partner, error)

	// Tenant records
	CreateTenantRecord(ctx context.Context, rec *tenant.Record) error
	GetTenantRecord(ctx context.Context, id string) (*tenant.Record, error)
	ListTenantRecords(ctx context.Context) ([]tenant.Record, error)
	UpdateTenantStatus(ctx context.Context, id string, status tenant.Status) error
}
