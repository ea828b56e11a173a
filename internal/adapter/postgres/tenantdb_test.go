package postgres_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RxMesh/PharmaCore/internal/adapter/postgres"
	"github.com/RxMesh/PharmaCore/internal/config"
	"github.com/RxMesh/PharmaCore/internal/domain"
	"github.com/RxMesh/PharmaCore/internal/domain/catalog"
	"github.com/RxMesh/PharmaCore/internal/domain/registry"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
)

// setupTenantStore applies the tenant schema DDL to the DATABASE_URL database
// and returns a TenantStore over it. The fixed-schema DDL is idempotent, so
// sharing the test database between runs is safe.
func setupTenantStore(t *testing.T) *postgres.TenantStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	prov, err := postgres.NewProvisioner(ctx, config.TenantDB{
		AdminDSN:       dsn,
		DatabasePrefix: "pharm_",
	})
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}
	t.Cleanup(prov.Close)

	if err := prov.CreateSchema(ctx, dsn); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewTenantStore(pool)
}

func tenantCatalogRow(gtin string) catalog.TenantProduct {
	return catalog.NewTenantProduct(catalog.CentralProduct{
		GTIN:         gtin,
		Name:         "Ibuprofen 400mg",
		Active:       true,
		LastSyncedAt: time.Now().UTC().Truncate(time.Microsecond),
	})
}

func TestTenantStore_ApplyProductsInsertThenUpdate(t *testing.T) {
	store := setupTenantStore(t)
	ctx := context.Background()

	gtin := testKey("tg")
	if err := store.ApplyProducts(ctx, []catalog.TenantProduct{tenantCatalogRow(gtin)}, nil); err != nil {
		t.Fatalf("ApplyProducts insert: %v", err)
	}

	got, err := store.GetProduct(ctx, gtin)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Name != "Ibuprofen 400mg" || got.Price != 0 || len(got.PriceHistory) != 0 {
		t.Errorf("inserted row = %+v", got)
	}

	// An update touches upstream columns only.
	update := catalog.CentralProduct{
		GTIN:         gtin,
		Name:         "Ibuprofen 400mg N2",
		Active:       false,
		LastSyncedAt: time.Now(),
	}
	if err := store.ApplyProducts(ctx, nil, []catalog.CentralProduct{update}); err != nil {
		t.Fatalf("ApplyProducts update: %v", err)
	}
	got, err = store.GetProduct(ctx, gtin)
	if err != nil {
		t.Fatalf("GetProduct after update: %v", err)
	}
	if got.Name != "Ibuprofen 400mg N2" || got.Active {
		t.Errorf("upstream columns not refreshed: %+v", got)
	}
}

func TestTenantStore_InsertConflictLeavesRowAlone(t *testing.T) {
	store := setupTenantStore(t)
	ctx := context.Background()

	gtin := testKey("tc")
	original := tenantCatalogRow(gtin)
	if err := store.ApplyProducts(ctx, []catalog.TenantProduct{original}, nil); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// Give the row a tenant-owned price, then re-insert the seed row.
	priced, _ := store.GetProduct(ctx, gtin)
	priced.RecordPrice(12.99, time.Now(), "jdoe", "")
	if err := store.SavePrice(ctx, priced); err != nil {
		t.Fatalf("SavePrice: %v", err)
	}

	reseed := tenantCatalogRow(gtin)
	reseed.Name = "Different Name"
	if err := store.ApplyProducts(ctx, []catalog.TenantProduct{reseed}, nil); err != nil {
		t.Fatalf("conflicting insert: %v", err)
	}

	got, err := store.GetProduct(ctx, gtin)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Name != "Ibuprofen 400mg" {
		t.Errorf("conflicting insert overwrote the row: %+v", got)
	}
	if got.Price != 12.99 || len(got.PriceHistory) != 1 {
		t.Errorf("price lost on conflicting insert: %+v", got)
	}
}

func TestTenantStore_SavePriceRoundTripsHistory(t *testing.T) {
	store := setupTenantStore(t)
	ctx := context.Background()

	gtin := testKey("tp")
	if err := store.ApplyProducts(ctx, []catalog.TenantProduct{tenantCatalogRow(gtin)}, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	p, err := store.GetProduct(ctx, gtin)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	changedAt := time.Now().UTC().Truncate(time.Microsecond)
	p.RecordPrice(10.00, changedAt, "jdoe", "initial")
	p.RecordPrice(11.50, changedAt.Add(time.Hour), "asmith", "supplier increase")
	if err := store.SavePrice(ctx, p); err != nil {
		t.Fatalf("SavePrice: %v", err)
	}

	got, err := store.GetProduct(ctx, gtin)
	if err != nil {
		t.Fatalf("GetProduct after SavePrice: %v", err)
	}
	if got.Price != 11.50 {
		t.Errorf("price = %v, want 11.50", got.Price)
	}
	if len(got.PriceHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(got.PriceHistory))
	}
	first := got.PriceHistory[0]
	if first.Price != 10.00 || first.Actor != "jdoe" || first.Reason != "initial" {
		t.Errorf("first history entry = %+v", first)
	}
}

func TestTenantStore_SavePriceUnknownProduct(t *testing.T) {
	store := setupTenantStore(t)

	ghost := tenantCatalogRow(testKey("tx"))
	err := store.SavePrice(context.Background(), &ghost)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTenantStore_UpsertPartnersAndProfile(t *testing.T) {
	store := setupTenantStore(t)
	ctx := context.Background()

	gln := testKey("tl")
	partner := registry.Partner{
		GLN:          gln,
		CompanyName:  "Pharma GmbH",
		City:         "Hamburg",
		Active:       true,
		LastSyncedAt: time.Now(),
	}
	if err := store.UpsertPartners(ctx, []registry.Partner{partner}); err != nil {
		t.Fatalf("UpsertPartners: %v", err)
	}
	partner.City = "Berlin"
	if err := store.UpsertPartners(ctx, []registry.Partner{partner}); err != nil {
		t.Fatalf("second UpsertPartners: %v", err)
	}

	tenantID := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	owner := tenant.OwnerMetadata{DisplayName: "Apotheke Nord", Region: "DE-HH"}
	if err := store.SaveProfile(ctx, tenantID, owner); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	// Saving again updates in place.
	owner.Region = "DE-BE"
	if err := store.SaveProfile(ctx, tenantID, owner); err != nil {
		t.Fatalf("second SaveProfile: %v", err)
	}
}

func TestProvisioner_DSNAndExists(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	prov, err := postgres.NewProvisioner(ctx, config.TenantDB{AdminDSN: dsn, DatabasePrefix: "pharm_"})
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}
	defer prov.Close()

	derived := prov.DSN("pharm_demo")
	if !strings.Contains(derived, "/pharm_demo") {
		t.Errorf("derived DSN %q does not route to pharm_demo", derived)
	}

	exists, err := prov.DatabaseExists(ctx, "definitely_missing_"+strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err != nil {
		t.Fatalf("DatabaseExists: %v", err)
	}
	if exists {
		t.Error("random database name reported as existing")
	}
}
