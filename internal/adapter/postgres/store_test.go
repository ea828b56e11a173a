package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RxMesh/PharmaCore/internal/adapter/postgres"
	"github.com/RxMesh/PharmaCore/internal/domain"
	"github.com/RxMesh/PharmaCore/internal/domain/catalog"
	"github.com/RxMesh/PharmaCore/internal/domain/registry"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
)

// setupStore runs migrations against DATABASE_URL and returns a ready Store.
// The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

// testKey returns a random key with the given prefix so runs never collide.
func testKey(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func TestStore_ProductUpsertRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	gtin := testKey("gt")
	p := catalog.CentralProduct{
		GTIN:             gtin,
		Name:             "Ibuprofen 400mg",
		ManufacturerGLN:  "4012345000009",
		ManufacturerName: "Pharma GmbH",
		Active:           true,
		RawPayload:       json.RawMessage(`{"gtin":"` + gtin + `"}`),
		LastSyncedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}

	if err := store.UpsertProducts(ctx, []catalog.CentralProduct{p}); err != nil {
		t.Fatalf("UpsertProducts: %v", err)
	}

	got, err := store.GetProductsByGTIN(ctx, []string{gtin})
	if err != nil {
		t.Fatalf("GetProductsByGTIN: %v", err)
	}
	stored, ok := got[gtin]
	if !ok {
		t.Fatal("inserted product not found")
	}
	if stored.Name != p.Name || stored.ManufacturerGLN != p.ManufacturerGLN || !stored.Active {
		t.Errorf("stored = %+v", stored)
	}
	if !stored.EqualUpstream(p) {
		t.Errorf("stored row differs from inserted: %+v vs %+v", stored, p)
	}

	// Conflict overwrites every upstream field.
	p.Name = "Ibuprofen 400mg N2"
	p.Active = false
	if err := store.UpsertProducts(ctx, []catalog.CentralProduct{p}); err != nil {
		t.Fatalf("second UpsertProducts: %v", err)
	}
	got, err = store.GetProductsByGTIN(ctx, []string{gtin})
	if err != nil {
		t.Fatalf("GetProductsByGTIN: %v", err)
	}
	if stored = got[gtin]; stored.Name != "Ibuprofen 400mg N2" || stored.Active {
		t.Errorf("overwrite failed: %+v", stored)
	}
}

func TestStore_ListProductsPage(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// A random prefix keeps this run's keys in a private keyspace range.
	prefix := testKey("pg")
	var products []catalog.CentralProduct
	for _, suffix := range []string{"a", "b", "c", "d", "e"} {
		products = append(products, catalog.CentralProduct{
			GTIN:         prefix + suffix,
			Name:         "paged " + suffix,
			LastSyncedAt: time.Now(),
		})
	}
	if err := store.UpsertProducts(ctx, products); err != nil {
		t.Fatalf("UpsertProducts: %v", err)
	}

	var seen []string
	after := prefix
walk:
	for {
		page, err := store.ListProductsPage(ctx, after, 2)
		if err != nil {
			t.Fatalf("ListProductsPage: %v", err)
		}
		if len(page) == 0 {
			break
		}
		if len(page) > 2 {
			t.Fatalf("page size %d exceeds limit 2", len(page))
		}
		for _, p := range page {
			if !strings.HasPrefix(p.GTIN, prefix) {
				// Walked past this run's keyspace.
				break walk
			}
			seen = append(seen, p.GTIN)
		}
		after = page[len(page)-1].GTIN
	}

	if len(seen) != 5 {
		t.Fatalf("paged through %d products, want 5: %v", len(seen), seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("page order broken: %v", seen)
		}
	}
}

func TestStore_PartnerUpsertRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	gln := testKey("gl")
	p := registry.Partner{
		GLN:               gln,
		CompanyName:       "Pharma GmbH",
		AuthorizedContact: "Dr. Weber",
		Email:             "weber@pharma.example",
		City:              "Hamburg",
		Active:            true,
		LastSyncedAt:      time.Now(),
	}
	if err := store.UpsertPartners(ctx, []registry.Partner{p}); err != nil {
		t.Fatalf("UpsertPartners: %v", err)
	}

	got, err := store.GetPartnersByGLN(ctx, []string{gln})
	if err != nil {
		t.Fatalf("GetPartnersByGLN: %v", err)
	}
	stored, ok := got[gln]
	if !ok {
		t.Fatal("inserted partner not found")
	}
	if stored.CompanyName != "Pharma GmbH" || stored.City != "Hamburg" {
		t.Errorf("stored = %+v", stored)
	}

	p.City = "Berlin"
	if err := store.UpsertPartners(ctx, []registry.Partner{p}); err != nil {
		t.Fatalf("second UpsertPartners: %v", err)
	}
	got, _ = store.GetPartnersByGLN(ctx, []string{gln})
	if got[gln].City != "Berlin" {
		t.Errorf("overwrite failed: %+v", got[gln])
	}
}

func TestStore_TenantRecordLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	id := testKey("t")
	rec := &tenant.Record{
		ID:           id,
		DatabaseName: "pharm_" + id,
		DSN:          "postgres://localhost/pharm_" + id,
		Status:       tenant.StatusPending,
	}
	if err := store.CreateTenantRecord(ctx, rec); err != nil {
		t.Fatalf("CreateTenantRecord: %v", err)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("timestamps not returned on create")
	}

	got, err := store.GetTenantRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetTenantRecord: %v", err)
	}
	if got.Status != tenant.StatusPending || got.DatabaseName != rec.DatabaseName {
		t.Errorf("record = %+v", got)
	}

	if err := store.UpdateTenantStatus(ctx, id, tenant.StatusProvisioned); err != nil {
		t.Fatalf("UpdateTenantStatus: %v", err)
	}
	got, _ = store.GetTenantRecord(ctx, id)
	if got.Status != tenant.StatusProvisioned {
		t.Errorf("status = %s, want provisioned", got.Status)
	}

	recs, err := store.ListTenantRecords(ctx)
	if err != nil {
		t.Fatalf("ListTenantRecords: %v", err)
	}
	found := false
	for _, r := range recs {
		if r.ID == id {
			found = true
		}
	}
	if !found {
		t.Error("tenant missing from list")
	}

	// Re-creating the same tenant is an upsert, not an error.
	rec.Status = tenant.StatusPending
	if err := store.CreateTenantRecord(ctx, rec); err != nil {
		t.Fatalf("repeat CreateTenantRecord: %v", err)
	}
}

func TestStore_TenantRecordNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetTenantRecord(context.Background(), "does_not_exist_"+testKey(""))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	err = store.UpdateTenantStatus(context.Background(), "does_not_exist", tenant.StatusFailed)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on status update, got %v", err)
	}
}
