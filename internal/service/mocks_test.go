package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/RxMesh/PharmaCore/internal/config"
	"github.com/RxMesh/PharmaCore/internal/domain"
	"github.com/RxMesh/PharmaCore/internal/domain/catalog"
	"github.com/RxMesh/PharmaCore/internal/domain/registry"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
	"github.com/RxMesh/PharmaCore/internal/port/database"
	"github.com/RxMesh/PharmaCore/internal/port/tenantdb"
	"github.com/RxMesh/PharmaCore/internal/port/upstream"
)

// Compile-time interface checks for the mocks.
var (
	_ database.Store       = (*mockStore)(nil)
	_ upstream.Feed        = (*mockFeed)(nil)
	_ tenantdb.Store       = (*mockTenantStore)(nil)
	_ tenantdb.Connector   = (*mockConnector)(nil)
	_ tenantdb.Provisioner = (*mockProvisioner)(nil)
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testSyncConfig() config.Sync {
	return config.Sync{BatchSize: 2, PageSize: 2, MaxParallelTenants: 2}
}

// mockStore is an in-memory implementation of the central store.
type mockStore struct {
	products map[string]catalog.CentralProduct
	partners map[string]registry.Partner
	tenants  map[string]tenant.Record

	// Error hooks
	upsertProductsErr error
	upsertPartnersErr error
	listProductsErr   error
	updateStatusErr   error

	// upsertProductCalls counts committed product batches.
	upsertProductCalls int
	// failProductBatchAfter fails the Nth upsert call (1-based) when > 0.
	failProductBatchAfter int
}

func newMockStore() *mockStore {
	return &mockStore{
		products: make(map[string]catalog.CentralProduct),
		partners: make(map[string]registry.Partner),
		tenants:  make(map[string]tenant.Record),
	}
}

func (m *mockStore) GetProductsByGTIN(_ context.Context, gtins []string) (map[string]catalog.CentralProduct, error) {
	out := make(map[string]catalog.CentralProduct)
	for _, g := range gtins {
		if p, ok := m.products[g]; ok {
			out[g] = p
		}
	}
	return out, nil
}

func (m *mockStore) UpsertProducts(_ context.Context, products []catalog.CentralProduct) error {
	m.upsertProductCalls++
	if m.upsertProductsErr != nil {
		return m.upsertProductsErr
	}
	if m.failProductBatchAfter > 0 && m.upsertProductCalls >= m.failProductBatchAfter {
		return domain.ErrBatchPersist
	}
	for _, p := range products {
		m.products[p.GTIN] = p
	}
	return nil
}

func (m *mockStore) ListProductsPage(_ context.Context, afterGTIN string, limit int) ([]catalog.CentralProduct, error) {
	if m.listProductsErr != nil {
		return nil, m.listProductsErr
	}
	keys := make([]string, 0, len(m.products))
	for k := range m.products {
		if k > afterGTIN {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]catalog.CentralProduct, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.products[k])
	}
	return out, nil
}

func (m *mockStore) GetPartnersByGLN(_ context.Context, glns []string) (map[string]registry.Partner, error) {
	out := make(map[string]registry.Partner)
	for _, g := range glns {
		if p, ok := m.partners[g]; ok {
			out[g] = p
		}
	}
	return out, nil
}

func (m *mockStore) UpsertPartners(_ context.Context, partners []registry.Partner) error {
	if m.upsertPartnersErr != nil {
		return m.upsertPartnersErr
	}
	for _, p := range partners {
		m.partners[p.GLN] = p
	}
	return nil
}

func (m *mockStore) ListPartnersPage(_ context.Context, afterGLN string, limit int) ([]registry.Partner, error) {
	keys := make([]string, 0, len(m.partners))
	for k := range m.partners {
		if k > afterGLN {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]registry.Partner, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.partners[k])
	}
	return out, nil
}

func (m *mockStore) CreateTenantRecord(_ context.Context, rec *tenant.Record) error {
	if existing, ok := m.tenants[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = time.Now()
	m.tenants[rec.ID] = *rec
	return nil
}

func (m *mockStore) GetTenantRecord(_ context.Context, id string) (*tenant.Record, error) {
	rec, ok := m.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (m *mockStore) ListTenantRecords(_ context.Context) ([]tenant.Record, error) {
	ids := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]tenant.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.tenants[id])
	}
	return out, nil
}

func (m *mockStore) UpdateTenantStatus(_ context.Context, id string, status tenant.Status) error {
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	rec, ok := m.tenants[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	m.tenants[id] = rec
	return nil
}

// addProvisionedTenant seeds the mock with a ready tenant and its database.
func (m *mockStore) addProvisionedTenant(id string) {
	m.tenants[id] = tenant.Record{
		ID:           id,
		DatabaseName: "pharm_" + id,
		DSN:          "postgres://test@localhost/pharm_" + id,
		Status:       tenant.StatusProvisioned,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

// mockFeed returns canned snapshots.
type mockFeed struct {
	products []upstream.Product
	partners []upstream.Partner

	productsErr error
	partnersErr error
}

func (m *mockFeed) FetchProducts(_ context.Context) ([]upstream.Product, error) {
	return m.products, m.productsErr
}

func (m *mockFeed) FetchPartners(_ context.Context) ([]upstream.Partner, error) {
	return m.partners, m.partnersErr
}

// mockTenantStore is an in-memory tenant database.
type mockTenantStore struct {
	products map[string]catalog.TenantProduct
	partners map[string]registry.Partner
	profiles map[string]tenant.OwnerMetadata

	applyErr     error
	savePriceErr error
	profileErr   error

	closed bool
}

func newMockTenantStore() *mockTenantStore {
	return &mockTenantStore{
		products: make(map[string]catalog.TenantProduct),
		partners: make(map[string]registry.Partner),
		profiles: make(map[string]tenant.OwnerMetadata),
	}
}

func (m *mockTenantStore) GetProductsByGTIN(_ context.Context, gtins []string) (map[string]catalog.TenantProduct, error) {
	out := make(map[string]catalog.TenantProduct)
	for _, g := range gtins {
		if p, ok := m.products[g]; ok {
			out[g] = p
		}
	}
	return out, nil
}

func (m *mockTenantStore) ApplyProducts(_ context.Context, inserts []catalog.TenantProduct, updates []catalog.CentralProduct) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	for _, p := range inserts {
		if _, ok := m.products[p.GTIN]; !ok {
			m.products[p.GTIN] = p
		}
	}
	for _, c := range updates {
		row, ok := m.products[c.GTIN]
		if !ok {
			continue
		}
		row.ApplyUpstream(c)
		m.products[c.GTIN] = row
	}
	return nil
}

func (m *mockTenantStore) GetProduct(_ context.Context, gtin string) (*catalog.TenantProduct, error) {
	p, ok := m.products[gtin]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *mockTenantStore) SavePrice(_ context.Context, p *catalog.TenantProduct) error {
	if m.savePriceErr != nil {
		return m.savePriceErr
	}
	row, ok := m.products[p.GTIN]
	if !ok {
		return domain.ErrNotFound
	}
	row.Price = p.Price
	row.PriceHistory = p.PriceHistory
	m.products[p.GTIN] = row
	return nil
}

func (m *mockTenantStore) UpsertPartners(_ context.Context, partners []registry.Partner) error {
	for _, p := range partners {
		m.partners[p.GLN] = p
	}
	return nil
}

func (m *mockTenantStore) SaveProfile(_ context.Context, tenantID string, owner tenant.OwnerMetadata) error {
	if m.profileErr != nil {
		return m.profileErr
	}
	m.profiles[tenantID] = owner
	return nil
}

func (m *mockTenantStore) Close() {
	m.closed = true
}

// mockConnector hands out fixed tenant stores by tenant ID. Connect is
// called from concurrent sync workers, so the maps are mutex-guarded.
type mockConnector struct {
	mu         sync.Mutex
	stores     map[string]*mockTenantStore
	connectErr map[string]error
}

func newMockConnector() *mockConnector {
	return &mockConnector{
		stores:     make(map[string]*mockTenantStore),
		connectErr: make(map[string]error),
	}
}

func (m *mockConnector) Connect(_ context.Context, rec *tenant.Record) (tenantdb.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.connectErr[rec.ID]; err != nil {
		return nil, err
	}
	ts, ok := m.stores[rec.ID]
	if !ok {
		ts = newMockTenantStore()
		m.stores[rec.ID] = ts
	}
	return ts, nil
}

// mockProvisioner records provisioning calls against an in-memory cluster.
type mockProvisioner struct {
	databases map[string]bool
	schemas   map[string]bool

	existsErr       error
	createDBErr     error
	createSchemaErr error
}

func newMockProvisioner() *mockProvisioner {
	return &mockProvisioner{
		databases: make(map[string]bool),
		schemas:   make(map[string]bool),
	}
}

func (m *mockProvisioner) DatabaseExists(_ context.Context, dbName string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.databases[dbName], nil
}

func (m *mockProvisioner) CreateDatabase(_ context.Context, dbName string) error {
	if m.createDBErr != nil {
		return m.createDBErr
	}
	m.databases[dbName] = true
	return nil
}

func (m *mockProvisioner) CreateSchema(_ context.Context, dsn string) error {
	if m.createSchemaErr != nil {
		return m.createSchemaErr
	}
	m.schemas[dsn] = true
	return nil
}

func (m *mockProvisioner) DSN(dbName string) string {
	return "postgres://test@localhost/" + dbName
}
