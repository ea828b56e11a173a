package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/RxMesh/PharmaCore/internal/adapter/otel"
	"github.com/RxMesh/PharmaCore/internal/config"
	"github.com/RxMesh/PharmaCore/internal/domain"
	"github.com/RxMesh/PharmaCore/internal/domain/catalog"
	"github.com/RxMesh/PharmaCore/internal/domain/syncrun"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
	"github.com/RxMesh/PharmaCore/internal/logger"
	"github.com/RxMesh/PharmaCore/internal/port/database"
	"github.com/RxMesh/PharmaCore/internal/port/messagequeue"
	"github.com/RxMesh/PharmaCore/internal/port/tenantdb"
)

// fanout carries the collaborators shared by the catalog and registry syncers.
type fanout struct {
	store     database.Store
	directory *Directory
	connector tenantdb.Connector
	pageSize  int
	parallel  int64
	log       *slog.Logger

	queue   messagequeue.Queue // optional
	metrics *otel.Metrics      // optional
	now     func() time.Time
}

func newFanout(store database.Store, dir *Directory, conn tenantdb.Connector, cfg config.Sync, log *slog.Logger) fanout {
	return fanout{
		store:     store,
		directory: dir,
		connector: conn,
		pageSize:  cfg.PageSize,
		parallel:  int64(cfg.MaxParallelTenants),
		log:       log,
		now:       time.Now,
	}
}

// openTenant resolves a tenant and opens its database. Only provisioned
// tenants may be synced.
func (f *fanout) openTenant(ctx context.Context, tenantID string) (tenant.Record, tenantdb.Store, error) {
	rec, err := f.directory.Get(ctx, tenantID)
	if err != nil {
		return tenant.Record{}, nil, err
	}
	if rec.Status != tenant.StatusProvisioned {
		return tenant.Record{}, nil, fmt.Errorf("tenant %q has status %q: %w",
			tenantID, rec.Status, domain.ErrTenantNotProvisioned)
	}
	db, err := f.connector.Connect(ctx, &rec)
	if err != nil {
		return tenant.Record{}, nil, fmt.Errorf("connect tenant %q: %w", tenantID, err)
	}
	return rec, db, nil
}

func (f *fanout) countFanoutRun(ctx context.Context) {
	if f.metrics != nil {
		f.metrics.FanoutRuns.Add(ctx, 1)
	}
}

func (f *fanout) countFailure(ctx context.Context) {
	if f.metrics != nil {
		f.metrics.RunsFailed.Add(ctx, 1)
	}
}

func (f *fanout) observeBatch(ctx context.Context, start time.Time) {
	if f.metrics != nil {
		f.metrics.BatchDuration.Record(ctx, f.now().Sub(start).Seconds())
	}
}

// CatalogFanout distributes the central catalog into tenant databases. Tenant
// price columns are never written by a sync pass, in either mode.
type CatalogFanout struct {
	fanout
}

// NewCatalogFanout creates a catalog fan-out syncer.
func NewCatalogFanout(store database.Store, dir *Directory, conn tenantdb.Connector, cfg config.Sync, log *slog.Logger) *CatalogFanout {
	return &CatalogFanout{fanout: newFanout(store, dir, conn, cfg, log)}
}

// SetQueue attaches an event queue for publishing run results.
func (c *CatalogFanout) SetQueue(q messagequeue.Queue) { c.queue = q }

// SetMetrics attaches metric instruments.
func (c *CatalogFanout) SetMetrics(m *otel.Metrics) { c.metrics = m }

// SyncTenant pushes the central catalog into one tenant database. In
// SeedNewOnly mode existing tenant rows are left entirely alone; in
// FullRefresh mode their upstream-owned fields are overwritten.
func (c *CatalogFanout) SyncTenant(ctx context.Context, tenantID string, mode syncrun.Mode) (syncrun.Stats, error) {
	if !mode.Valid() {
		return syncrun.Stats{}, fmt.Errorf("unknown sync mode %q", mode)
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.ForTenant(c.log, tenantID).With("run_id", runID, "mode", string(mode))
	started := c.now()
	c.countFanoutRun(ctx)

	rec, db, err := c.openTenant(ctx, tenantID)
	if err != nil {
		c.countFailure(ctx)
		return syncrun.Stats{}, fmt.Errorf("sync catalog: %w", err)
	}
	defer db.Close()

	stats, err := c.syncInto(ctx, db, mode)

	if err != nil {
		c.countFailure(ctx)
		log.Error("catalog sync failed", "error", err,
			"added", stats.Added, "updated", stats.Updated, "skipped", stats.Skipped)
	} else {
		log.Info("catalog sync completed",
			"added", stats.Added, "updated", stats.Updated, "skipped", stats.Skipped)
	}
	publishEvent(ctx, c.queue, log, messagequeue.SubjectTenantSynced, SyncEvent{
		RunID:      runID,
		Kind:       "catalog_fanout",
		TenantID:   rec.ID,
		Stats:      stats,
		DurationMS: c.now().Sub(started).Milliseconds(),
		At:         c.now(),
	})

	if err != nil {
		return stats, fmt.Errorf("sync catalog for %q: %w", tenantID, err)
	}
	return stats, nil
}

// syncInto walks the central catalog in keyset pages and applies each page as
// one batch against the tenant database.
func (c *CatalogFanout) syncInto(ctx context.Context, db tenantdb.Store, mode syncrun.Mode) (syncrun.Stats, error) {
	var stats syncrun.Stats
	afterGTIN := ""

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		page, err := c.store.ListProductsPage(ctx, afterGTIN, c.pageSize)
		if err != nil {
			return stats, fmt.Errorf("list central page: %w", err)
		}
		if len(page) == 0 {
			return stats, nil
		}
		afterGTIN = page[len(page)-1].GTIN

		keys := make([]string, len(page))
		for i := range page {
			keys[i] = page[i].GTIN
		}
		existing, err := db.GetProductsByGTIN(ctx, keys)
		if err != nil {
			return stats, fmt.Errorf("load tenant batch: %w: %w", err, domain.ErrBatchPersist)
		}

		var (
			inserts []catalog.TenantProduct
			updates []catalog.CentralProduct
			skipped int
		)
		for i := range page {
			central := page[i]
			_, present := existing[central.GTIN]
			switch {
			case !present:
				inserts = append(inserts, catalog.NewTenantProduct(central))
			case mode == syncrun.SeedNewOnly:
				skipped++
			default: // FullRefresh, upstream fields only
				updates = append(updates, central)
			}
		}

		batchStart := c.now()
		if err := db.ApplyProducts(ctx, inserts, updates); err != nil {
			stats.Errored += len(inserts) + len(updates)
			return stats, fmt.Errorf("apply tenant batch: %w: %w", err, domain.ErrBatchPersist)
		}
		c.observeBatch(ctx, batchStart)
		stats.Added += len(inserts)
		stats.Updated += len(updates)
		stats.Skipped += skipped
		if c.metrics != nil {
			c.metrics.FanoutRows.Add(ctx, int64(len(inserts)+len(updates)))
		}
	}
}

// SyncAllTenants runs SyncTenant for every provisioned tenant with a bounded
// worker pool. One tenant failing never aborts the others; a failed tenant is
// reported with the failure sentinel in its stats entry.
func (c *CatalogFanout) SyncAllTenants(ctx context.Context, mode syncrun.Mode) (map[string]syncrun.Stats, error) {
	return syncAll(ctx, &c.fanout, mode, c.SyncTenant)
}

// syncAll is the shared all-tenants driver for both fan-out syncers.
func syncAll(ctx context.Context, f *fanout, mode syncrun.Mode,
	syncOne func(context.Context, string, syncrun.Mode) (syncrun.Stats, error),
) (map[string]syncrun.Stats, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown sync mode %q", mode)
	}

	recs, err := f.directory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync all tenants: %w", err)
	}

	parallel := f.parallel
	if parallel < 1 {
		parallel = 1
	}
	sem := semaphore.NewWeighted(parallel)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]syncrun.Stats)
	)
	for _, rec := range recs {
		if rec.Status != tenant.StatusProvisioned {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context cancelled, keep what finished
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			stats, err := syncOne(ctx, id, mode)
			if err != nil {
				// The per-tenant error is already logged; the sentinel
				// lets callers tell a failed tenant from an empty one.
				stats = syncrun.Failed()
			}
			mu.Lock()
			results[id] = stats
			mu.Unlock()
		}(rec.ID)
	}
	wg.Wait()

	return results, ctx.Err()
}

// RegistryFanout mirrors the central partner registry into tenant databases.
// Tenant registries hold no tenant-owned fields, so every pass is a full
// overwrite regardless of the requested mode.
type RegistryFanout struct {
	fanout
}

// NewRegistryFanout creates a registry fan-out syncer.
func NewRegistryFanout(store database.Store, dir *Directory, conn tenantdb.Connector, cfg config.Sync, log *slog.Logger) *RegistryFanout {
	return &RegistryFanout{fanout: newFanout(store, dir, conn, cfg, log)}
}

// SetQueue attaches an event queue for publishing run results.
func (r *RegistryFanout) SetQueue(q messagequeue.Queue) { r.queue = q }

// SetMetrics attaches metric instruments.
func (r *RegistryFanout) SetMetrics(m *otel.Metrics) { r.metrics = m }

// SyncTenant mirrors the partner registry into one tenant database.
func (r *RegistryFanout) SyncTenant(ctx context.Context, tenantID string, mode syncrun.Mode) (syncrun.Stats, error) {
	if !mode.Valid() {
		return syncrun.Stats{}, fmt.Errorf("unknown sync mode %q", mode)
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.ForTenant(r.log, tenantID).With("run_id", runID)
	started := r.now()
	r.countFanoutRun(ctx)

	rec, db, err := r.openTenant(ctx, tenantID)
	if err != nil {
		r.countFailure(ctx)
		return syncrun.Stats{}, fmt.Errorf("sync registry: %w", err)
	}
	defer db.Close()

	stats, err := r.syncInto(ctx, db)

	if err != nil {
		r.countFailure(ctx)
		log.Error("registry sync failed", "error", err, "added", stats.Added, "updated", stats.Updated)
	} else {
		log.Info("registry sync completed", "added", stats.Added, "updated", stats.Updated)
	}
	publishEvent(ctx, r.queue, log, messagequeue.SubjectTenantSynced, SyncEvent{
		RunID:      runID,
		Kind:       "registry_fanout",
		TenantID:   rec.ID,
		Stats:      stats,
		DurationMS: r.now().Sub(started).Milliseconds(),
		At:         r.now(),
	})

	if err != nil {
		return stats, fmt.Errorf("sync registry for %q: %w", tenantID, err)
	}
	return stats, nil
}

func (r *RegistryFanout) syncInto(ctx context.Context, db tenantdb.Store) (syncrun.Stats, error) {
	var stats syncrun.Stats
	afterGLN := ""

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		page, err := r.store.ListPartnersPage(ctx, afterGLN, r.pageSize)
		if err != nil {
			return stats, fmt.Errorf("list central page: %w", err)
		}
		if len(page) == 0 {
			return stats, nil
		}
		afterGLN = page[len(page)-1].GLN

		batchStart := r.now()
		if err := db.UpsertPartners(ctx, page); err != nil {
			stats.Errored += len(page)
			return stats, fmt.Errorf("apply tenant batch: %w: %w", err, domain.ErrBatchPersist)
		}
		r.observeBatch(ctx, batchStart)
		// The tenant mirror carries nothing of its own, so inserts and
		// overwrites are not distinguished here.
		stats.Updated += len(page)
		if r.metrics != nil {
			r.metrics.FanoutRows.Add(ctx, int64(len(page)))
		}
	}
}

// SyncAllTenants mirrors the registry into every provisioned tenant.
func (r *RegistryFanout) SyncAllTenants(ctx context.Context, mode syncrun.Mode) (map[string]syncrun.Stats, error) {
	return syncAll(ctx, &r.fanout, mode, r.SyncTenant)
}
