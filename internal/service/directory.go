package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
	"github.com/RxMesh/PharmaCore/internal/port/cache"
	"github.com/RxMesh/PharmaCore/internal/port/database"
)

// Directory resolves tenant records, keeping a short-lived cache in front of
// the central store so fan-out runs don't hit the tenants table per call.
type Directory struct {
	store database.Store
	cache cache.Cache // optional
	ttl   time.Duration
	log   *slog.Logger
}

// NewDirectory creates a tenant directory backed by the central store.
func NewDirectory(store database.Store, log *slog.Logger) *Directory {
	return &Directory{store: store, log: log}
}

// SetCache attaches a cache with the given entry TTL.
func (d *Directory) SetCache(c cache.Cache, ttl time.Duration) {
	d.cache = c
	d.ttl = ttl
}

func directoryKey(tenantID string) string { return "tenant:" + tenantID }

// Get returns the tenant record for the given ID.
func (d *Directory) Get(ctx context.Context, tenantID string) (tenant.Record, error) {
	if d.cache != nil {
		if raw, ok, err := d.cache.Get(ctx, directoryKey(tenantID)); err == nil && ok {
			var rec tenant.Record
			if err := json.Unmarshal(raw, &rec); err == nil {
				return rec, nil
			}
			// Corrupt entry, fall through to the store.
			_ = d.cache.Delete(ctx, directoryKey(tenantID))
		}
	}

	rec, err := d.store.GetTenantRecord(ctx, tenantID)
	if err != nil {
		return tenant.Record{}, fmt.Errorf("resolve tenant %q: %w", tenantID, err)
	}

	if d.cache != nil {
		if raw, err := json.Marshal(rec); err == nil {
			if err := d.cache.Set(ctx, directoryKey(tenantID), raw, d.ttl); err != nil {
				d.log.Warn("tenant cache write failed", "tenant_id", tenantID, "error", err)
			}
		}
	}
	return *rec, nil
}

// List returns all tenant records, always straight from the store.
func (d *Directory) List(ctx context.Context) ([]tenant.Record, error) {
	recs, err := d.store.ListTenantRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return recs, nil
}

// Invalidate drops the cached entry for a tenant, used after status changes.
func (d *Directory) Invalidate(ctx context.Context, tenantID string) {
	if d.cache != nil {
		_ = d.cache.Delete(ctx, directoryKey(tenantID))
	}
}
