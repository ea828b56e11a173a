package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RxMesh/PharmaCore/internal/adapter/otel"
	"github.com/RxMesh/PharmaCore/internal/config"
	"github.com/RxMesh/PharmaCore/internal/domain"
	"github.com/RxMesh/PharmaCore/internal/domain/syncrun"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
	"github.com/RxMesh/PharmaCore/internal/logger"
	"github.com/RxMesh/PharmaCore/internal/port/database"
	"github.com/RxMesh/PharmaCore/internal/port/messagequeue"
	"github.com/RxMesh/PharmaCore/internal/port/tenantdb"
)

// ProvisionService creates and seeds tenant databases. Provisioning is
// idempotent: asking for a tenant that already exists succeeds without
// touching its data.
type ProvisionService struct {
	store       database.Store
	provisioner tenantdb.Provisioner
	connector   tenantdb.Connector
	directory   *Directory
	catalog     *CatalogFanout
	registry    *RegistryFanout
	dbPrefix    string
	log         *slog.Logger

	queue   messagequeue.Queue // optional
	metrics *otel.Metrics      // optional
}

// NewProvisionService creates a provisioning service.
func NewProvisionService(
	store database.Store,
	prov tenantdb.Provisioner,
	conn tenantdb.Connector,
	dir *Directory,
	cat *CatalogFanout,
	reg *RegistryFanout,
	cfg config.TenantDB,
	log *slog.Logger,
) *ProvisionService {
	return &ProvisionService{
		store:       store,
		provisioner: prov,
		connector:   conn,
		directory:   dir,
		catalog:     cat,
		registry:    reg,
		dbPrefix:    cfg.DatabasePrefix,
		log:         log,
	}
}

// SetQueue attaches an event queue for publishing provisioning results.
func (p *ProvisionService) SetQueue(q messagequeue.Queue) { p.queue = q }

// SetMetrics attaches metric instruments.
func (p *ProvisionService) SetMetrics(m *otel.Metrics) { p.metrics = m }

// Provision creates the tenant database, applies the fixed schema, records
// the tenant in the central store and seeds the new database from the central
// catalog and registry.
//
// The ID is validated before it is used in any SQL identifier; an invalid ID
// is rejected outright. A failure while creating the database or its schema
// marks the tenant Failed and is fatal. A failure during the post-creation
// seed is not: the database exists and is usable, so the tenant is still
// Provisioned and the error only signals that the first sync must be re-run.
func (p *ProvisionService) Provision(ctx context.Context, id string, owner tenant.OwnerMetadata) (*tenant.Record, error) {
	if err := tenant.ValidateID(id); err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}

	log := logger.ForTenant(p.log, id)
	dbName := tenant.DatabaseName(p.dbPrefix, id)

	exists, err := p.provisioner.DatabaseExists(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("provision %q: check database: %w", id, err)
	}

	rec := &tenant.Record{
		ID:           id,
		DatabaseName: dbName,
		DSN:          p.provisioner.DSN(dbName),
		Status:       tenant.StatusPending,
	}

	if exists {
		// The database is already there; adopt it. The schema DDL is
		// IF NOT EXISTS, so re-running it completes a database left behind
		// by an earlier schema failure and is a no-op on a healthy one.
		// Either way tenant data is never disturbed.
		if err := p.provisioner.CreateSchema(ctx, rec.DSN); err != nil {
			p.markFailed(ctx, log, id)
			return nil, fmt.Errorf("provision %q: create schema: %w: %w", id, err, domain.ErrSchemaCreation)
		}
		rec.Status = tenant.StatusProvisioned
		if err := p.store.CreateTenantRecord(ctx, rec); err != nil {
			return nil, fmt.Errorf("provision %q: record tenant: %w", id, err)
		}
		p.directory.Invalidate(ctx, id)
		log.Info("tenant database already present, adopted", "database", dbName)
		return rec, nil
	}

	if err := p.store.CreateTenantRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("provision %q: record tenant: %w", id, err)
	}

	if err := p.provisioner.CreateDatabase(ctx, dbName); err != nil {
		p.markFailed(ctx, log, id)
		return nil, fmt.Errorf("provision %q: create database: %w: %w", id, err, domain.ErrSchemaCreation)
	}
	if err := p.provisioner.CreateSchema(ctx, rec.DSN); err != nil {
		p.markFailed(ctx, log, id)
		return nil, fmt.Errorf("provision %q: create schema: %w: %w", id, err, domain.ErrSchemaCreation)
	}

	if err := p.store.UpdateTenantStatus(ctx, id, tenant.StatusProvisioned); err != nil {
		return nil, fmt.Errorf("provision %q: mark provisioned: %w", id, err)
	}
	rec.Status = tenant.StatusProvisioned
	p.directory.Invalidate(ctx, id)
	if p.metrics != nil {
		p.metrics.TenantsProvisioned.Add(ctx, 1)
	}
	log.Info("tenant database provisioned", "database", dbName)

	publishEvent(ctx, p.queue, log, messagequeue.SubjectTenantProvisioned, SyncEvent{
		RunID:    id,
		Kind:     "tenant_provisioned",
		TenantID: id,
		At:       time.Now(),
	})

	if err := p.seed(ctx, log, rec, owner); err != nil {
		// The tenant is live; the incomplete seed is recoverable by the
		// next sync run.
		log.Warn("initial seed incomplete", "error", err)
		return rec, fmt.Errorf("provision %q: %w: %w", id, err, domain.ErrSeedSync)
	}
	return rec, nil
}

func (p *ProvisionService) markFailed(ctx context.Context, log *slog.Logger, id string) {
	if err := p.store.UpdateTenantStatus(ctx, id, tenant.StatusFailed); err != nil {
		log.Error("failed to mark tenant failed", "error", err)
	}
	p.directory.Invalidate(ctx, id)
	if p.metrics != nil {
		p.metrics.RunsFailed.Add(ctx, 1)
	}
}

// seed writes the owner profile and pushes the current central catalog and
// registry into the fresh database.
func (p *ProvisionService) seed(ctx context.Context, log *slog.Logger, rec *tenant.Record, owner tenant.OwnerMetadata) error {
	db, err := p.connector.Connect(ctx, rec)
	if err != nil {
		return fmt.Errorf("connect for seed: %w", err)
	}
	if err := db.SaveProfile(ctx, rec.ID, owner); err != nil {
		db.Close()
		return fmt.Errorf("save profile: %w", err)
	}
	db.Close()

	var errs []error
	if _, err := p.catalog.SyncTenant(ctx, rec.ID, syncrun.FullRefresh); err != nil {
		errs = append(errs, fmt.Errorf("seed catalog: %w", err))
	}
	if _, err := p.registry.SyncTenant(ctx, rec.ID, syncrun.FullRefresh); err != nil {
		errs = append(errs, fmt.Errorf("seed registry: %w", err))
	}
	return errors.Join(errs...)
}
