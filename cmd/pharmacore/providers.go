package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RxMesh/PharmaCore/internal/adapter/feed"
	pcotel "github.com/RxMesh/PharmaCore/internal/adapter/otel"
	"github.com/RxMesh/PharmaCore/internal/adapter/postgres"
	"github.com/RxMesh/PharmaCore/internal/adapter/ristretto"
	"github.com/RxMesh/PharmaCore/internal/config"
	"github.com/RxMesh/PharmaCore/internal/resilience"
	"github.com/RxMesh/PharmaCore/internal/service"
)

// buildDeps connects the central store and the tenant cluster and wires every
// service. The caller must call close() on the result.
func buildDeps(ctx context.Context, cfg *config.Config, log *slog.Logger) (*engineDeps, error) {
	deps := &engineDeps{}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	deps.closers = append(deps.closers, pool.Close)

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		deps.close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	log.Info("central store ready")

	provisioner, err := postgres.NewProvisioner(ctx, cfg.TenantDB)
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("tenant cluster: %w", err)
	}
	deps.closers = append(deps.closers, provisioner.Close)

	deps.store = postgres.NewStore(pool)
	connector := postgres.NewConnector(cfg.TenantDB)

	deps.directory = service.NewDirectory(deps.store, log)
	if cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20); err == nil {
		deps.directory.SetCache(cache, cfg.Cache.TTL)
		deps.closers = append(deps.closers, cache.Close)
	} else {
		log.Warn("tenant cache disabled", "error", err)
	}

	feedClient := feed.NewClient(cfg.Upstream)
	feedClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	deps.ingest = service.NewIngestService(deps.store, feedClient, cfg.Sync, log)
	deps.catalogFanout = service.NewCatalogFanout(deps.store, deps.directory, connector, cfg.Sync, log)
	deps.registryFanout = service.NewRegistryFanout(deps.store, deps.directory, connector, cfg.Sync, log)
	deps.provision = service.NewProvisionService(
		deps.store, provisioner, connector, deps.directory,
		deps.catalogFanout, deps.registryFanout, cfg.TenantDB, log)
	deps.pricing = service.NewPricingService(deps.directory, connector, log)

	if metrics, err := pcotel.NewMetrics(); err == nil {
		deps.ingest.SetMetrics(metrics)
		deps.catalogFanout.SetMetrics(metrics)
		deps.registryFanout.SetMetrics(metrics)
		deps.provision.SetMetrics(metrics)
	} else {
		log.Warn("metrics disabled", "error", err)
	}

	return deps, nil
}
