package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	pcnats "github.com/RxMesh/PharmaCore/internal/adapter/nats"
	"github.com/RxMesh/PharmaCore/internal/adapter/postgres"
	"github.com/RxMesh/PharmaCore/internal/config"
	"github.com/RxMesh/PharmaCore/internal/domain/syncrun"
	"github.com/RxMesh/PharmaCore/internal/logger"
	"github.com/RxMesh/PharmaCore/internal/port/messagequeue"
	"github.com/RxMesh/PharmaCore/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] != "serve" {
		if err := runCommand(os.Args[1], os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// run starts the sync engine in serve mode: it connects the central store,
// the tenant cluster and NATS, then processes on-demand sync requests until
// it receives an interrupt.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	log.Info("config loaded",
		"log_level", cfg.Logging.Level,
		"batch_size", cfg.Sync.BatchSize,
		"max_parallel_tenants", cfg.Sync.MaxParallelTenants,
	)

	ctx := context.Background()

	deps, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	// NATS
	queue, err := pcnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()
	deps.attachQueue(queue)
	log.Info("nats connected", "url", cfg.NATS.URL)

	// On-demand sync requests. Each subscription runs its handler inline;
	// JetStream redelivers on a Nak, so a failed run is retried.
	cancelCatalog, err := queue.Subscribe(ctx, messagequeue.SubjectRequestCatalog, func(_ string, _ []byte) error {
		_, err := deps.ingest.IngestCatalog(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("subscribe catalog requests: %w", err)
	}
	defer cancelCatalog()

	cancelRegistry, err := queue.Subscribe(ctx, messagequeue.SubjectRequestRegistry, func(_ string, _ []byte) error {
		_, err := deps.ingest.IngestRegistry(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("subscribe registry requests: %w", err)
	}
	defer cancelRegistry()

	cancelTenant, err := queue.Subscribe(ctx, messagequeue.SubjectRequestTenant, func(_ string, data []byte) error {
		return handleTenantRequest(ctx, deps, data)
	})
	if err != nil {
		return fmt.Errorf("subscribe tenant requests: %w", err)
	}
	defer cancelTenant()

	log.Info("sync engine ready",
		"subjects", []string{
			messagequeue.SubjectRequestCatalog,
			messagequeue.SubjectRequestRegistry,
			messagequeue.SubjectRequestTenant,
		})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	log.Info("shutting down")
	return nil
}

// tenantRequest is the payload accepted on the tenant sync request subject.
type tenantRequest struct {
	TenantID string `json:"tenant_id"`
	Mode     string `json:"mode"`
}

func handleTenantRequest(ctx context.Context, deps *engineDeps, data []byte) error {
	var req tenantRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode tenant request: %w", err)
	}
	mode := syncrun.Mode(req.Mode)
	if req.Mode == "" {
		mode = syncrun.SeedNewOnly
	}

	if _, err := deps.catalogFanout.SyncTenant(ctx, req.TenantID, mode); err != nil {
		return err
	}
	if _, err := deps.registryFanout.SyncTenant(ctx, req.TenantID, mode); err != nil {
		return err
	}
	return nil
}

// engineDeps bundles the wired services plus the resources they hold open.
type engineDeps struct {
	store          *postgres.Store
	directory      *service.Directory
	ingest         *service.IngestService
	catalogFanout  *service.CatalogFanout
	registryFanout *service.RegistryFanout
	provision      *service.ProvisionService
	pricing        *service.PricingService

	closers []func()
}

func (d *engineDeps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func (d *engineDeps) attachQueue(q messagequeue.Queue) {
	d.ingest.SetQueue(q)
	d.catalogFanout.SetQueue(q)
	d.registryFanout.SetQueue(q)
	d.provision.SetQueue(q)
}
