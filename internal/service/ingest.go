package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RxMesh/PharmaCore/internal/adapter/otel"
	"github.com/RxMesh/PharmaCore/internal/config"
	"github.com/RxMesh/PharmaCore/internal/domain"
	"github.com/RxMesh/PharmaCore/internal/domain/catalog"
	"github.com/RxMesh/PharmaCore/internal/domain/registry"
	"github.com/RxMesh/PharmaCore/internal/domain/syncrun"
	"github.com/RxMesh/PharmaCore/internal/logger"
	"github.com/RxMesh/PharmaCore/internal/port/database"
	"github.com/RxMesh/PharmaCore/internal/port/messagequeue"
	"github.com/RxMesh/PharmaCore/internal/port/upstream"
)

// IngestService pulls full snapshots from the upstream feed and merges them
// into the central store. Catalog and registry ingests share the same batch
// algorithm; neither may run concurrently with itself.
type IngestService struct {
	store     database.Store
	feed      upstream.Feed
	batchSize int
	log       *slog.Logger

	queue   messagequeue.Queue // optional
	metrics *otel.Metrics      // optional
	now     func() time.Time
}

// NewIngestService creates a new IngestService.
func NewIngestService(store database.Store, feed upstream.Feed, cfg config.Sync, log *slog.Logger) *IngestService {
	return &IngestService{
		store:     store,
		feed:      feed,
		batchSize: cfg.BatchSize,
		log:       log,
		now:       time.Now,
	}
}

// SetQueue attaches an event queue for publishing run results.
func (s *IngestService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetMetrics attaches metric instruments.
func (s *IngestService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// IngestCatalog pulls the catalog snapshot and merges it batch by batch.
// A batch failure aborts the remaining batches but keeps the committed ones;
// the returned statistics reflect true partial progress either way.
func (s *IngestService) IngestCatalog(ctx context.Context) (syncrun.Stats, error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := s.log.With("run_id", runID, "kind", "catalog")
	started := s.now()

	if s.metrics != nil {
		s.metrics.IngestRuns.Add(ctx, 1)
	}

	snapshot, err := s.feed.FetchProducts(ctx)
	if err != nil {
		s.countFailure(ctx)
		return syncrun.Stats{}, fmt.Errorf("ingest catalog: %w", err)
	}
	log.Info("catalog snapshot fetched", "items", len(snapshot))

	stats, err := s.mergeCatalog(ctx, snapshot)

	s.finishRun(ctx, log, messagequeue.SubjectCatalogIngested, SyncEvent{
		RunID:      runID,
		Kind:       "catalog_ingest",
		Stats:      stats,
		DurationMS: s.now().Sub(started).Milliseconds(),
		At:         s.now(),
	}, err)

	if err != nil {
		return stats, fmt.Errorf("ingest catalog: %w", err)
	}
	return stats, nil
}

// mergeCatalog merges the snapshot into central_catalog one batch at a time.
func (s *IngestService) mergeCatalog(ctx context.Context, snapshot []upstream.Product) (syncrun.Stats, error) {
	var stats syncrun.Stats

	for _, batch := range syncrun.Partition(snapshot, s.batchSize) {
		// Cancellation is cooperative: committed batches stand.
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		// Upstream pulls may repeat a GTIN within one snapshot; the first
		// occurrence wins. Rows without a GTIN are never inserted.
		incoming := make([]catalog.CentralProduct, 0, len(batch))
		seen := make(map[string]bool, len(batch))
		syncedAt := s.now()
		for i := range batch {
			item := &batch[i]
			if item.GTIN == "" {
				stats.Skipped++
				continue
			}
			if seen[item.GTIN] {
				stats.Skipped++
				continue
			}
			seen[item.GTIN] = true
			incoming = append(incoming, catalog.CentralProduct{
				GTIN:             item.GTIN,
				Name:             item.Name,
				ManufacturerGLN:  item.ManufacturerGLN,
				ManufacturerName: item.ManufacturerName,
				Active:           item.Active,
				Imported:         item.Imported,
				RawPayload:       item.Raw,
				LastSyncedAt:     syncedAt,
			})
		}
		if len(incoming) == 0 {
			continue
		}

		keys := make([]string, len(incoming))
		for i := range incoming {
			keys[i] = incoming[i].GTIN
		}
		existing, err := s.store.GetProductsByGTIN(ctx, keys)
		if err != nil {
			return stats, fmt.Errorf("load batch: %w: %w", err, domain.ErrBatchPersist)
		}

		// Classify before writing so statistics only count the batch once
		// its transaction commits. Rows whose upstream content is unchanged
		// are left untouched, which makes re-ingesting a snapshot a no-op.
		writes := make([]catalog.CentralProduct, 0, len(incoming))
		var added, updated int
		for i := range incoming {
			p := incoming[i]
			prev, ok := existing[p.GTIN]
			switch {
			case !ok:
				added++
			case prev.EqualUpstream(p):
				stats.Skipped++
				continue
			default:
				updated++
			}
			writes = append(writes, p)
		}

		batchStart := s.now()
		if err := s.store.UpsertProducts(ctx, writes); err != nil {
			stats.Errored += added + updated
			return stats, fmt.Errorf("commit batch: %w: %w", err, domain.ErrBatchPersist)
		}
		s.observeBatch(ctx, batchStart)
		stats.Added += added
		stats.Updated += updated
		if s.metrics != nil {
			s.metrics.IngestRows.Add(ctx, int64(len(writes)))
		}
	}

	return stats, nil
}

// IngestRegistry pulls the partner-registry snapshot and merges it with the
// same batch semantics as IngestCatalog, keyed by GLN.
func (s *IngestService) IngestRegistry(ctx context.Context) (syncrun.Stats, error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := s.log.With("run_id", runID, "kind", "registry")
	started := s.now()

	if s.metrics != nil {
		s.metrics.IngestRuns.Add(ctx, 1)
	}

	snapshot, err := s.feed.FetchPartners(ctx)
	if err != nil {
		s.countFailure(ctx)
		return syncrun.Stats{}, fmt.Errorf("ingest registry: %w", err)
	}
	log.Info("registry snapshot fetched", "items", len(snapshot))

	stats, err := s.mergeRegistry(ctx, snapshot)

	s.finishRun(ctx, log, messagequeue.SubjectRegistryIngested, SyncEvent{
		RunID:      runID,
		Kind:       "registry_ingest",
		Stats:      stats,
		DurationMS: s.now().Sub(started).Milliseconds(),
		At:         s.now(),
	}, err)

	if err != nil {
		return stats, fmt.Errorf("ingest registry: %w", err)
	}
	return stats, nil
}

func (s *IngestService) mergeRegistry(ctx context.Context, snapshot []upstream.Partner) (syncrun.Stats, error) {
	var stats syncrun.Stats

	for _, batch := range syncrun.Partition(snapshot, s.batchSize) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		incoming := make([]registry.Partner, 0, len(batch))
		seen := make(map[string]bool, len(batch))
		syncedAt := s.now()
		for i := range batch {
			item := &batch[i]
			if item.GLN == "" {
				stats.Skipped++
				continue
			}
			if seen[item.GLN] {
				stats.Skipped++
				continue
			}
			seen[item.GLN] = true
			incoming = append(incoming, registry.Partner{
				GLN:               item.GLN,
				CompanyName:       item.CompanyName,
				AuthorizedContact: item.AuthorizedContact,
				Email:             item.Email,
				Phone:             item.Phone,
				City:              item.City,
				Address:           item.Address,
				Active:            item.Active,
				LastSyncedAt:      syncedAt,
			})
		}
		if len(incoming) == 0 {
			continue
		}

		keys := make([]string, len(incoming))
		for i := range incoming {
			keys[i] = incoming[i].GLN
		}
		existing, err := s.store.GetPartnersByGLN(ctx, keys)
		if err != nil {
			return stats, fmt.Errorf("load batch: %w: %w", err, domain.ErrBatchPersist)
		}

		writes := make([]registry.Partner, 0, len(incoming))
		var added, updated int
		for i := range incoming {
			p := incoming[i]
			prev, ok := existing[p.GLN]
			switch {
			case !ok:
				added++
			case prev.EqualUpstream(p):
				stats.Skipped++
				continue
			default:
				updated++
			}
			writes = append(writes, p)
		}

		batchStart := s.now()
		if err := s.store.UpsertPartners(ctx, writes); err != nil {
			stats.Errored += added + updated
			return stats, fmt.Errorf("commit batch: %w: %w", err, domain.ErrBatchPersist)
		}
		s.observeBatch(ctx, batchStart)
		stats.Added += added
		stats.Updated += updated
		if s.metrics != nil {
			s.metrics.IngestRows.Add(ctx, int64(len(writes)))
		}
	}

	return stats, nil
}

func (s *IngestService) finishRun(ctx context.Context, log *slog.Logger, subject string, ev SyncEvent, runErr error) {
	if runErr != nil {
		s.countFailure(ctx)
		log.Error("ingest failed", "error", runErr,
			"added", ev.Stats.Added, "updated", ev.Stats.Updated, "skipped", ev.Stats.Skipped)
	} else {
		log.Info("ingest completed",
			"added", ev.Stats.Added, "updated", ev.Stats.Updated, "skipped", ev.Stats.Skipped)
	}
	publishEvent(ctx, s.queue, log, subject, ev)
}

func (s *IngestService) countFailure(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.RunsFailed.Add(ctx, 1)
	}
}

func (s *IngestService) observeBatch(ctx context.Context, start time.Time) {
	if s.metrics != nil {
		s.metrics.BatchDuration.Record(ctx, s.now().Sub(start).Seconds())
	}
}
