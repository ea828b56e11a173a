package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/RxMesh/PharmaCore/internal/config"
	"github.com/RxMesh/PharmaCore/internal/domain"
	"github.com/RxMesh/PharmaCore/internal/domain/syncrun"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
	"github.com/RxMesh/PharmaCore/internal/logger"
)

// runCommand dispatches one-shot subcommands. Each builds its own
// dependencies, runs and exits; the serve loop is not involved.
func runCommand(name string, args []string) error {
	if name == "help" || name == "--help" || name == "-h" {
		printHelp()
		return nil
	}

	switch name {
	case "provision-tenant":
		return runProvisionTenant(args)
	case "list-tenants":
		return runListTenants(args)
	case "ingest-catalog":
		return runIngest(args, "ingest-catalog")
	case "ingest-registry":
		return runIngest(args, "ingest-registry")
	case "sync-tenant":
		return runSyncTenant(args)
	case "sync-all":
		return runSyncAll(args)
	case "set-price":
		return runSetPrice(args)
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", name)
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: pharmacore <command> [options]

Commands:
  serve              Run the sync engine and process queued sync requests
  provision-tenant   Create and seed a tenant database
  list-tenants       List registered tenants
  ingest-catalog     Pull the upstream catalog into the central store
  ingest-registry    Pull the upstream partner registry into the central store
  sync-tenant        Fan the central data out into one tenant database
  sync-all           Fan the central data out into every provisioned tenant
  set-price          Set a product price in one tenant database
  help               Show this help message

Examples:
  pharmacore provision-tenant --id apotheke_nord --name "Apotheke Nord" --region DE-HH
  pharmacore sync-tenant --id apotheke_nord --mode full_refresh
  pharmacore set-price --id apotheke_nord --gtin 04012345678901 --price 12.99 --actor jdoe
`)
}

// loadCommandDeps builds the service graph for a one-shot command. NATS and
// metrics are left unwired; a CLI invocation reports through its exit code.
func loadCommandDeps(ctx context.Context) (*engineDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Logging)

	deps, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return deps, deps.close, nil
}

func runProvisionTenant(args []string) error {
	fs := flag.NewFlagSet("provision-tenant", flag.ContinueOnError)
	id := fs.String("id", "", "tenant ID (required, lowercase letters, digits, underscores)")
	name := fs.String("name", "", "pharmacy display name")
	region := fs.String("region", "", "pharmacy region code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadCommandDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	rec, err := deps.provision.Provision(ctx, *id, tenant.OwnerMetadata{
		DisplayName: *name,
		Region:      *region,
	})
	if err != nil {
		if rec != nil && errors.Is(err, domain.ErrSeedSync) {
			// The database exists; only the first sync needs repeating.
			fmt.Fprintf(os.Stderr, "Tenant %s provisioned (database %s), but the initial seed is incomplete: %v\n",
				rec.ID, rec.DatabaseName, err)
			fmt.Fprintf(os.Stderr, "Re-run: pharmacore sync-tenant --id %s --mode full_refresh\n", rec.ID)
			return nil
		}
		return fmt.Errorf("provision tenant: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant %s provisioned (database %s)\n", rec.ID, rec.DatabaseName)
	return nil
}

func runListTenants(args []string) error {
	fs := flag.NewFlagSet("list-tenants", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, cleanup, err := loadCommandDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	recs, err := deps.directory.List(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No tenants found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATABASE\tSTATUS\tCREATED")
	for i := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			recs[i].ID, recs[i].DatabaseName, recs[i].Status, recs[i].CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runIngest(args []string, name string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, cleanup, err := loadCommandDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var stats syncrun.Stats
	if name == "ingest-catalog" {
		stats, err = deps.ingest.IngestCatalog(ctx)
	} else {
		stats, err = deps.ingest.IngestRegistry(ctx)
	}
	printStats(stats)
	return err
}

func runSyncTenant(args []string) error {
	fs := flag.NewFlagSet("sync-tenant", flag.ContinueOnError)
	id := fs.String("id", "", "tenant ID (required)")
	mode := fs.String("mode", string(syncrun.SeedNewOnly), "sync mode: seed_new_only or full_refresh")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadCommandDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	catStats, err := deps.catalogFanout.SyncTenant(ctx, *id, syncrun.Mode(*mode))
	if err != nil {
		return err
	}
	regStats, err := deps.registryFanout.SyncTenant(ctx, *id, syncrun.Mode(*mode))
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Catalog:  added=%d updated=%d skipped=%d\n",
		catStats.Added, catStats.Updated, catStats.Skipped)
	fmt.Fprintf(os.Stderr, "Registry: added=%d updated=%d skipped=%d\n",
		regStats.Added, regStats.Updated, regStats.Skipped)
	return nil
}

func runSyncAll(args []string) error {
	fs := flag.NewFlagSet("sync-all", flag.ContinueOnError)
	mode := fs.String("mode", string(syncrun.SeedNewOnly), "sync mode: seed_new_only or full_refresh")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, cleanup, err := loadCommandDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := deps.catalogFanout.SyncAllTenants(ctx, syncrun.Mode(*mode))
	if err != nil {
		return err
	}
	regResults, err := deps.registryFanout.SyncAllTenants(ctx, syncrun.Mode(*mode))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TENANT\tCATALOG\tREGISTRY")
	failed := 0
	for id, stats := range results {
		failed += printAllRow(w, id, stats, regResults[id])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d tenant(s) failed to sync", failed)
	}
	return nil
}

func printAllRow(w *tabwriter.Writer, id string, cat, reg syncrun.Stats) int {
	format := func(s syncrun.Stats) string {
		if s.IsFailed() {
			return "FAILED"
		}
		return fmt.Sprintf("+%d ~%d =%d", s.Added, s.Updated, s.Skipped)
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", id, format(cat), format(reg))
	if cat.IsFailed() || reg.IsFailed() {
		return 1
	}
	return 0
}

func runSetPrice(args []string) error {
	fs := flag.NewFlagSet("set-price", flag.ContinueOnError)
	id := fs.String("id", "", "tenant ID (required)")
	gtin := fs.String("gtin", "", "product GTIN (required)")
	price := fs.Float64("price", 0, "new price (required)")
	actor := fs.String("actor", "", "user recorded in the price history (required)")
	reason := fs.String("reason", "", "optional change reason")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *gtin == "" || *actor == "" {
		return fmt.Errorf("--id, --gtin and --actor are required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadCommandDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	product, err := deps.pricing.SetPrice(ctx, *id, *gtin, *price, *actor, *reason)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Price set: %s = %.2f (%d history entries)\n",
		product.GTIN, product.Price, len(product.PriceHistory))
	return nil
}

func printStats(s syncrun.Stats) {
	fmt.Fprintf(os.Stderr, "added=%d updated=%d skipped=%d errored=%d\n",
		s.Added, s.Updated, s.Skipped, s.Errored)
}
