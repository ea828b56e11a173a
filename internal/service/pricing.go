package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RxMesh/PharmaCore/internal/domain"
	"github.com/RxMesh/PharmaCore/internal/domain/catalog"
	"github.com/RxMesh/PharmaCore/internal/domain/tenant"
	"github.com/RxMesh/PharmaCore/internal/logger"
	"github.com/RxMesh/PharmaCore/internal/port/tenantdb"
)

// PricingService changes tenant-owned prices. It is the only service that
// writes price columns; sync runs never do.
type PricingService struct {
	directory *Directory
	connector tenantdb.Connector
	log       *slog.Logger
	now       func() time.Time
}

// NewPricingService creates a pricing service.
func NewPricingService(dir *Directory, conn tenantdb.Connector, log *slog.Logger) *PricingService {
	return &PricingService{directory: dir, connector: conn, log: log, now: time.Now}
}

func (p *PricingService) open(ctx context.Context, tenantID string) (tenantdb.Store, error) {
	rec, err := p.directory.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if rec.Status != tenant.StatusProvisioned {
		return nil, fmt.Errorf("tenant %q has status %q: %w",
			tenantID, rec.Status, domain.ErrTenantNotProvisioned)
	}
	return p.connector.Connect(ctx, &rec)
}

// SetPrice sets a product's price in one tenant's database and appends the
// change to its price history.
func (p *PricingService) SetPrice(ctx context.Context, tenantID, gtin string, price float64, actor, reason string) (*catalog.TenantProduct, error) {
	db, err := p.open(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("set price: %w", err)
	}
	defer db.Close()

	product, err := db.GetProduct(ctx, gtin)
	if err != nil {
		return nil, fmt.Errorf("set price for %q: %w", gtin, err)
	}

	product.RecordPrice(price, p.now(), actor, reason)
	if err := db.SavePrice(ctx, product); err != nil {
		return nil, fmt.Errorf("set price for %q: %w", gtin, err)
	}

	logger.ForTenant(p.log, tenantID).Info("price updated",
		"gtin", gtin, "price", price, "actor", actor)
	return product, nil
}

// GetProduct returns one product from a tenant's database, history included.
func (p *PricingService) GetProduct(ctx context.Context, tenantID, gtin string) (*catalog.TenantProduct, error) {
	db, err := p.open(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	defer db.Close()

	product, err := db.GetProduct(ctx, gtin)
	if err != nil {
		return nil, fmt.Errorf("get product %q: %w", gtin, err)
	}
	return product, nil
}
