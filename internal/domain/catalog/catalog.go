// Package catalog defines the central and tenant-local drug catalog models.
package catalog

import (
	"bytes"
	"encoding/json"
	"time"
)

// CentralProduct is the platform-owned view of one catalog entry, keyed by
// GTIN. Every field is upstream-owned: rows are created on first sight of a
// GTIN, overwritten on later ingests and never deleted. Upstream deactivation
// is modeled as Active=false.
type CentralProduct struct {
	GTIN             string          `json:"gtin"`
	Name             string          `json:"name"`
	ManufacturerGLN  string          `json:"manufacturer_gln"`
	ManufacturerName string          `json:"manufacturer_name"`
	Active           bool            `json:"active"`
	Imported         bool            `json:"imported"`
	RawPayload       json.RawMessage `json:"raw_payload,omitempty"`
	LastSyncedAt     time.Time       `json:"last_synced_at"`
}

// EqualUpstream reports whether o carries the same upstream content as c,
// ignoring LastSyncedAt. Ingest uses this to leave unchanged rows untouched,
// which keeps re-ingesting an identical snapshot a no-op.
func (c CentralProduct) EqualUpstream(o CentralProduct) bool {
	return c.Name == o.Name &&
		c.ManufacturerGLN == o.ManufacturerGLN &&
		c.ManufacturerName == o.ManufacturerName &&
		c.Active == o.Active &&
		c.Imported == o.Imported &&
		bytes.Equal(c.RawPayload, o.RawPayload)
}

// TenantProduct is one tenant's copy of a catalog entry, keyed by
// (tenant, GTIN). The upstream-owned fields mirror CentralProduct and are
// overwritten by full-refresh fan-out; Price and PriceHistory belong to the
// tenant and are never written by any sync path.
type TenantProduct struct {
	GTIN             string       `json:"gtin"`
	Name             string       `json:"name"`
	ManufacturerGLN  string       `json:"manufacturer_gln"`
	ManufacturerName string       `json:"manufacturer_name"`
	Active           bool         `json:"active"`
	Imported         bool         `json:"imported"`
	LastSyncedAt     time.Time    `json:"last_synced_at"`
	Price            float64      `json:"price"`
	PriceHistory     []PricePoint `json:"price_history"`
}

// PricePoint is one immutable entry in a tenant product's price history.
type PricePoint struct {
	Price     float64   `json:"price"`
	ChangedAt time.Time `json:"changed_at"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason"`
}

// NewTenantProduct builds the tenant row inserted by fan-out for a central
// product the tenant has not seen yet: upstream fields copied, price zero,
// empty history.
func NewTenantProduct(c CentralProduct) TenantProduct {
	return TenantProduct{
		GTIN:             c.GTIN,
		Name:             c.Name,
		ManufacturerGLN:  c.ManufacturerGLN,
		ManufacturerName: c.ManufacturerName,
		Active:           c.Active,
		Imported:         c.Imported,
		LastSyncedAt:     c.LastSyncedAt,
		Price:            0,
		PriceHistory:     []PricePoint{},
	}
}

// ApplyUpstream overwrites the upstream-owned fields of t from c, leaving
// Price and PriceHistory untouched. This is the only mutation full-refresh
// fan-out performs on an existing tenant row.
func (t *TenantProduct) ApplyUpstream(c CentralProduct) {
	t.Name = c.Name
	t.ManufacturerGLN = c.ManufacturerGLN
	t.ManufacturerName = c.ManufacturerName
	t.Active = c.Active
	t.Imported = c.Imported
	t.LastSyncedAt = c.LastSyncedAt
}

// RecordPrice sets a new price and appends a history entry. History is
// append-only; existing entries are never modified or dropped.
func (t *TenantProduct) RecordPrice(price float64, at time.Time, actor, reason string) {
	t.Price = price
	t.PriceHistory = append(t.PriceHistory, PricePoint{
		Price:     price,
		ChangedAt: at,
		Actor:     actor,
		Reason:    reason,
	})
}
