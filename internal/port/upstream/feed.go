// Package upstream defines the port for the regulatory/product feed and the
// wire types it delivers.
package upstream

import (
	"context"
	"encoding/json"
)

// Product is one catalog item as delivered by the upstream feed. Raw retains
// the full payload for audit alongside the projected fields.
type Product struct {
	GTIN             string          `json:"gtin"`
	Name             string          `json:"name"`
	ManufacturerGLN  string          `json:"manufacturerGln"`
	ManufacturerName string          `json:"manufacturerName"`
	Active           bool            `json:"active"`
	Imported         bool            `json:"imported"`
	Raw              json.RawMessage `json:"-"`
}

// Partner is one partner-registry item as delivered by the upstream feed.
type Partner struct {
	GLN               string `json:"gln"`
	CompanyName       string `json:"companyName"`
	AuthorizedContact string `json:"authorizedContact"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	City              string `json:"city"`
	Address           string `json:"address"`
	Active            bool   `json:"active"`
}

// Feed is the port interface for pulling full snapshots from the upstream
// source of truth. There is no incremental/delta variant.
type Feed interface {
	FetchProducts(ctx context.Context) ([]Product, error)
	FetchPartners(ctx context.Context) ([]Partner, error)
}
