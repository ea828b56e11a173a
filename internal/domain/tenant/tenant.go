// Package tenant defines the tenant record and the identifier rules used to
// derive per-tenant database names.
package tenant

import (
	"fmt"
	"regexp"
	"time"

	"github.com/RxMesh/PharmaCore/internal/domain"
)

// Status is the provisioning state of a tenant.
type Status string

// Provisioning states. Pending moves to Provisioned on schema success and to
// Failed on DDL error; fan-out only ever sees Provisioned tenants.
const (
	StatusPending     Status = "pending"
	StatusProvisioned Status = "provisioned"
	StatusFailed      Status = "failed"
)

// Record describes one tenant and its isolated database.
type Record struct {
	ID           string    `json:"id"`
	DatabaseName string    `json:"database_name"`
	DSN          string    `json:"dsn"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OwnerMetadata is the profile information captured when a tenant is
// provisioned; it seeds the tenant_profile row.
type OwnerMetadata struct {
	DisplayName string `json:"display_name"`
	Region      string `json:"region"`
}

// idPattern is the strict allow-list for tenant identifiers. Tenant IDs feed
// directly into database names and DDL strings, so anything outside this
// alphabet is rejected before identifier construction.
var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{2,31}$`)

// ValidateID checks a tenant identifier against the allow-list pattern.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("tenant id %q must match %s: %w", id, idPattern.String(), domain.ErrInvalidTenantID)
	}
	return nil
}

// DatabaseName derives the deterministic database name for a validated
// tenant id. Pure: the same id always yields the same name.
func DatabaseName(prefix, id string) string {
	return prefix + id
}
