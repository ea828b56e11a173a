// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUpstreamUnavailable indicates the upstream feed could not be fetched.
// No merge has started when this is returned; the run is fully retriable.
var ErrUpstreamUnavailable = errors.New("upstream feed unavailable")

// ErrInvalidTenantID indicates a tenant identifier failed strict validation.
// Rejected identifiers are never used in a database name or DDL statement.
var ErrInvalidTenantID = errors.New("invalid tenant id")

// ErrSchemaCreation indicates tenant schema DDL failed during provisioning.
// Fatal for that tenant: it stays unusable until provisioning is retried.
var ErrSchemaCreation = errors.New("tenant schema creation failed")

// ErrSeedSync indicates the post-provisioning seed sync failed. Soft: the
// tenant is already schema-valid and the sync can be retried independently.
var ErrSeedSync = errors.New("initial seed sync failed")

// ErrBatchPersist indicates a batch commit failed. Remaining batches of the
// current run are aborted; previously committed batches stand.
var ErrBatchPersist = errors.New("batch commit failed")

// ErrTenantNotProvisioned indicates a sync was requested for a tenant whose
// provisioning has not completed successfully.
var ErrTenantNotProvisioned = errors.New("tenant not provisioned")
