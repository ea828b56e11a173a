// Package registry defines the partner registry model (pharmacies, suppliers
// and other GLN-keyed parties from the upstream feed).
package registry

import "time"

// Partner is one partner-registry entry, keyed by GLN. All fields are
// upstream-owned; tenant copies are pure full-overwrite mirrors of the
// central row.
type Partner struct {
	GLN               string    `json:"gln"`
	CompanyName       string    `json:"company_name"`
	AuthorizedContact string    `json:"authorized_contact"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	City              string    `json:"city"`
	Address           string    `json:"address"`
	Active            bool      `json:"active"`
	LastSyncedAt      time.Time `json:"last_synced_at"`
}

// EqualUpstream reports whether o carries the same upstream content as p,
// ignoring LastSyncedAt.
func (p Partner) EqualUpstream(o Partner) bool {
	return p.CompanyName == o.CompanyName &&
		p.AuthorizedContact == o.AuthorizedContact &&
		p.Email == o.Email &&
		p.Phone == o.Phone &&
		p.City == o.City &&
		p.Address == o.Address &&
		p.Active == o.Active
}
