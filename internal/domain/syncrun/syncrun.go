// Package syncrun holds the shared vocabulary of ingest and fan-out runs:
// modes, per-run statistics and batch partitioning.
package syncrun

// Mode selects how fan-out treats tenant rows that already exist.
type Mode string

const (
	// SeedNewOnly inserts missing rows and leaves existing rows untouched,
	// so a lagging tenant can catch up on new products without clobbering
	// edits made between syncs.
	SeedNewOnly Mode = "seed_new_only"

	// FullRefresh also overwrites the upstream-owned fields of existing
	// rows. Tenant-owned fields are still never written.
	FullRefresh Mode = "full_refresh"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == SeedNewOnly || m == FullRefresh
}

// Stats is the result of one ingest or fan-out run. Counts always reflect
// true partial progress: batches committed before a failure stay counted.
type Stats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Added += other.Added
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Errored += other.Errored
}

// Failed is the sentinel stats value marking a tenant whose sync errored
// outright in SyncAllTenants, distinguishing "ran with zero changes" from
// "failed to run".
func Failed() Stats {
	return Stats{Errored: -1}
}

// IsFailed reports whether s is the Failed sentinel.
func (s Stats) IsFailed() bool {
	return s.Errored < 0
}

// Partition splits items into consecutive batches of at most size elements.
// A size below 1 yields a single batch. The returned slices share backing
// storage with items.
func Partition[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		return [][]T{items}
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}
