// Package resilience guards outbound calls to the upstream feed. The feed is
// the one external dependency every sync run starts from, so a flapping
// endpoint must not turn into a stream of slow timeouts inside ingest.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker is rejecting calls outright.
var ErrOpen = errors.New("breaker open")

type state int

const (
	closed state = iota
	open
	halfOpen
)

// Breaker trips after a run of consecutive failures and rejects calls for a
// cool-down period. Once the period passes, one probe call is let through:
// if it succeeds the breaker closes, if it fails the cool-down restarts.
type Breaker struct {
	mu        sync.Mutex
	state     state
	failures  int
	trippedAt time.Time

	maxFailures int
	cooldown    time.Duration
	now         func() time.Time // swapped in tests
}

// NewBreaker returns a closed breaker tripping after maxFailures consecutive
// failures, with the given cool-down before a probe is admitted.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Do runs fn and feeds its outcome into the breaker state. While the breaker
// is open, fn is not called and ErrOpen comes back instead.
func (b *Breaker) Do(fn func() error) error {
	if !b.admit() {
		return ErrOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.state == halfOpen || b.failures >= b.maxFailures {
			b.state = open
			b.trippedAt = b.now()
		}
		return err
	}
	b.failures = 0
	b.state = closed
	return nil
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == open {
		if b.now().Sub(b.trippedAt) < b.cooldown {
			return false
		}
		b.state = halfOpen
	}
	return true
}
