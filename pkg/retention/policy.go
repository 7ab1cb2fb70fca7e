// Package retention computes record expiry. The policy is pure: the store
// consults it on every write that creates or refreshes an expiry, and the
// same policy output is applied to a thread's metadata and all of its
// messages so neither can outlive the other.
package retention

import "time"

// Policy holds the retention windows. A zero window means records of that
// class never expire.
type Policy struct {
	// Temporary is the short window applied to temporary threads.
	Temporary time.Duration
	// Standard is the window applied to ordinary threads.
	Standard time.Duration
}

// DefaultPolicy keeps temporary threads for 24 hours and ordinary threads
// forever.
var DefaultPolicy = Policy{Temporary: 24 * time.Hour}

// ExpiryAt returns the epoch-second expiry instant for a record written at
// now, or 0 when the record should not expire.
func (p Policy) ExpiryAt(now time.Time, temporary bool) int64 {
	window := p.Standard
	if temporary {
		window = p.Temporary
	}
	if window <= 0 {
		return 0
	}
	return now.Add(window).Unix()
}
