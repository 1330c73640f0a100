// Package clock provides the single source of "now" for the scheduling
// core, so tests can pin it and every time-sensitive decision flows
// through the same value.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock backed by the wall clock.
type Real struct{}

// Now returns time.Now().UTC().
func (Real) Now() time.Time { return time.Now().UTC() }

// Frozen is a Clock pinned to a fixed instant, for deterministic tests.
type Frozen struct {
	At time.Time
}

// Now returns the pinned instant.
func (f Frozen) Now() time.Time { return f.At }
