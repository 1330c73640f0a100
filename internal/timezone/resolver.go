// Package timezone centralizes every DST-sensitive conversion between a
// wall-clock time in a named zone and an absolute instant, so no other
// package needs to reason about daylight-saving transitions directly.
package timezone

import "time"

// Wall is a local wall-clock time with no associated zone.
type Wall struct {
	Year, Month, Day, Hour, Minute, Second int
}

func (w Wall) date(loc *time.Location) time.Time {
	return time.Date(w.Year, time.Month(w.Month), w.Day, w.Hour, w.Minute, w.Second, 0, loc)
}

// Resolver converts between Wall and time.Time in named IANA zones.
type Resolver struct{}

// New returns a Resolver. Stateless; kept as a type so call sites can take
// it as a dependency like the other engine collaborators.
func New() *Resolver {
	return &Resolver{}
}

// Load resolves an IANA zone name, defaulting to UTC on error.
func (r *Resolver) Load(zone string) *time.Location {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// candidates probes a window around the naive construction of w in loc and
// returns every instant whose local wall-clock representation in loc
// equals w exactly. A spring-forward wall time (nonexistent) yields zero
// candidates; a fall-back wall time (ambiguous) yields two.
func (r *Resolver) candidates(w Wall, loc *time.Location) []time.Time {
	naive := w.date(loc)

	seen := make(map[int64]bool)
	var out []time.Time
	probe := func(t time.Time) {
		if wallEqual(t, loc, w) {
			key := t.Unix()
			if !seen[key] {
				seen[key] = true
				out = append(out, t)
			}
		}
	}

	// Most zone transitions shift by whole hours; a few (historical, and
	// some Pacific zones) use 30 or 45 minutes. Stepping every 15 minutes
	// across a 2-hour window on each side catches all of them without
	// needing access to the zone's internal transition table.
	for m := -120; m <= 120; m += 15 {
		probe(naive.Add(time.Duration(m) * time.Minute))
	}
	return out
}

func wallEqual(t time.Time, loc *time.Location, w Wall) bool {
	lt := t.In(loc)
	return lt.Year() == w.Year && int(lt.Month()) == w.Month && lt.Day() == w.Day &&
		lt.Hour() == w.Hour && lt.Minute() == w.Minute && lt.Second() == w.Second
}

// ToInstant converts a local wall-clock time in zone to an absolute
// instant. A nonexistent local time (spring-forward gap) is normalized
// forward by time.Date's own rules, since there is no "correct" instant to
// choose. An ambiguous local time (fall-back overlap) resolves to the
// earlier of the two possible instants.
func (r *Resolver) ToInstant(w Wall, zone string) time.Time {
	loc := r.Load(zone)
	cands := r.candidates(w, loc)
	switch len(cands) {
	case 0:
		return w.date(loc)
	case 1:
		return cands[0]
	default:
		earliest := cands[0]
		for _, c := range cands[1:] {
			if c.Before(earliest) {
				earliest = c
			}
		}
		return earliest
	}
}

// ToLocalWall converts an instant to wall-clock fields in zone.
func (r *Resolver) ToLocalWall(instant time.Time, zone string) Wall {
	lt := instant.In(r.Load(zone))
	return Wall{
		Year: lt.Year(), Month: int(lt.Month()), Day: lt.Day(),
		Hour: lt.Hour(), Minute: lt.Minute(), Second: lt.Second(),
	}
}

// IsValidLocal reports whether w denotes an instant that actually occurs
// in zone — false for a time skipped by a spring-forward transition.
func (r *Resolver) IsValidLocal(w Wall, zone string) bool {
	return len(r.candidates(w, r.Load(zone))) > 0
}
