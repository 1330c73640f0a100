package timezone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToInstantRoundTrip(t *testing.T) {
	r := New()
	w := Wall{Year: 2024, Month: 6, Day: 15, Hour: 9, Minute: 30}
	instant := r.ToInstant(w, "America/New_York")
	back := r.ToLocalWall(instant, "America/New_York")
	require.Equal(t, w, back)
}

// P7: spring-forward gap. In America/New_York, 2024-03-10 02:30 does not
// exist (clocks jump from 02:00 to 03:00 EDT).
func TestSpringForwardGapIsInvalid(t *testing.T) {
	r := New()
	gap := Wall{Year: 2024, Month: 3, Day: 10, Hour: 2, Minute: 30}
	require.False(t, r.IsValidLocal(gap, "America/New_York"))

	valid := Wall{Year: 2024, Month: 3, Day: 10, Hour: 9, Minute: 0}
	require.True(t, r.IsValidLocal(valid, "America/New_York"))
}

// Fall-back overlap: in America/New_York, 2024-11-03 01:30 occurs twice
// (once at EDT, once at EST). ToInstant must resolve to the earlier one.
func TestFallBackResolvesToEarlierInstant(t *testing.T) {
	r := New()
	ambiguous := Wall{Year: 2024, Month: 11, Day: 3, Hour: 1, Minute: 30}
	instant := r.ToInstant(ambiguous, "America/New_York")

	cands := r.candidates(ambiguous, r.Load("America/New_York"))
	require.Len(t, cands, 2)
	earlier := cands[0]
	if cands[1].Before(earlier) {
		earlier = cands[1]
	}
	require.Equal(t, earlier, instant)
}

func TestLoadFallsBackToUTCOnBadZone(t *testing.T) {
	r := New()
	loc := r.Load("Not/AZone")
	require.Equal(t, "UTC", loc.String())
}
