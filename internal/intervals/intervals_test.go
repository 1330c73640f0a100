package intervals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openslate/openslate/internal/timezone"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// P5: Merge produces pairwise-disjoint, sorted intervals whose union
// equals the input's union.
func TestMergeCorrectness(t *testing.T) {
	blocks := []Block{
		{Start: mustParse(t, "2024-01-15T15:00:00Z"), End: mustParse(t, "2024-01-15T16:00:00Z")},
		{Start: mustParse(t, "2024-01-15T16:00:00Z"), End: mustParse(t, "2024-01-15T16:30:00Z")}, // adjacent, must merge
		{Start: mustParse(t, "2024-01-15T18:00:00Z"), End: mustParse(t, "2024-01-15T19:00:00Z")}, // disjoint
		{Start: mustParse(t, "2024-01-15T18:30:00Z"), End: mustParse(t, "2024-01-15T18:45:00Z")}, // nested inside previous
	}

	merged := Merge(blocks)
	require.Len(t, merged, 2)
	require.Equal(t, mustParse(t, "2024-01-15T15:00:00Z"), merged[0].Start)
	require.Equal(t, mustParse(t, "2024-01-15T16:30:00Z"), merged[0].End)
	require.Equal(t, mustParse(t, "2024-01-15T18:00:00Z"), merged[1].Start)
	require.Equal(t, mustParse(t, "2024-01-15T19:00:00Z"), merged[1].End)

	// pairwise disjoint and sorted
	for i := 1; i < len(merged); i++ {
		require.True(t, merged[i-1].End.Before(merged[i].Start) || merged[i-1].End.Equal(merged[i].Start))
	}
}

func TestMergeEmpty(t *testing.T) {
	require.Nil(t, Merge(nil))
}

// P4: buffer symmetry — a slot conflicts with a busy block B iff the
// buffer-expanded slot intersects B; zero-buffer adjacency does not
// conflict.
func TestOverlapsBufferSymmetry(t *testing.T) {
	busy := []Block{{Start: mustParse(t, "2024-01-15T10:00:00Z"), End: mustParse(t, "2024-01-15T11:00:00Z")}}

	// zero buffer, exact adjacency: not a conflict
	require.False(t, Overlaps(
		mustParse(t, "2024-01-15T11:00:00Z"), mustParse(t, "2024-01-15T11:30:00Z"),
		busy, 0, 0,
	))
	require.False(t, Overlaps(
		mustParse(t, "2024-01-15T09:30:00Z"), mustParse(t, "2024-01-15T10:00:00Z"),
		busy, 0, 0,
	))

	// bufferBefore=15m pushes the effective window into the busy block
	require.True(t, Overlaps(
		mustParse(t, "2024-01-15T11:00:00Z"), mustParse(t, "2024-01-15T11:30:00Z"),
		busy, 15*time.Minute, 0,
	))
	// but a slot starting 15 minutes later clears it
	require.False(t, Overlaps(
		mustParse(t, "2024-01-15T11:15:00Z"), mustParse(t, "2024-01-15T11:45:00Z"),
		busy, 15*time.Minute, 0,
	))

	// direct overlap regardless of buffers
	require.True(t, Overlaps(
		mustParse(t, "2024-01-15T10:30:00Z"), mustParse(t, "2024-01-15T11:00:00Z"),
		busy, 0, 0,
	))
}

func TestEnumerateDayBasic(t *testing.T) {
	tz := timezone.New()
	workStart := mustParse(t, "2024-01-15T14:00:00Z")
	workEnd := mustParse(t, "2024-01-15T17:00:00Z")

	slots := EnumerateDay(tz, "UTC", workStart, workEnd, 30*time.Minute, 15*time.Minute)
	require.Len(t, slots, 11) // 14:00 to 16:30 inclusive at 15m steps, 30m duration
	require.Equal(t, workStart, slots[0].Start)
	require.Equal(t, mustParse(t, "2024-01-15T17:00:00Z"), slots[len(slots)-1].End)
}

// P7 (enumeration half): on the US spring-forward day, no emitted slot
// corresponds to a nonexistent local wall-clock time.
func TestEnumerateDaySkipsDSTGap(t *testing.T) {
	tz := timezone.New()
	zone := "America/New_York"
	// 2024-03-10: 2:00-3:00 local does not exist (clocks jump 2:00->3:00).
	// Stepping from 01:45 local (06:45Z) across the gap in 15m increments
	// must never land on an instant whose local wall clock falls in the
	// skipped hour.
	workStart := mustParse(t, "2024-03-10T06:45:00Z") // 01:45 EST
	workEnd := mustParse(t, "2024-03-10T09:00:00Z")   // 04:00 EDT (after jump)

	slots := EnumerateDay(tz, zone, workStart, workEnd, 15*time.Minute, 15*time.Minute)
	for _, s := range slots {
		wall := tz.ToLocalWall(s.Start, zone)
		require.True(t, tz.IsValidLocal(wall, zone), "slot start %v has nonexistent local wall %+v", s.Start, wall)
	}
}
