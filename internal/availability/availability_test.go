package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openslate/openslate/internal/clock"
	"github.com/openslate/openslate/internal/intervals"
	"github.com/openslate/openslate/internal/timezone"
)

type fakeEventTypeLoader struct {
	et   *EventType
	host *Host
}

func (f *fakeEventTypeLoader) Load(ctx context.Context, id string) (*EventType, *Host, error) {
	if f.et == nil {
		return nil, nil, nil
	}
	return f.et, f.host, nil
}

type fakeBusyProvider struct {
	blocks []intervals.Block
	err    error
}

func (f *fakeBusyProvider) GetBusyTimes(ctx context.Context, hostID string, start, end time.Time) ([]intervals.Block, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []intervals.Block
	for _, b := range f.blocks {
		if b.Start.Before(end) && b.End.After(start) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeLedger struct {
	booked []BookedInterval
}

func (f *fakeLedger) ActiveBookings(ctx context.Context, hostID string, start, end time.Time) ([]BookedInterval, error) {
	var out []BookedInterval
	for _, b := range f.booked {
		if b.Start.Before(end) && b.End.After(start) {
			out = append(out, b)
		}
	}
	return out, nil
}

func weekdayHours(start, end string) []WorkingHoursRule {
	var rules []WorkingHoursRule
	for d := 1; d <= 5; d++ { // Mon-Fri
		rules = append(rules, WorkingHoursRule{DayOfWeek: d, StartLocal: start, EndLocal: end})
	}
	return rules
}

func newTestEngine(now time.Time, et *EventType, host *Host, busy *fakeBusyProvider, ledger *fakeLedger) *Engine {
	return New(clock.Frozen{At: now}, timezone.New(), &fakeEventTypeLoader{et: et, host: host}, busy, ledger)
}

func parse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// Scenario 1: Sequential — a busy block blanks out overlapping slots but
// not the one right after it.
func TestListSlotsSequentialScenario(t *testing.T) {
	et := &EventType{
		ID: "et1", HostID: "host1", DurationMin: 30, SlotIntervalMin: 15,
		MinimumNoticeMin: 0, SchedulingWindowDays: 30, Active: true,
		WorkingHours: weekdayHours("09:00", "17:00"),
	}
	host := &Host{ID: "host1", Timezone: "America/New_York"}
	busy := &fakeBusyProvider{blocks: []intervals.Block{
		{Start: parse(t, "2024-01-15T15:00:00Z"), End: parse(t, "2024-01-15T16:00:00Z")},
	}}
	ledger := &fakeLedger{}

	now := parse(t, "2024-01-10T00:00:00Z")
	e := newTestEngine(now, et, host, busy, ledger)

	slots, err := e.ListSlots(context.Background(), "et1",
		parse(t, "2024-01-15T00:00:00Z"), parse(t, "2024-01-16T00:00:00Z"), "America/New_York")
	require.NoError(t, err)

	var all []Slot
	for _, day := range slots {
		all = append(all, day...)
	}
	for _, s := range all {
		require.False(t, s.Start.Before(parse(t, "2024-01-15T16:00:00Z")) && s.Start.After(parse(t, "2024-01-15T14:59:59Z")) && s.Start.Before(parse(t, "2024-01-15T15:00:00Z")))
	}
	// the slot immediately after the busy block must be present
	found := false
	for _, s := range all {
		if s.Start.Equal(parse(t, "2024-01-15T16:00:00Z")) && s.End.Equal(parse(t, "2024-01-15T16:30:00Z")) {
			found = true
		}
	}
	require.True(t, found, "expected 16:00-16:30 slot to survive")

	// no surviving slot may intersect the busy block
	for _, s := range all {
		require.False(t, s.Start.Before(parse(t, "2024-01-15T16:00:00Z")) && s.End.After(parse(t, "2024-01-15T15:00:00Z")))
	}
}

// Scenario 2: Buffered adjacency.
func TestListSlotsBufferedAdjacencyScenario(t *testing.T) {
	et := &EventType{
		ID: "et1", HostID: "host1", DurationMin: 30, SlotIntervalMin: 15,
		BufferBeforeMin: 15, MinimumNoticeMin: 0, SchedulingWindowDays: 30, Active: true,
		WorkingHours: weekdayHours("09:00", "17:00"),
	}
	host := &Host{ID: "host1", Timezone: "America/New_York"}
	busy := &fakeBusyProvider{blocks: []intervals.Block{
		{Start: parse(t, "2024-01-15T10:00:00Z"), End: parse(t, "2024-01-15T11:00:00Z")},
	}}
	e := newTestEngine(parse(t, "2024-01-10T00:00:00Z"), et, host, busy, &fakeLedger{})

	slots, err := e.ListSlots(context.Background(), "et1",
		parse(t, "2024-01-15T00:00:00Z"), parse(t, "2024-01-16T00:00:00Z"), "America/New_York")
	require.NoError(t, err)

	var all []Slot
	for _, day := range slots {
		all = append(all, day...)
	}

	has := func(start string) bool {
		for _, s := range all {
			if s.Start.Equal(parse(t, start)) {
				return true
			}
		}
		return false
	}
	require.False(t, has("2024-01-15T11:00:00Z"))
	require.True(t, has("2024-01-15T11:15:00Z"))
}

// P6: no returned slot starts before now+minimumNotice or after
// now+schedulingWindow.
func TestListSlotsRespectsNoticeAndWindow(t *testing.T) {
	et := &EventType{
		ID: "et1", HostID: "host1", DurationMin: 30, SlotIntervalMin: 15,
		MinimumNoticeMin: 120, SchedulingWindowDays: 1, Active: true,
		WorkingHours: weekdayHours("00:00", "23:59"),
	}
	host := &Host{ID: "host1", Timezone: "UTC"}
	now := parse(t, "2024-01-15T10:00:00Z")
	e := newTestEngine(now, et, host, &fakeBusyProvider{}, &fakeLedger{})

	slots, err := e.ListSlots(context.Background(), "et1",
		now, now.Add(10*24*time.Hour), "UTC")
	require.NoError(t, err)

	minAllowed := now.Add(120 * time.Minute)
	maxAllowed := now.Add(24 * time.Hour)
	for _, day := range slots {
		for _, s := range day {
			require.False(t, s.Start.Before(minAllowed))
			require.False(t, s.Start.After(maxAllowed))
		}
	}
}

// P3: availability soundness — every slot listSlots returns passes
// isSlotBookable at the same clock, given the same busy snapshot.
func TestAvailabilitySoundness(t *testing.T) {
	et := &EventType{
		ID: "et1", HostID: "host1", DurationMin: 30, SlotIntervalMin: 15,
		MinimumNoticeMin: 0, SchedulingWindowDays: 7, Active: true,
		WorkingHours: weekdayHours("09:00", "17:00"),
	}
	host := &Host{ID: "host1", Timezone: "America/New_York"}
	busy := &fakeBusyProvider{blocks: []intervals.Block{
		{Start: parse(t, "2024-01-15T15:00:00Z"), End: parse(t, "2024-01-15T16:00:00Z")},
	}}
	ledger := &fakeLedger{}
	now := parse(t, "2024-01-10T00:00:00Z")
	e := newTestEngine(now, et, host, busy, ledger)

	slots, err := e.ListSlots(context.Background(), "et1",
		parse(t, "2024-01-15T00:00:00Z"), parse(t, "2024-01-16T00:00:00Z"), "America/New_York")
	require.NoError(t, err)

	for _, day := range slots {
		for _, s := range day {
			ok, err := e.IsSlotBookable(context.Background(), "et1", s.Start)
			require.NoError(t, err)
			require.True(t, ok, "slot %v returned by listSlots must be bookable", s.Start)
		}
	}
}

// Scenario 5: Upstream down — a busy-provider error must not fail
// listSlots; it degrades to treating that source as empty.
func TestListSlotsUpstreamDownFailsOpen(t *testing.T) {
	et := &EventType{
		ID: "et1", HostID: "host1", DurationMin: 30, SlotIntervalMin: 15,
		MinimumNoticeMin: 0, SchedulingWindowDays: 7, Active: true,
		WorkingHours: weekdayHours("09:00", "17:00"),
	}
	host := &Host{ID: "host1", Timezone: "UTC"}
	busy := &fakeBusyProvider{err: context.DeadlineExceeded}
	now := parse(t, "2024-01-10T00:00:00Z")
	e := newTestEngine(now, et, host, busy, &fakeLedger{})

	slots, err := e.ListSlots(context.Background(), "et1",
		parse(t, "2024-01-15T00:00:00Z"), parse(t, "2024-01-16T00:00:00Z"), "UTC")
	require.NoError(t, err)
	require.NotEmpty(t, slots)
}

// Scenario 6: cancel then rebook — a cancelled local booking must not
// appear in ActiveBookings, so the slot is immediately free again.
func TestListSlotsIgnoresCancelledBookings(t *testing.T) {
	et := &EventType{
		ID: "et1", HostID: "host1", DurationMin: 30, SlotIntervalMin: 15,
		MinimumNoticeMin: 0, SchedulingWindowDays: 7, Active: true,
		WorkingHours: weekdayHours("09:00", "17:00"),
	}
	host := &Host{ID: "host1", Timezone: "UTC"}
	// ledger with nothing booked (simulating the booking having been
	// cancelled — ActiveBookings only ever returns non-cancelled rows).
	ledger := &fakeLedger{}
	now := parse(t, "2024-01-10T00:00:00Z")
	e := newTestEngine(now, et, host, &fakeBusyProvider{}, ledger)

	ok, err := e.IsSlotBookable(context.Background(), "et1", parse(t, "2024-01-15T09:00:00Z"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsSlotBookableRejectsInactiveEventType(t *testing.T) {
	et := &EventType{ID: "et1", HostID: "host1", Active: false}
	host := &Host{ID: "host1", Timezone: "UTC"}
	e := newTestEngine(time.Now(), et, host, &fakeBusyProvider{}, &fakeLedger{})

	_, err := e.IsSlotBookable(context.Background(), "et1", time.Now())
	require.ErrorIs(t, err, ErrEventTypeNotFound)
}
