package booking

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openslate/openslate/internal/availability"
	"github.com/openslate/openslate/internal/clock"
	"github.com/openslate/openslate/internal/intervals"
	"github.com/openslate/openslate/internal/timezone"
)

// memStore is an in-memory Store enforcing the same uniqueness gate the
// real database constraints provide: one non-cancelled booking per
// (hostID, start, end), and a unique idempotency key.
type memStore struct {
	mu        sync.Mutex
	byID      map[string]*Booking
	byKey     map[string]*Booking
	bySlotKey map[string]*Booking
}

func newMemStore() *memStore {
	return &memStore{
		byID:      map[string]*Booking{},
		byKey:     map[string]*Booking{},
		bySlotKey: map[string]*Booking{},
	}
}

func slotKey(hostID string, start, end time.Time) string {
	return hostID + "|" + start.UTC().Format(time.RFC3339) + "|" + end.UTC().Format(time.RFC3339)
}

func (m *memStore) FindByIdempotencyKey(ctx context.Context, key string) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.byKey[key]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) Insert(ctx context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[b.IdempotencyKey]; b.IdempotencyKey != "" && ok {
		return ErrSlotTaken
	}
	sk := slotKey(b.HostID, b.Start, b.End)
	if _, ok := m.bySlotKey[sk]; ok {
		return ErrSlotTaken
	}
	cp := *b
	m.byID[b.ID] = &cp
	m.byKey[b.IdempotencyKey] = &cp
	m.bySlotKey[sk] = &cp
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) Update(ctx context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.byID[b.ID]
	if !ok {
		return ErrBookingNotFound
	}
	if old.Status != StatusCancelled && b.Status != StatusCancelled {
		sk := slotKey(b.HostID, b.Start, b.End)
		oldSk := slotKey(old.HostID, old.Start, old.End)
		if sk != oldSk {
			if _, taken := m.bySlotKey[sk]; taken {
				return ErrSlotTaken
			}
			delete(m.bySlotKey, oldSk)
			cp := *b
			m.bySlotKey[sk] = &cp
		}
	}
	cp := *b
	m.byID[b.ID] = &cp
	m.byKey[b.IdempotencyKey] = &cp
	return nil
}

type fakeEventTypeLoader struct {
	info *EventTypeInfo
}

func (f *fakeEventTypeLoader) Load(ctx context.Context, id string) (*EventTypeInfo, error) {
	return f.info, nil
}

type availabilityEventTypeLoader struct {
	et   *availability.EventType
	host *availability.Host
}

func (a *availabilityEventTypeLoader) Load(ctx context.Context, id string) (*availability.EventType, *availability.Host, error) {
	return a.et, a.host, nil
}

type noopBusy struct{}

func (noopBusy) GetBusyTimes(ctx context.Context, hostID string, start, end time.Time) ([]intervals.Block, error) {
	return nil, nil
}

// ledgerFromStore adapts memStore into availability.Ledger, so the engine
// re-checks against whatever the committer has actually inserted.
type ledgerFromStore struct {
	store *memStore
}

func (l *ledgerFromStore) ActiveBookings(ctx context.Context, hostID string, start, end time.Time) ([]availability.BookedInterval, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	var out []availability.BookedInterval
	for _, b := range l.store.byID {
		if b.HostID != hostID || b.Status == StatusCancelled {
			continue
		}
		if b.Start.Before(end) && b.End.After(start) {
			out = append(out, availability.BookedInterval{Start: b.Start, End: b.End})
		}
	}
	return out, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	confirmed int
	pending   int
	approved  int
	rejected  int
	cancelled int
}

func (n *fakeNotifier) OnConfirmed(ctx context.Context, b *Booking) (string, string, error) {
	n.mu.Lock()
	n.confirmed++
	n.mu.Unlock()
	return "ext-" + b.ID, "https://meet.example/" + b.ID, nil
}
func (n *fakeNotifier) OnPendingCreated(ctx context.Context, b *Booking) {
	n.mu.Lock()
	n.pending++
	n.mu.Unlock()
}
func (n *fakeNotifier) OnApproved(ctx context.Context, b *Booking) (string, string, error) {
	n.mu.Lock()
	n.approved++
	n.mu.Unlock()
	return "ext-" + b.ID, "https://meet.example/" + b.ID, nil
}
func (n *fakeNotifier) OnRejected(ctx context.Context, b *Booking) {
	n.mu.Lock()
	n.rejected++
	n.mu.Unlock()
}
func (n *fakeNotifier) OnCancelled(ctx context.Context, b *Booking) {
	n.mu.Lock()
	n.cancelled++
	n.mu.Unlock()
}

func weekdayHours(start, end string) []availability.WorkingHoursRule {
	var rules []availability.WorkingHoursRule
	for d := 0; d <= 6; d++ {
		rules = append(rules, availability.WorkingHoursRule{DayOfWeek: d, StartLocal: start, EndLocal: end})
	}
	return rules
}

func newHarness(t *testing.T, requiresApproval bool) (*Committer, *memStore, *fakeNotifier) {
	t.Helper()
	store := newMemStore()
	et := &availability.EventType{
		ID: "et1", HostID: "host1", DurationMin: 30, SlotIntervalMin: 15,
		MinimumNoticeMin: 0, SchedulingWindowDays: 365, Active: true,
		WorkingHours: weekdayHours("00:00", "23:59"),
	}
	host := &availability.Host{ID: "host1", Timezone: "UTC"}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.Frozen{At: now}
	engine := availability.New(c, timezone.New(), &availabilityEventTypeLoader{et: et, host: host}, noopBusy{}, &ledgerFromStore{store: store})
	events := &fakeEventTypeLoader{info: &EventTypeInfo{ID: "et1", HostID: "host1", TenantID: "tenant1", DurationMin: 30, RequiresApproval: requiresApproval, Active: true}}
	notifier := &fakeNotifier{}
	return New(c, events, engine, store, notifier), store, notifier
}

func slotAt(hour int) time.Time {
	return time.Date(2024, 1, 15, hour, 0, 0, 0, time.UTC)
}

// P1/P2: a committed request produces exactly one CONFIRMED booking, and
// post-commit side effects ran.
func TestCommitAutoConfirms(t *testing.T) {
	c, _, notifier := newHarness(t, false)
	res, err := c.Commit(context.Background(), Request{
		EventTypeID: "et1", Start: slotAt(10), GuestName: "Ada", GuestEmail: "ada@example.com", GuestTimezone: "UTC",
	})
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, res.Booking.Status)
	require.Equal(t, "ext-"+res.Booking.ID, res.Booking.ExternalEventID)
	require.Equal(t, 1, notifier.confirmed)
}

func TestCommitRequiresApprovalStaysPending(t *testing.T) {
	c, _, notifier := newHarness(t, true)
	res, err := c.Commit(context.Background(), Request{
		EventTypeID: "et1", Start: slotAt(10), GuestName: "Ada", GuestEmail: "ada@example.com", GuestTimezone: "UTC",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, res.Booking.Status)
	require.Equal(t, 1, notifier.pending)
	require.Equal(t, 0, notifier.confirmed)
}

// Scenario 4: idempotent retry — the same idempotency key returns the
// prior booking rather than creating a second one.
func TestCommitIdempotentRetryReturnsSameBooking(t *testing.T) {
	c, _, _ := newHarness(t, false)
	req := Request{
		EventTypeID: "et1", Start: slotAt(10), GuestName: "Ada", GuestEmail: "ada@example.com",
		GuestTimezone: "UTC", IdempotencyKey: "fixed-key-123",
	}
	first, err := c.Commit(context.Background(), req)
	require.NoError(t, err)

	second, err := c.Commit(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.Booking.ID, second.Booking.ID)
}

// Scenario 3 / P1: concurrent commits for the same slot — exactly one
// succeeds, the rest observe SlotTaken.
func TestConcurrentCommitsOnlyOneWins(t *testing.T) {
	c, _, _ := newHarness(t, false)
	const n = 10
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Commit(context.Background(), Request{
				EventTypeID: "et1", Start: slotAt(10), GuestName: "Guest",
				GuestEmail: "guest@example.com", GuestTimezone: "UTC",
				IdempotencyKey: "distinct-key-" + strconv.Itoa(i),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range results {
		if err == nil {
			successes++
		} else if err == ErrSlotTaken {
			conflicts++
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, n-1, conflicts)
}

func TestApproveRejectCancelLifecycle(t *testing.T) {
	c, _, notifier := newHarness(t, true)
	res, err := c.Commit(context.Background(), Request{
		EventTypeID: "et1", Start: slotAt(9), GuestName: "Ada", GuestEmail: "ada@example.com", GuestTimezone: "UTC",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, res.Booking.Status)

	approved, err := c.Approve(context.Background(), res.Booking.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, approved.Booking.Status)
	require.Equal(t, 1, notifier.approved)

	err = c.Cancel(context.Background(), approved.Booking.ID, "invitee", "schedule conflict")
	require.NoError(t, err)
	cancelled, err := c.store.(*memStore).Get(context.Background(), approved.Booking.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "invitee", cancelled.CancelledBy)
	require.Equal(t, 1, notifier.cancelled)
}

func TestRejectModelsAsHostCancelled(t *testing.T) {
	c, store, notifier := newHarness(t, true)
	res, err := c.Commit(context.Background(), Request{
		EventTypeID: "et1", Start: slotAt(11), GuestName: "Ada", GuestEmail: "ada@example.com", GuestTimezone: "UTC",
	})
	require.NoError(t, err)

	err = c.Reject(context.Background(), res.Booking.ID, "not available")
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), res.Booking.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, stored.Status)
	require.Equal(t, "host", stored.CancelledBy)
	require.Equal(t, 1, notifier.rejected)
}

// Scenario 6: cancel then rebook — once a booking is cancelled, the slot
// is immediately committable again.
func TestCancelThenRebook(t *testing.T) {
	c, _, _ := newHarness(t, false)
	first, err := c.Commit(context.Background(), Request{
		EventTypeID: "et1", Start: slotAt(14), GuestName: "Ada", GuestEmail: "ada@example.com", GuestTimezone: "UTC",
	})
	require.NoError(t, err)

	require.NoError(t, c.Cancel(context.Background(), first.Booking.ID, "invitee", "change of plans"))

	second, err := c.Commit(context.Background(), Request{
		EventTypeID: "et1", Start: slotAt(14), GuestName: "Grace", GuestEmail: "grace@example.com", GuestTimezone: "UTC",
	})
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, second.Booking.Status)
	require.NotEqual(t, first.Booking.ID, second.Booking.ID)
}

func TestRescheduleMovesSlotWithoutNewRow(t *testing.T) {
	c, store, _ := newHarness(t, false)
	res, err := c.Commit(context.Background(), Request{
		EventTypeID: "et1", Start: slotAt(9), GuestName: "Ada", GuestEmail: "ada@example.com", GuestTimezone: "UTC",
	})
	require.NoError(t, err)

	moved, err := c.Reschedule(context.Background(), res.Booking.ID, slotAt(13))
	require.NoError(t, err)
	require.Equal(t, res.Booking.ID, moved.Booking.ID)
	require.Equal(t, slotAt(13), moved.Booking.Start)

	stored, err := store.Get(context.Background(), res.Booking.ID)
	require.NoError(t, err)
	require.Equal(t, slotAt(13), stored.Start)
}

func TestRescheduleRejectsOccupiedSlot(t *testing.T) {
	c, _, _ := newHarness(t, false)
	a, err := c.Commit(context.Background(), Request{
		EventTypeID: "et1", Start: slotAt(9), GuestName: "Ada", GuestEmail: "ada@example.com", GuestTimezone: "UTC",
	})
	require.NoError(t, err)
	b, err := c.Commit(context.Background(), Request{
		EventTypeID: "et1", Start: slotAt(13), GuestName: "Grace", GuestEmail: "grace@example.com", GuestTimezone: "UTC",
	})
	require.NoError(t, err)

	_, err = c.Reschedule(context.Background(), a.Booking.ID, b.Booking.Start)
	require.ErrorIs(t, err, ErrSlotTaken)
}
