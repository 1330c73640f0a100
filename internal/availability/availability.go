// Package availability implements the Availability Engine: the
// composition of Clock, TimezoneResolver, BusyProvider, the local booking
// ledger, and the interval algebra into listSlots and isSlotBookable.
//
// Grounded on internal/services/availability.go's GetAvailableSlots and
// its helpers (getSingleHostSlots, getSlotsForDay, generateSlotsInRange,
// slotOverlapsBusy, mergeTimeSlots), generalized behind narrow interfaces
// so it can run against an in-memory ledger and busy provider in tests, and
// trimmed of the teacher's pooled/multi-host intersection path
// (getPooledHostSlots, intersectSlots) — multi-host availability is an
// explicit Non-goal.
package availability

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/openslate/openslate/internal/clock"
	"github.com/openslate/openslate/internal/intervals"
	"github.com/openslate/openslate/internal/timezone"
)

// ErrEventTypeNotFound is returned when the event type is absent or
// inactive.
var ErrEventTypeNotFound = errors.New("event type not found or inactive")

// WorkingHoursRule is one day's bookable window in host-local wall time.
type WorkingHoursRule struct {
	DayOfWeek  int // 0 = Sunday, matching time.Weekday
	StartLocal string
	EndLocal   string
}

// EventType is the effective configuration listSlots/isSlotBookable act on.
type EventType struct {
	ID                   string
	HostID               string
	DurationMin          int
	BufferBeforeMin      int
	BufferAfterMin       int
	MinimumNoticeMin     int
	SchedulingWindowDays int
	SlotIntervalMin      int
	WorkingHours         []WorkingHoursRule
	Active               bool
}

// Host carries just what the engine needs about the event type's owner.
type Host struct {
	ID       string
	Timezone string
}

// BookedInterval is a local booking's occupied span.
type BookedInterval struct {
	Start, End time.Time
}

// EventTypeLoader loads an EventType and its Host by id.
type EventTypeLoader interface {
	Load(ctx context.Context, eventTypeID string) (*EventType, *Host, error)
}

// BusyProvider fetches external busy blocks for a host over a window.
// Implementations fail open per the BusyProvider contract: a fetch error
// for one or more accounts yields fewer blocks, never a propagated error.
type BusyProvider interface {
	GetBusyTimes(ctx context.Context, hostID string, start, end time.Time) ([]intervals.Block, error)
}

// Ledger reads the local, non-cancelled booking set.
type Ledger interface {
	ActiveBookings(ctx context.Context, hostID string, start, end time.Time) ([]BookedInterval, error)
}

// Slot is a bookable half-open interval.
type Slot struct {
	Start, End time.Time
}

// Engine composes the collaborators into listSlots and isSlotBookable.
type Engine struct {
	clock  clock.Clock
	tz     *timezone.Resolver
	events EventTypeLoader
	busy   BusyProvider
	ledger Ledger
}

// New builds an Engine from its collaborators.
func New(c clock.Clock, tz *timezone.Resolver, events EventTypeLoader, busy BusyProvider, ledger Ledger) *Engine {
	return &Engine{clock: c, tz: tz, events: events, busy: busy, ledger: ledger}
}

// ListSlots returns bookable slots in [rangeStart, rangeEnd), grouped by
// local date in guestTimezone, ascending within each group.
func (e *Engine) ListSlots(ctx context.Context, eventTypeID string, rangeStart, rangeEnd time.Time, guestTimezone string) (map[string][]Slot, error) {
	et, host, err := e.events.Load(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	if et == nil || !et.Active {
		return nil, ErrEventTypeNotFound
	}

	now := e.clock.Now()
	minNotice := time.Duration(et.MinimumNoticeMin) * time.Minute
	window := time.Duration(et.SchedulingWindowDays) * 24 * time.Hour
	effectiveStart := maxTime(rangeStart, now.Add(minNotice))
	effectiveEnd := minTime(rangeEnd, now.Add(window))
	if !effectiveStart.Before(effectiveEnd) {
		return map[string][]Slot{}, nil
	}

	merged, err := e.snapshotBusy(ctx, host.ID, effectiveStart, effectiveEnd)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(et.DurationMin) * time.Minute
	slotInterval := time.Duration(et.SlotIntervalMin) * time.Minute
	bufBefore := time.Duration(et.BufferBeforeMin) * time.Minute
	bufAfter := time.Duration(et.BufferAfterMin) * time.Minute

	hostLoc := e.tz.Load(host.Timezone)
	guestLoc := e.tz.Load(guestTimezone)

	result := map[string][]Slot{}
	for day := startOfLocalDay(effectiveStart, hostLoc); day.Before(effectiveEnd); day = day.AddDate(0, 0, 1) {
		dow := int(day.In(hostLoc).Weekday())
		for _, rule := range et.WorkingHours {
			if rule.DayOfWeek != dow {
				continue
			}
			workStart, ok1 := e.wallInstant(day, hostLoc, host.Timezone, rule.StartLocal)
			workEnd, ok2 := e.wallInstant(day, hostLoc, host.Timezone, rule.EndLocal)
			if !ok1 || !ok2 || !workStart.Before(workEnd) {
				continue
			}
			for _, slot := range intervals.EnumerateDay(e.tz, host.Timezone, workStart, workEnd, duration, slotInterval) {
				if slot.Start.Before(effectiveStart) || slot.End.After(effectiveEnd) {
					continue
				}
				if intervals.Overlaps(slot.Start, slot.End, merged, bufBefore, bufAfter) {
					continue
				}
				key := slot.Start.In(guestLoc).Format("2006-01-02")
				result[key] = append(result[key], Slot{Start: slot.Start, End: slot.End})
			}
		}
	}
	for k := range result {
		sort.Slice(result[k], func(i, j int) bool { return result[k][i].Start.Before(result[k][j].Start) })
	}
	return result, nil
}

// IsSlotBookable recomputes, against fresh data, whether a single slot is
// bookable. This is the pre-commit check BookingCommit runs before insert.
func (e *Engine) IsSlotBookable(ctx context.Context, eventTypeID string, start time.Time) (bool, error) {
	et, host, err := e.events.Load(ctx, eventTypeID)
	if err != nil {
		return false, err
	}
	if et == nil || !et.Active {
		return false, ErrEventTypeNotFound
	}

	now := e.clock.Now()
	duration := time.Duration(et.DurationMin) * time.Minute
	end := start.Add(duration)
	minNotice := time.Duration(et.MinimumNoticeMin) * time.Minute
	window := time.Duration(et.SchedulingWindowDays) * 24 * time.Hour
	if start.Before(now.Add(minNotice)) {
		return false, nil
	}
	if end.After(now.Add(window)) {
		return false, nil
	}

	hostLoc := e.tz.Load(host.Timezone)
	dow := int(start.In(hostLoc).Weekday())
	day := startOfLocalDay(start, hostLoc)

	inWorkingHours := false
	for _, rule := range et.WorkingHours {
		if rule.DayOfWeek != dow {
			continue
		}
		workStart, ok1 := e.wallInstant(day, hostLoc, host.Timezone, rule.StartLocal)
		workEnd, ok2 := e.wallInstant(day, hostLoc, host.Timezone, rule.EndLocal)
		if ok1 && ok2 && !start.Before(workStart) && !end.After(workEnd) {
			inWorkingHours = true
			break
		}
	}
	if !inWorkingHours {
		return false, nil
	}

	bufBefore := time.Duration(et.BufferBeforeMin) * time.Minute
	bufAfter := time.Duration(et.BufferAfterMin) * time.Minute

	busy, err := e.busy.GetBusyTimes(ctx, host.ID, start.Add(-bufBefore), end.Add(bufAfter))
	if err != nil {
		// BusyProvider fails open per account internally; an error surfacing
		// here means treat the window as having no external busy data rather
		// than rejecting the slot outright.
		busy = nil
	}
	if intervals.Overlaps(start, end, busy, bufBefore, bufAfter) {
		return false, nil
	}

	booked, err := e.ledger.ActiveBookings(ctx, host.ID, start, end)
	if err != nil {
		return false, err
	}
	for _, b := range booked {
		if start.Before(b.End) && end.After(b.Start) {
			return false, nil
		}
	}
	return true, nil
}

// snapshotBusy fans the external and local busy sources out in parallel —
// the per-task error isolation the design notes call for — and merges the
// union. A ledger error is fatal (it is our own database); a busy-provider
// error is not surfaced past this point, since BusyProvider already fails
// open per account.
func (e *Engine) snapshotBusy(ctx context.Context, hostID string, start, end time.Time) ([]intervals.Block, error) {
	var (
		wg         sync.WaitGroup
		extBlocks  []intervals.Block
		booked     []BookedInterval
		ledgerErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		blocks, err := e.busy.GetBusyTimes(ctx, hostID, start, end)
		if err == nil {
			extBlocks = blocks
		}
	}()
	go func() {
		defer wg.Done()
		b, err := e.ledger.ActiveBookings(ctx, hostID, start, end)
		booked, ledgerErr = b, err
	}()
	wg.Wait()
	if ledgerErr != nil {
		return nil, ledgerErr
	}

	all := make([]intervals.Block, 0, len(extBlocks)+len(booked))
	all = append(all, extBlocks...)
	for _, b := range booked {
		all = append(all, intervals.Block{Start: b.Start, End: b.End})
	}
	return intervals.Merge(all), nil
}

func (e *Engine) wallInstant(day time.Time, hostLoc *time.Location, zone, hhmm string) (time.Time, bool) {
	hour, min, ok := parseHHMM(hhmm)
	if !ok {
		return time.Time{}, false
	}
	d := day.In(hostLoc)
	w := timezone.Wall{Year: d.Year(), Month: int(d.Month()), Day: d.Day(), Hour: hour, Minute: min}
	return e.tz.ToInstant(w, zone), true
}

func parseHHMM(s string) (hour, min int, ok bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func startOfLocalDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
