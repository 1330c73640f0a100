// Package booking implements BookingCommit: the state machine that turns a
// bookable slot into a durable, race-free reservation, plus the
// approve/reject/cancel/reschedule transitions built on top of it.
//
// Grounded on internal/services/booking.go's CreateBooking/ApproveBooking/
// RejectBooking/CancelBooking/RescheduleBooking, generalized behind a
// narrow Store interface so the uniqueness-gate and idempotency behavior
// can be unit tested against an in-memory store instead of a live
// database, and reworked so rejection is no longer a fifth status but a
// CANCELLED transition carrying cancelledBy=host.
package booking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openslate/openslate/internal/availability"
	"github.com/openslate/openslate/internal/clock"
)

// Status is the booking lifecycle state. Host rejection of a PENDING
// booking is modeled as Cancelled with CancelledBy="host" rather than a
// separate status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var (
	ErrEventTypeNotFound = errors.New("event type not found or inactive")
	ErrSlotTaken         = errors.New("slot is no longer available")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidState      = errors.New("booking is not in a state that allows this transition")
	ErrInvalidGuest      = errors.New("invitee name and email are required")
)

// EventTypeInfo is the subset of event-type configuration BookingCommit
// needs that availability.EventType doesn't already expose.
type EventTypeInfo struct {
	ID               string
	HostID           string
	TenantID         string
	DurationMin      int
	RequiresApproval bool
	Active           bool
}

// EventTypeLoader loads the booking-relevant event-type fields.
type EventTypeLoader interface {
	Load(ctx context.Context, eventTypeID string) (*EventTypeInfo, error)
}

// Booking is the durable record BookingCommit produces and mutates.
type Booking struct {
	ID              string
	EventTypeID     string
	HostID          string
	TenantID        string
	Start           time.Time
	End             time.Time
	GuestName       string
	GuestEmail      string
	GuestTimezone   string
	IdempotencyKey  string
	Status          Status
	ExternalEventID string
	MeetingURL      string
	CancelledBy     string
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store is the persistence boundary BookingCommit drives. Insert must
// enforce, at the storage layer, a uniqueness constraint on (hostID,
// start, end) restricted to non-cancelled bookings, and a uniqueness
// constraint on idempotencyKey when non-empty — returning ErrSlotTaken
// when either is violated. This mirrors the database-level constraints
// that are the actual source of truth; Store is the seam that lets the
// same commit logic run against a fake in tests.
type Store interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*Booking, error)
	Insert(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	Update(ctx context.Context, b *Booking) error
}

// Notifier fires the best-effort post-commit side effects (external
// calendar event creation, conferencing link, email). All of its methods
// are expected to be non-blocking failure domains: Committer never lets a
// Notifier error roll back a booking, it only surfaces it to the caller
// via the returned warnings.
type Notifier interface {
	OnConfirmed(ctx context.Context, b *Booking) (externalEventID, meetingURL string, err error)
	OnPendingCreated(ctx context.Context, b *Booking)
	OnApproved(ctx context.Context, b *Booking) (externalEventID, meetingURL string, err error)
	OnRejected(ctx context.Context, b *Booking)
	OnCancelled(ctx context.Context, b *Booking)
}

// Request is the input to Commit.
type Request struct {
	EventTypeID    string
	Start          time.Time
	GuestName      string
	GuestEmail     string
	GuestTimezone  string
	IdempotencyKey string // empty: server derives one
}

// Result carries the committed booking plus any non-fatal warnings from
// the best-effort post-commit phase.
type Result struct {
	Booking  *Booking
	Warnings []string
}

// Committer implements BookingCommit and its supplemented transitions.
type Committer struct {
	clock    clock.Clock
	events   EventTypeLoader
	engine   *availability.Engine
	store    Store
	notifier Notifier
}

func New(c clock.Clock, events EventTypeLoader, engine *availability.Engine, store Store, notifier Notifier) *Committer {
	return &Committer{clock: c, events: events, engine: engine, store: store, notifier: notifier}
}

// Commit runs the full commit pipeline: idempotency short-circuit,
// validation, slot re-check, insert behind the uniqueness gate, and
// best-effort post-commit side effects.
func (c *Committer) Commit(ctx context.Context, req Request) (*Result, error) {
	if req.GuestName == "" || req.GuestEmail == "" {
		return nil, ErrInvalidGuest
	}

	key := req.IdempotencyKey
	if key == "" {
		key = deriveIdempotencyKey(req.EventTypeID, req.Start, req.GuestEmail, c.clock.Now())
	}
	if existing, err := c.store.FindByIdempotencyKey(ctx, key); err != nil {
		return nil, err
	} else if existing != nil {
		return &Result{Booking: existing}, nil
	}

	et, err := c.events.Load(ctx, req.EventTypeID)
	if err != nil {
		return nil, err
	}
	if et == nil || !et.Active {
		return nil, ErrEventTypeNotFound
	}

	bookable, err := c.engine.IsSlotBookable(ctx, req.EventTypeID, req.Start)
	if err != nil {
		return nil, err
	}
	if !bookable {
		return nil, ErrSlotTaken
	}

	status := StatusConfirmed
	if et.RequiresApproval {
		status = StatusPending
	}

	now := c.clock.Now()
	b := &Booking{
		ID:             uuid.New().String(),
		EventTypeID:    req.EventTypeID,
		HostID:         et.HostID,
		TenantID:       et.TenantID,
		Start:          req.Start,
		End:            req.Start.Add(time.Duration(et.DurationMin) * time.Minute),
		GuestName:      req.GuestName,
		GuestEmail:     req.GuestEmail,
		GuestTimezone:  req.GuestTimezone,
		IdempotencyKey: key,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := c.store.Insert(ctx, b); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	result := &Result{Booking: b}
	if status == StatusConfirmed {
		c.fireConfirmed(ctx, b, result)
	} else {
		c.notifier.OnPendingCreated(ctx, b)
	}
	return result, nil
}

// Approve transitions a PENDING booking to CONFIRMED, running the same
// best-effort external-side-effect step Commit runs for an auto-confirmed
// booking.
func (c *Committer) Approve(ctx context.Context, bookingID string) (*Result, error) {
	b, err := c.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	if b.Status != StatusPending {
		return nil, ErrInvalidState
	}

	b.Status = StatusConfirmed
	b.UpdatedAt = c.clock.Now()
	if err := c.store.Update(ctx, b); err != nil {
		return nil, err
	}

	result := &Result{Booking: b}
	eventID, url, err := c.notifier.OnApproved(ctx, b)
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	} else {
		b.ExternalEventID = eventID
		b.MeetingURL = url
		_ = c.store.Update(ctx, b)
	}
	return result, nil
}

// Reject transitions a PENDING booking to CANCELLED with
// cancelledBy="host" — the host-rejection path modeled without a
// dedicated status.
func (c *Committer) Reject(ctx context.Context, bookingID, reason string) error {
	b, err := c.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b == nil {
		return ErrBookingNotFound
	}
	if b.Status != StatusPending {
		return ErrInvalidState
	}

	b.Status = StatusCancelled
	b.CancelledBy = "host"
	b.CancelReason = reason
	b.UpdatedAt = c.clock.Now()
	if err := c.store.Update(ctx, b); err != nil {
		return err
	}
	c.notifier.OnRejected(ctx, b)
	return nil
}

// Cancel transitions a CONFIRMED or PENDING booking to CANCELLED.
func (c *Committer) Cancel(ctx context.Context, bookingID, cancelledBy, reason string) error {
	b, err := c.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b == nil {
		return ErrBookingNotFound
	}
	if b.Status == StatusCancelled {
		return ErrInvalidState
	}

	b.Status = StatusCancelled
	b.CancelledBy = cancelledBy
	b.CancelReason = reason
	b.UpdatedAt = c.clock.Now()
	if err := c.store.Update(ctx, b); err != nil {
		return err
	}
	c.notifier.OnCancelled(ctx, b)
	return nil
}

// Reschedule re-runs isSlotBookable for the new start and, if it clears,
// mutates the booking's start/end in place rather than creating a new
// row — the unique constraint still guards against colliding with
// another booking at the new time.
func (c *Committer) Reschedule(ctx context.Context, bookingID string, newStart time.Time) (*Result, error) {
	b, err := c.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	if b.Status == StatusCancelled {
		return nil, ErrInvalidState
	}

	et, err := c.events.Load(ctx, b.EventTypeID)
	if err != nil {
		return nil, err
	}
	if et == nil || !et.Active {
		return nil, ErrEventTypeNotFound
	}

	bookable, err := c.engine.IsSlotBookable(ctx, b.EventTypeID, newStart)
	if err != nil {
		return nil, err
	}
	if !bookable {
		return nil, ErrSlotTaken
	}

	b.Start = newStart
	b.End = newStart.Add(time.Duration(et.DurationMin) * time.Minute)
	b.ExternalEventID = ""
	b.MeetingURL = ""
	b.UpdatedAt = c.clock.Now()
	if err := c.store.Update(ctx, b); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	result := &Result{Booking: b}
	if b.Status == StatusConfirmed {
		c.fireConfirmed(ctx, b, result)
	}
	return result, nil
}

func (c *Committer) fireConfirmed(ctx context.Context, b *Booking, result *Result) {
	eventID, url, err := c.notifier.OnConfirmed(ctx, b)
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
		return
	}
	b.ExternalEventID = eventID
	b.MeetingURL = url
	_ = c.store.Update(ctx, b)
}

// deriveIdempotencyKey builds a server-side key from the fields that
// identify "the same click" within the same wall-clock millisecond: a
// naive retry lands on the same key and is deduplicated, but an ordinary
// distinct retry a second later gets its own key.
func deriveIdempotencyKey(eventTypeID string, start time.Time, guestEmail string, now time.Time) string {
	h := sha256.New()
	h.Write([]byte(eventTypeID))
	h.Write([]byte(start.UTC().Format(time.RFC3339)))
	h.Write([]byte(guestEmail))
	h.Write([]byte(strconv.FormatInt(now.UnixMilli(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}
