package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/openslate/openslate/internal/availability"
	"github.com/openslate/openslate/internal/booking"
	"github.com/openslate/openslate/internal/clock"
	"github.com/openslate/openslate/internal/intervals"
	"github.com/openslate/openslate/internal/models"
	"github.com/openslate/openslate/internal/repository"
	"github.com/openslate/openslate/internal/services"
	"github.com/openslate/openslate/internal/timezone"
)

const defaultSlotIntervalMin = 15

// SchedulingHandler serves the core JSON booking API described by the
// availability/booking engines, alongside the HTML/HTMX surface PublicHandler
// serves. Both sit on top of the same repositories and services; this one
// talks JSON in and JSON out instead of rendering templates.
type SchedulingHandler struct {
	handlers  *Handlers
	engine    *availability.Engine
	committer *booking.Committer
	store     *committerStore
}

func newSchedulingHandler(h *Handlers) *SchedulingHandler {
	tz := timezone.New()
	c := clock.Real{}

	events := &templateEventTypeLoader{repos: h.repos}
	busy := &calendarBusyProvider{services: h.services}
	ledger := &bookingLedger{repos: h.repos}
	engine := availability.New(c, tz, events, busy, ledger)

	store := &committerStore{repos: h.repos}
	notifier := &committerNotifier{handlers: h}
	committer := booking.New(c, &committerEventTypeLoader{repos: h.repos}, engine, store, notifier)

	return &SchedulingHandler{handlers: h, engine: engine, committer: committer, store: store}
}

// -- availability.EventTypeLoader --------------------------------------

type templateEventTypeLoader struct {
	repos *repository.Repositories
}

func (l *templateEventTypeLoader) Load(ctx context.Context, eventTypeID string) (*availability.EventType, *availability.Host, error) {
	tmpl, err := l.repos.Template.GetByID(ctx, eventTypeID)
	if err != nil {
		return nil, nil, err
	}
	if tmpl == nil {
		return nil, nil, nil
	}
	host, err := l.repos.Host.GetByID(ctx, tmpl.HostID)
	if err != nil {
		return nil, nil, err
	}
	if host == nil {
		return nil, nil, nil
	}

	duration := 30
	if len(tmpl.Durations) > 0 {
		duration = tmpl.Durations[0]
	}

	workingHours, err := l.workingHours(ctx, tmpl)
	if err != nil {
		return nil, nil, err
	}

	et := &availability.EventType{
		ID:                   tmpl.ID,
		HostID:               tmpl.HostID,
		DurationMin:          duration,
		BufferBeforeMin:      tmpl.PreBufferMinutes,
		BufferAfterMin:       tmpl.PostBufferMinutes,
		MinimumNoticeMin:     tmpl.MinNoticeMinutes,
		SchedulingWindowDays: tmpl.MaxScheduleDays,
		SlotIntervalMin:      defaultSlotIntervalMin,
		WorkingHours:         workingHours,
		Active:               tmpl.IsActive,
	}
	return et, &availability.Host{ID: host.ID, Timezone: host.Timezone}, nil
}

// workingHours builds the weekly schedule for a template, preferring its own
// per-template override and falling back to the host's working hours when
// the template doesn't define one of its own.
func (l *templateEventTypeLoader) workingHours(ctx context.Context, tmpl *models.MeetingTemplate) ([]availability.WorkingHoursRule, error) {
	if rules := services.ParseAvailabilityRules(tmpl.AvailabilityRules); rules != nil && rules.Enabled {
		var out []availability.WorkingHoursRule
		for day, avail := range rules.Days {
			if !avail.Enabled {
				continue
			}
			for _, interval := range avail.Intervals {
				out = append(out, availability.WorkingHoursRule{
					DayOfWeek:  day,
					StartLocal: interval.Start,
					EndLocal:   interval.End,
				})
			}
		}
		return out, nil
	}

	hostHours, err := l.repos.WorkingHours.GetByHostID(ctx, tmpl.HostID)
	if err != nil {
		return nil, err
	}
	var out []availability.WorkingHoursRule
	for _, wh := range hostHours {
		if !wh.IsEnabled {
			continue
		}
		out = append(out, availability.WorkingHoursRule{
			DayOfWeek:  wh.DayOfWeek,
			StartLocal: wh.StartTime,
			EndLocal:   wh.EndTime,
		})
	}
	return out, nil
}

// -- availability.BusyProvider -------------------------------------------

type calendarBusyProvider struct {
	services *services.Services
}

func (b *calendarBusyProvider) GetBusyTimes(ctx context.Context, hostID string, start, end time.Time) ([]intervals.Block, error) {
	slots, err := b.services.Calendar.GetBusyTimes(ctx, hostID, start, end)
	if err != nil {
		return nil, err
	}
	blocks := make([]intervals.Block, 0, len(slots))
	for _, s := range slots {
		blocks = append(blocks, intervals.Block{Start: s.Start, End: s.End})
	}
	return blocks, nil
}

// -- availability.Ledger --------------------------------------------------

type bookingLedger struct {
	repos *repository.Repositories
}

func (l *bookingLedger) ActiveBookings(ctx context.Context, hostID string, start, end time.Time) ([]availability.BookedInterval, error) {
	bookings, err := l.repos.Booking.GetByHostIDAndTimeRange(ctx, hostID, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]availability.BookedInterval, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, availability.BookedInterval{Start: b.StartTime.Time, End: b.EndTime.Time})
	}
	return out, nil
}

// -- booking.EventTypeLoader -----------------------------------------------

type committerEventTypeLoader struct {
	repos *repository.Repositories
}

func (l *committerEventTypeLoader) Load(ctx context.Context, eventTypeID string) (*booking.EventTypeInfo, error) {
	tmpl, err := l.repos.Template.GetByID(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, nil
	}
	host, err := l.repos.Host.GetByID(ctx, tmpl.HostID)
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, nil
	}

	duration := 30
	if len(tmpl.Durations) > 0 {
		duration = tmpl.Durations[0]
	}

	return &booking.EventTypeInfo{
		ID:               tmpl.ID,
		HostID:           tmpl.HostID,
		TenantID:         host.TenantID,
		DurationMin:      duration,
		RequiresApproval: tmpl.RequiresApproval,
		Active:           tmpl.IsActive,
	}, nil
}

// -- booking.Store -----------------------------------------------------

type committerStore struct {
	repos *repository.Repositories
}

func (s *committerStore) FindByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	b, err := s.repos.Booking.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return toCommitterBooking(b), nil
}

func (s *committerStore) Insert(ctx context.Context, b *booking.Booking) error {
	if err := s.repos.Booking.Create(ctx, fromCommitterBooking(b)); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return booking.ErrSlotTaken
		}
		return err
	}
	return nil
}

func (s *committerStore) Get(ctx context.Context, id string) (*booking.Booking, error) {
	b, err := s.repos.Booking.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return toCommitterBooking(b), nil
}

func (s *committerStore) Update(ctx context.Context, b *booking.Booking) error {
	if err := s.repos.Booking.Update(ctx, fromCommitterBooking(b)); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return booking.ErrSlotTaken
		}
		return err
	}
	return nil
}

func toCommitterBooking(b *models.Booking) *booking.Booking {
	var idempotencyKey string
	if b.IdempotencyKey != nil {
		idempotencyKey = *b.IdempotencyKey
	}
	return &booking.Booking{
		ID:              b.ID,
		EventTypeID:     b.TemplateID,
		HostID:          b.HostID,
		Start:           b.StartTime.Time,
		End:             b.EndTime.Time,
		GuestName:       b.InviteeName,
		GuestEmail:      b.InviteeEmail,
		GuestTimezone:   b.InviteeTimezone,
		IdempotencyKey:  idempotencyKey,
		Status:          booking.Status(b.Status),
		ExternalEventID: b.CalendarEventID,
		MeetingURL:      b.ConferenceLink,
		CancelledBy:     b.CancelledBy,
		CancelReason:    b.CancelReason,
		CreatedAt:       b.CreatedAt.Time,
		UpdatedAt:       b.UpdatedAt.Time,
	}
}

func fromCommitterBooking(b *booking.Booking) *models.Booking {
	var idempotencyKey *string
	if b.IdempotencyKey != "" {
		idempotencyKey = &b.IdempotencyKey
	}
	return &models.Booking{
		ID:              b.ID,
		TemplateID:      b.EventTypeID,
		HostID:          b.HostID,
		Token:           b.ID,
		Status:          models.BookingStatus(b.Status),
		StartTime:       models.NewSQLiteTime(b.Start),
		EndTime:         models.NewSQLiteTime(b.End),
		Duration:        int(b.End.Sub(b.Start).Minutes()),
		InviteeName:     b.GuestName,
		InviteeEmail:    b.GuestEmail,
		InviteeTimezone: b.GuestTimezone,
		ConferenceLink:  b.MeetingURL,
		CalendarEventID: b.ExternalEventID,
		CancelledBy:     b.CancelledBy,
		CancelReason:    b.CancelReason,
		IdempotencyKey:  idempotencyKey,
		CreatedAt:       models.NewSQLiteTime(b.CreatedAt),
		UpdatedAt:       models.NewSQLiteTime(b.UpdatedAt),
	}
}

// -- booking.Notifier -----------------------------------------------------

type committerNotifier struct {
	handlers *Handlers
}

func (n *committerNotifier) details(ctx context.Context, b *booking.Booking) (*services.BookingWithDetails, error) {
	tmpl, err := n.handlers.repos.Template.GetByID(ctx, b.EventTypeID)
	if err != nil {
		return nil, err
	}
	host, err := n.handlers.repos.Host.GetByID(ctx, b.HostID)
	if err != nil {
		return nil, err
	}
	var tenant *models.Tenant
	if host != nil {
		tenant, err = n.handlers.repos.Tenant.GetByID(ctx, host.TenantID)
		if err != nil {
			return nil, err
		}
	}
	return &services.BookingWithDetails{
		Booking:  fromCommitterBooking(b),
		Template: tmpl,
		Host:     host,
		Tenant:   tenant,
	}, nil
}

func (n *committerNotifier) OnConfirmed(ctx context.Context, b *booking.Booking) (string, string, error) {
	details, err := n.details(ctx, b)
	if err != nil {
		return "", "", err
	}

	meetingURL := details.Booking.ConferenceLink
	if details.Template != nil &&
		(details.Template.LocationType == models.ConferencingProviderGoogleMeet ||
			details.Template.LocationType == models.ConferencingProviderZoom) {
		if link, err := n.handlers.services.Conferencing.CreateMeeting(ctx, details); err == nil && link != "" {
			meetingURL = link
			details.Booking.ConferenceLink = link
		}
	}

	externalEventID, err := n.handlers.services.Calendar.CreateEvent(ctx, details)
	if err != nil {
		externalEventID = ""
	}
	details.Booking.CalendarEventID = externalEventID

	n.handlers.services.Email.SendBookingConfirmed(ctx, details)
	return externalEventID, meetingURL, nil
}

func (n *committerNotifier) OnPendingCreated(ctx context.Context, b *booking.Booking) {
	details, err := n.details(ctx, b)
	if err != nil {
		return
	}
	n.handlers.services.Email.SendBookingRequested(ctx, details)
}

func (n *committerNotifier) OnApproved(ctx context.Context, b *booking.Booking) (string, string, error) {
	return n.OnConfirmed(ctx, b)
}

func (n *committerNotifier) OnRejected(ctx context.Context, b *booking.Booking) {
	details, err := n.details(ctx, b)
	if err != nil {
		return
	}
	n.handlers.services.Email.SendBookingRejected(ctx, details)
}

func (n *committerNotifier) OnCancelled(ctx context.Context, b *booking.Booking) {
	details, err := n.details(ctx, b)
	if err != nil {
		return
	}
	n.handlers.services.Email.SendBookingCancelled(ctx, details)
}

// -- JSON HTTP surface ------------------------------------------------

type slotJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type availabilityResponseJSON struct {
	Slots    map[string][]slotJSON `json:"slots"`
	Timezone string                `json:"timezone"`
}

// ListAvailability serves GET /availability?eventTypeId&startDate&endDate&timezone
func (h *SchedulingHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	eventTypeID := q.Get("eventTypeId")
	guestTimezone := q.Get("timezone")
	if guestTimezone == "" {
		guestTimezone = "UTC"
	}
	if eventTypeID == "" {
		writeJSONError(w, http.StatusBadRequest, "eventTypeId is required")
		return
	}

	start, err := time.Parse(time.RFC3339, q.Get("startDate"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid startDate")
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("endDate"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid endDate")
		return
	}

	slotsByDate, err := h.engine.ListSlots(r.Context(), eventTypeID, start, end, guestTimezone)
	if err != nil {
		if errors.Is(err, availability.ErrEventTypeNotFound) {
			writeJSONError(w, http.StatusNotFound, "event type not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}

	resp := availabilityResponseJSON{Slots: make(map[string][]slotJSON), Timezone: guestTimezone}
	for date, slots := range slotsByDate {
		out := make([]slotJSON, 0, len(slots))
		for _, s := range slots {
			out = append(out, slotJSON{
				Start: s.Start.UTC().Format(time.RFC3339),
				End:   s.End.UTC().Format(time.RFC3339),
			})
		}
		resp.Slots[date] = out
	}

	writeJSON(w, http.StatusOK, resp)
}

type guestJSON struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type createBookingRequestJSON struct {
	EventTypeID     string          `json:"eventTypeId"`
	StartTime       string          `json:"startTime"`
	Timezone        string          `json:"timezone"`
	Guest           guestJSON       `json:"guest"`
	CustomResponses json.RawMessage `json:"customResponses,omitempty"`
	IdempotencyKey  string          `json:"idempotencyKey,omitempty"`
}

type bookingJSON struct {
	UID        string `json:"uid"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	MeetingURL string `json:"meetingUrl,omitempty"`
}

// CreateBooking serves POST /bookings
func (h *SchedulingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequestJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventTypeID == "" || req.Guest.Name == "" || req.Guest.Email == "" {
		writeJSONError(w, http.StatusBadRequest, "eventTypeId, guest.name and guest.email are required")
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid startTime")
		return
	}

	status := http.StatusCreated
	if req.IdempotencyKey != "" {
		if existing, err := h.store.FindByIdempotencyKey(r.Context(), req.IdempotencyKey); err == nil && existing != nil {
			status = http.StatusOK
		}
	}

	result, err := h.committer.Commit(r.Context(), booking.Request{
		EventTypeID:    req.EventTypeID,
		Start:          startTime,
		GuestName:      req.Guest.Name,
		GuestEmail:     req.Guest.Email,
		GuestTimezone:  req.Timezone,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrInvalidGuest):
			writeJSONError(w, http.StatusBadRequest, "invalid guest details")
		case errors.Is(err, booking.ErrEventTypeNotFound):
			writeJSONError(w, http.StatusNotFound, "event type not found")
		case errors.Is(err, booking.ErrSlotTaken):
			writeJSONError(w, http.StatusConflict, "slot is no longer available")
		default:
			writeJSONError(w, http.StatusInternalServerError, "failed to create booking")
		}
		return
	}

	writeJSON(w, status, map[string]bookingJSON{"booking": toBookingJSON(result.Booking)})
}

func toBookingJSON(b *booking.Booking) bookingJSON {
	return bookingJSON{
		UID:        b.ID,
		StartTime:  b.Start.UTC().Format(time.RFC3339),
		EndTime:    b.End.UTC().Format(time.RFC3339),
		MeetingURL: b.MeetingURL,
	}
}

type publicBookingJSON struct {
	UID           string `json:"uid"`
	EventTypeID   string `json:"eventTypeId"`
	Status        string `json:"status"`
	StartTime     string `json:"startTime"`
	EndTime       string `json:"endTime"`
	GuestName     string `json:"guestName"`
	GuestTimezone string `json:"guestTimezone"`
	MeetingURL    string `json:"meetingUrl,omitempty"`
}

// GetBooking serves GET /bookings/{uid}
func (h *SchedulingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	b, err := h.store.Get(r.Context(), uid)
	if err != nil || b == nil {
		writeJSONError(w, http.StatusNotFound, "booking not found")
		return
	}
	writeJSON(w, http.StatusOK, publicBookingJSON{
		UID:           b.ID,
		EventTypeID:   b.EventTypeID,
		Status:        string(b.Status),
		StartTime:     b.Start.UTC().Format(time.RFC3339),
		EndTime:       b.End.UTC().Format(time.RFC3339),
		GuestName:     b.GuestName,
		GuestTimezone: b.GuestTimezone,
		MeetingURL:    b.MeetingURL,
	})
}

type cancelBookingRequestJSON struct {
	Email  string `json:"email,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// CancelBooking serves DELETE /bookings/{uid}
func (h *SchedulingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	var req cancelBookingRequestJSON
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	b, err := h.store.Get(r.Context(), uid)
	if err != nil || b == nil {
		writeJSONError(w, http.StatusNotFound, "booking not found")
		return
	}
	if !h.callerAuthorized(r.Context(), r, b, req.Email) {
		writeJSONError(w, http.StatusUnauthorized, "not authorized to cancel this booking")
		return
	}

	if err := h.committer.Cancel(r.Context(), uid, "guest", req.Reason); err != nil {
		switch {
		case errors.Is(err, booking.ErrBookingNotFound):
			writeJSONError(w, http.StatusNotFound, "booking not found")
		case errors.Is(err, booking.ErrInvalidState):
			writeJSONError(w, http.StatusConflict, "booking cannot be cancelled")
		default:
			writeJSONError(w, http.StatusInternalServerError, "failed to cancel booking")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type rescheduleBookingRequestJSON struct {
	NewStartTime string `json:"newStartTime"`
	Timezone     string `json:"timezone"`
	Email        string `json:"email,omitempty"`
}

// RescheduleBooking serves PATCH /bookings/{uid}
func (h *SchedulingHandler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	var req rescheduleBookingRequestJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newStart, err := time.Parse(time.RFC3339, req.NewStartTime)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid newStartTime")
		return
	}

	b, err := h.store.Get(r.Context(), uid)
	if err != nil || b == nil {
		writeJSONError(w, http.StatusNotFound, "booking not found")
		return
	}
	if !h.callerAuthorized(r.Context(), r, b, req.Email) {
		writeJSONError(w, http.StatusUnauthorized, "not authorized to reschedule this booking")
		return
	}

	result, err := h.committer.Reschedule(r.Context(), uid, newStart)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrBookingNotFound):
			writeJSONError(w, http.StatusNotFound, "booking not found")
		case errors.Is(err, booking.ErrSlotTaken):
			writeJSONError(w, http.StatusConflict, "slot is no longer available")
		case errors.Is(err, booking.ErrInvalidState):
			writeJSONError(w, http.StatusConflict, "booking cannot be rescheduled")
		default:
			writeJSONError(w, http.StatusInternalServerError, "failed to reschedule booking")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bookingJSON{"booking": toBookingJSON(result.Booking)})
}

// callerAuthorized reports whether the request is either the booking's host
// (via an authenticated dashboard session) or the booking's own guest
// (identified by a matching email in the request body).
func (h *SchedulingHandler) callerAuthorized(ctx context.Context, r *http.Request, b *booking.Booking, email string) bool {
	if cookie, err := r.Cookie("session"); err == nil {
		if caller, err := h.handlers.services.Session.ValidateSession(ctx, cookie.Value); err == nil && caller != nil && caller.Host != nil {
			if caller.Host.ID == b.HostID {
				return true
			}
		}
	}
	return email != "" && email == b.GuestEmail
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
