package services

import (
	"context"
	"log"

	"github.com/openslate/openslate/internal/models"
	"github.com/robfig/cron/v3"
)

// CalendarSyncService handles background calendar synchronization
type CalendarSyncService struct {
	calendar *CalendarService
	cron     *cron.Cron
}

// NewCalendarSyncService creates a new calendar sync service
func NewCalendarSyncService(calendar *CalendarService) *CalendarSyncService {
	return &CalendarSyncService{
		calendar: calendar,
		cron:     cron.New(),
	}
}

// Start begins the background calendar sync schedule, running
// immediately once and then every 15 minutes.
func (s *CalendarSyncService) Start() {
	s.syncAllCalendars()
	if _, err := s.cron.AddFunc("@every 15m", s.syncAllCalendars); err != nil {
		log.Printf("[CALENDAR_SYNC] Failed to schedule sweep: %v", err)
		return
	}
	s.cron.Start()
	log.Printf("[CALENDAR_SYNC] Service started, syncing every 15m")
}

// Stop stops the background calendar sync schedule.
func (s *CalendarSyncService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("[CALENDAR_SYNC] Service stopped")
}

// syncAllCalendars fetches all calendar connections and syncs each one
func (s *CalendarSyncService) syncAllCalendars() {
	ctx := context.Background()

	calendars, err := s.calendar.GetAllCalendars(ctx)
	if err != nil {
		log.Printf("[CALENDAR_SYNC] Error fetching calendars: %v", err)
		return
	}

	if len(calendars) == 0 {
		return
	}

	log.Printf("[CALENDAR_SYNC] Syncing %d calendar(s)", len(calendars))

	successCount := 0
	failCount := 0

	for _, cal := range calendars {
		err := s.syncCalendar(ctx, cal)
		if err != nil {
			failCount++
			log.Printf("[CALENDAR_SYNC] Failed to sync calendar %s (%s): %v", cal.ID, cal.Name, err)
		} else {
			successCount++
		}
	}

	log.Printf("[CALENDAR_SYNC] Sync complete: %d succeeded, %d failed", successCount, failCount)
}

// syncCalendar syncs a single calendar connection
func (s *CalendarSyncService) syncCalendar(ctx context.Context, cal *models.CalendarConnection) error {
	return s.calendar.SyncCalendar(ctx, cal)
}
