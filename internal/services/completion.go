package services

import (
	"context"
	"log"
	"time"

	"github.com/openslate/openslate/internal/repository"
	"github.com/robfig/cron/v3"
)

// CompletionService sweeps confirmed bookings whose end time has passed
// and marks them completed, so past meetings stop counting as upcoming
// and can no longer be rescheduled.
type CompletionService struct {
	repos *repository.Repositories
	cron  *cron.Cron
}

// NewCompletionService creates a new completion sweep service
func NewCompletionService(repos *repository.Repositories) *CompletionService {
	return &CompletionService{
		repos: repos,
		cron:  cron.New(),
	}
}

// Start begins the background completion sweep, running immediately
// once and then every 10 minutes.
func (s *CompletionService) Start() {
	s.sweep()
	if _, err := s.cron.AddFunc("@every 10m", s.sweep); err != nil {
		log.Printf("[COMPLETION] Failed to schedule sweep: %v", err)
		return
	}
	s.cron.Start()
	log.Printf("[COMPLETION] Service started, sweeping every 10m")
}

// Stop stops the background completion sweep.
func (s *CompletionService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("[COMPLETION] Service stopped")
}

func (s *CompletionService) sweep() {
	n, err := s.repos.Booking.MarkPastConfirmedAsCompleted(context.Background(), time.Now().UTC())
	if err != nil {
		log.Printf("[COMPLETION] Error marking past bookings completed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[COMPLETION] Marked %d booking(s) completed", n)
	}
}
