package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/samsmart/pd-boxes/internal/telemetry"
)

// Scheduler periodically refreshes the current readings of every
// configured box into the store.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *telemetry.Service
	interval  time.Duration
}

// New creates a new Scheduler.
func New(interval time.Duration, service *telemetry.Service) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		interval:  interval,
	}
}

// Start schedules the periodic refresh job and starts the underlying
// scheduler.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	_, err := s.scheduler.Every(interval).Do(func() {
		log.Println("scheduler: refreshing current readings")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.service.RefreshCurrent(ctx); err != nil {
			log.Printf("scheduler: refresh failed: %v", err)
		}
		log.Println("scheduler: refresh complete")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
