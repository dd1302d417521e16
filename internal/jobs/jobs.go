// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"freightplan/internal/metrics"
)

// Purger removes runs created before a cutoff.
type Purger interface {
	PurgeRuns(ctx context.Context, olderThan time.Time) (int, error)
}

// Scheduler wraps a seconds-resolution cron.
type Scheduler struct {
	cron *cron.Cron
	now  func() time.Time
}

func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithSeconds()), now: time.Now}
}

// ScheduleRetention purges runs older than days on every tick of spec.
// Format: "0 0 3 * * *" = at 03:00:00 every day.
func (s *Scheduler) ScheduleRetention(spec string, p Purger, days int) (cron.EntryID, error) {
	if days <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", days)
	}
	id, err := s.cron.AddFunc(spec, func() { s.purge(p, days) })
	if err != nil {
		return 0, fmt.Errorf("error scheduling retention job: %w", err)
	}
	log.Printf("retention: purging runs older than %d days on %q", days, spec)
	return id, nil
}

func (s *Scheduler) purge(p Purger, days int) int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cutoff := s.now().AddDate(0, 0, -days)
	n, err := p.PurgeRuns(ctx, cutoff)
	if err != nil {
		log.Printf("retention: purge failed: %v", err)
		return 0
	}
	metrics.RunsPurged.Add(float64(n))
	log.Printf("retention: removed %d runs created before %s", n, cutoff.Format(time.RFC3339))
	return n
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("jobs: scheduler stopped")
}
