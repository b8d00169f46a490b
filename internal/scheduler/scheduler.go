// Package scheduler runs the periodic jobs of the service.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper completes reservations whose class has ended.
type Sweeper interface {
	CompleteDue(ctx context.Context) (int, error)
}

type Scheduler struct {
	sched gocron.Scheduler
}

// New registers the completion sweep every interval, starting as soon as the
// scheduler starts. Runs never overlap.
func New(sweeper Sweeper, interval time.Duration, options ...gocron.SchedulerOption) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("completion sweep interval must be positive, got %s", interval)
	}

	sched, err := gocron.NewScheduler(options...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	j, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			n, err := sweeper.CompleteDue(ctx)
			if err != nil {
				log.Printf("Completion sweep failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("Completion sweep completed %d reservations", n)
			}
		}),
		gocron.WithName("complete-due-reservations"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		sched.Shutdown()
		return nil, fmt.Errorf("register completion sweep: %w", err)
	}
	log.Printf("Job: %s %s every %s", j.ID().String(), j.Name(), interval)

	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
