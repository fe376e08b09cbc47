package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var _ RoundScheduler = (*Local)(nil)

// Local keeps round timers in process memory using gocron one-time jobs.
type Local struct {
	scheduler gocron.Scheduler
}

// NewLocal creates and starts an in-process scheduler.
func NewLocal() (*Local, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithStopTimeout(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	scheduler.Start()
	return &Local{scheduler: scheduler}, nil
}

func (l *Local) ScheduleAfter(delay time.Duration, action func()) (Token, error) {
	startAt := gocron.OneTimeJobStartImmediately()
	if delay > 0 {
		startAt = gocron.OneTimeJobStartDateTime(time.Now().Add(delay))
	}

	job, err := l.scheduler.NewJob(
		gocron.OneTimeJob(startAt),
		gocron.NewTask(action),
	)
	if err != nil {
		return "", fmt.Errorf("failed to schedule job: %w", err)
	}

	log.Debug().
		Str("job_id", job.ID().String()).
		Dur("delay", delay).
		Msg("round timer scheduled")

	return Token(job.ID().String()), nil
}

func (l *Local) Cancel(token Token) {
	id, err := uuid.Parse(string(token))
	if err != nil {
		return
	}

	// The job is gone once it has run; nothing left to cancel then.
	if err = l.scheduler.RemoveJob(id); err == nil {
		log.Debug().Str("job_id", id.String()).Msg("round timer cancelled")
	}
}

// Shutdown stops the scheduler. Pending one-time jobs are dropped.
func (l *Local) Shutdown() error {
	return l.scheduler.Shutdown()
}
