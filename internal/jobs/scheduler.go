package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"notehub/internal/queue"
	"notehub/internal/tasks"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, fields map[string]any) (string, error)
}

// Scheduler enqueues periodic maintenance for the worker.
type Scheduler struct {
	cron     *cron.Cron
	queue    Enqueuer
	schedule string
	log      zerolog.Logger
	now      func() time.Time
}

// NewScheduler uses six-field cron specs (seconds first).
func NewScheduler(queue Enqueuer, schedule string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		queue:    queue,
		schedule: schedule,
		log:      log,
		now:      time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.schedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueueCleanup); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("session cleanup scheduled")
	return nil
}

// Stop halts the scheduler and waits up to timeout for a running enqueue.
func (s *Scheduler) Stop(timeout time.Duration) {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := s.queue.Enqueue(ctx, tasks.TypeSessionCleanup, map[string]any{
		queue.FieldQueuedAt: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("enqueue session cleanup failed")
		return
	}
	s.log.Debug().Str("message_id", id).Msg("session cleanup enqueued")
}
