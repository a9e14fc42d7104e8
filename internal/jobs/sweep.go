package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trainerbook/scheduling-server-go/internal/repository"
)

// StatusSweepJob periodically advances sessions past their temporal
// boundaries: scheduled sessions whose start has passed become in_progress,
// and in_progress sessions whose end has passed become completed.
type StatusSweepJob struct {
	sessionRepo repository.SessionRepository
	interval    time.Duration
	done        chan struct{}
}

func NewStatusSweepJob(sessionRepo repository.SessionRepository, interval time.Duration) *StatusSweepJob {
	return &StatusSweepJob{
		sessionRepo: sessionRepo,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *StatusSweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("status sweep job started")
}

func (j *StatusSweepJob) Stop() {
	close(j.done)
	log.Info().Msg("status sweep job stopped")
}

func (j *StatusSweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *StatusSweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()

	j.runSweep(ctx, "started sessions", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.StartDue(ctx, now)
	})
	j.runSweep(ctx, "completed sessions", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.CompleteDue(ctx, now)
	})
}

func (j *StatusSweepJob) runSweep(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to sweep %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("swept %s", name)
	}
}
