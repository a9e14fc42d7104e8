package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/trainerbook/scheduling-server-go/internal/model"
	"github.com/trainerbook/scheduling-server-go/internal/repository"
)

type stubSweepRepo struct {
	startCalls    atomic.Int64
	completeCalls atomic.Int64
	startErr      error
	completeErr   error
}

func (s *stubSweepRepo) StartDue(ctx context.Context, now time.Time) (int64, error) {
	s.startCalls.Add(1)
	return 2, s.startErr
}

func (s *stubSweepRepo) CompleteDue(ctx context.Context, now time.Time) (int64, error) {
	s.completeCalls.Add(1)
	return 1, s.completeErr
}

func (s *stubSweepRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}

func (s *stubSweepRepo) FindActiveByTrainer(ctx context.Context, trainerID string) ([]model.Session, error) {
	return nil, nil
}

func (s *stubSweepRepo) FindByTrainer(ctx context.Context, trainerID string, from, to *time.Time, status *model.SessionStatus) ([]model.Session, error) {
	return nil, nil
}

func (s *stubSweepRepo) Insert(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	return nil, nil
}

func (s *stubSweepRepo) Update(ctx context.Context, session model.Session) (*model.Session, error) {
	return nil, nil
}

func (s *stubSweepRepo) UpdateStatus(ctx context.Context, id string, status model.SessionStatus) (*model.Session, error) {
	return nil, nil
}

func (s *stubSweepRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return s
}

func TestSweepCallsBothPhases(t *testing.T) {
	repo := &stubSweepRepo{}
	job := NewStatusSweepJob(repo, time.Minute)

	job.sweep()

	assert.Equal(t, int64(1), repo.startCalls.Load())
	assert.Equal(t, int64(1), repo.completeCalls.Load())
}

func TestSweepContinuesAfterError(t *testing.T) {
	repo := &stubSweepRepo{startErr: errors.New("deadlock detected")}
	job := NewStatusSweepJob(repo, time.Minute)

	job.sweep()

	assert.Equal(t, int64(1), repo.startCalls.Load())
	assert.Equal(t, int64(1), repo.completeCalls.Load())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	repo := &stubSweepRepo{}
	job := NewStatusSweepJob(repo, time.Hour)

	job.Start()
	assert.Eventually(t, func() bool {
		return repo.startCalls.Load() >= 1
	}, time.Second, 10*time.Millisecond)
	job.Stop()
}
