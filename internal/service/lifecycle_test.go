package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/trainerbook/scheduling-server-go/internal/errors"
	"github.com/trainerbook/scheduling-server-go/internal/events"
	"github.com/trainerbook/scheduling-server-go/internal/model"
	"github.com/trainerbook/scheduling-server-go/internal/repository"
)

// fakeSessionRepo is a stateful in-memory SessionRepository so lifecycle
// scenarios can span multiple operations.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	seq      int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]model.Session)}
}

func (f *fakeSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeSessionRepo) FindActiveByTrainer(ctx context.Context, trainerID string) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.sessions {
		if s.TrainerID == trainerID && s.Status != model.SessionStatusCancelled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) FindByTrainer(ctx context.Context, trainerID string, from, to *time.Time, status *model.SessionStatus) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.sessions {
		if s.TrainerID != trainerID {
			continue
		}
		if from != nil && !s.EndAt.After(*from) {
			continue
		}
		if to != nil && !s.StartAt.Before(*to) {
			continue
		}
		if status != nil && s.Status != *status {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSessionRepo) Insert(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	now := time.Now().UTC()
	session := model.Session{
		ID:              fmt.Sprintf("session-%d", f.seq),
		TrainerID:       params.TrainerID,
		BootcampID:      params.BootcampID,
		Title:           params.Title,
		Description:     params.Description,
		StartAt:         params.StartAt,
		EndAt:           params.EndAt,
		DurationMinutes: model.DurationMinutes(params.StartAt, params.EndAt),
		Location:        params.Location,
		Format:          params.Format,
		Status:          model.SessionStatusScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.sessions[session.ID] = session
	return &session, nil
}

func (f *fakeSessionRepo) Update(ctx context.Context, session model.Session) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.sessions[session.ID]
	if !ok {
		return nil, nil
	}
	existing.Title = session.Title
	existing.Description = session.Description
	existing.StartAt = session.StartAt
	existing.EndAt = session.EndAt
	existing.DurationMinutes = session.DurationMinutes
	existing.Location = session.Location
	existing.Format = session.Format
	existing.UpdatedAt = time.Now().UTC()
	f.sessions[session.ID] = existing
	return &existing, nil
}

func (f *fakeSessionRepo) UpdateStatus(ctx context.Context, id string, status model.SessionStatus) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	existing.Status = status
	existing.UpdatedAt = time.Now().UTC()
	f.sessions[id] = existing
	return &existing, nil
}

func (f *fakeSessionRepo) StartDue(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeSessionRepo) CompleteDue(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return f
}

type capturedEvent struct {
	trainerID string
	event     events.Event
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
	fail   bool
}

func (p *capturingPublisher) Publish(ctx context.Context, trainerID string, event events.Event) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{trainerID: trainerID, event: event})
	return nil
}

func (p *capturingPublisher) byType(t events.Type) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.event.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestManager(t *testing.T, enforce bool, rules []model.AvailabilityRule) (*LifecycleManager, *fakeSessionRepo, *capturingPublisher) {
	t.Helper()
	sessions := newFakeSessionRepo()
	publisher := &capturingPublisher{}

	availRepo := new(mockAvailabilityRepo)
	availRepo.On("FindByTrainer", mock.Anything, mock.Anything).Return(rules, nil)

	detector := NewConflictDetector(sessions, time.Second)
	resolver := NewAvailabilityResolver(availRepo, time.Second)
	manager := NewLifecycleManager(sessions, detector, resolver, publisher, enforce, time.Second)
	return manager, sessions, publisher
}

func createParams(trainerID string, start, end time.Time) model.CreateSessionParams {
	return model.CreateSessionParams{
		TrainerID: trainerID,
		Title:     "Go fundamentals",
		StartAt:   start,
		EndAt:     end,
		Format:    model.FormatOnline,
	}
}

func TestLifecycleCreate(t *testing.T) {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	t.Run("creates a scheduled session and emits an event", func(t *testing.T) {
		manager, _, publisher := newTestManager(t, false, nil)

		session, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 10, 0), at(day, 11, 0)))
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusScheduled, session.Status)
		assert.Equal(t, 60, session.DurationMinutes)

		created := publisher.byType(events.TypeSessionCreated)
		require.Len(t, created, 1)
		assert.Equal(t, "trainer-1", created[0].trainerID)
	})

	t.Run("rejects an overlapping session and lists the conflict", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		existing, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 10, 0), at(day, 11, 0)))
		require.NoError(t, err)

		_, err = manager.Create(context.Background(), createParams("trainer-1", at(day, 10, 30), at(day, 11, 30)))
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeScheduleConflict, appErr.Code)

		conflicts, ok := appErr.Details.([]model.Session)
		require.True(t, ok)
		require.Len(t, conflicts, 1)
		assert.Equal(t, existing.ID, conflicts[0].ID)
	})

	t.Run("back-to-back sessions do not conflict", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		_, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 9, 0), at(day, 10, 0)))
		require.NoError(t, err)
		_, err = manager.Create(context.Background(), createParams("trainer-1", at(day, 10, 0), at(day, 11, 0)))
		assert.NoError(t, err)
	})

	t.Run("different trainers never conflict", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		_, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 10, 0), at(day, 11, 0)))
		require.NoError(t, err)
		_, err = manager.Create(context.Background(), createParams("trainer-2", at(day, 10, 0), at(day, 11, 0)))
		assert.NoError(t, err)
	})

	t.Run("cancellation frees the slot", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		session, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 10, 0), at(day, 11, 0)))
		require.NoError(t, err)

		_, err = manager.Cancel(context.Background(), session.ID)
		require.NoError(t, err)

		_, err = manager.Create(context.Background(), createParams("trainer-1", at(day, 10, 0), at(day, 11, 0)))
		assert.NoError(t, err)
	})

	t.Run("validates the interval and required fields", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		_, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 11, 0), at(day, 10, 0)))
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))

		_, err = manager.Create(context.Background(), createParams("", at(day, 10, 0), at(day, 11, 0)))
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))

		params := createParams("trainer-1", at(day, 10, 0), at(day, 11, 0))
		params.Title = ""
		_, err = manager.Create(context.Background(), params)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))

		params = createParams("trainer-1", at(day, 10, 0), at(day, 11, 0))
		params.Format = model.SessionFormat("holographic")
		_, err = manager.Create(context.Background(), params)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("defaults format to online", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		params := createParams("trainer-1", at(day, 10, 0), at(day, 11, 0))
		params.Format = ""
		session, err := manager.Create(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, model.FormatOnline, session.Format)
	})

	t.Run("publish failure does not fail the write", func(t *testing.T) {
		manager, repo, publisher := newTestManager(t, false, nil)
		publisher.fail = true

		session, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 10, 0), at(day, 11, 0)))
		require.NoError(t, err)

		stored, err := repo.FindByID(context.Background(), session.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored)
	})
}

func TestLifecycleCreateAvailabilityEnforcement(t *testing.T) {
	// 2024-01-15 is a Monday.
	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	regular := model.NewRegularRule("trainer-1", int(time.Monday), tod(9, 0), tod(17, 0), true)

	t.Run("fails when a blocked rule covers the interval", func(t *testing.T) {
		blocked := model.NewBlockedRule("trainer-1", &monday, &monday, "equipment maintenance")
		manager, _, _ := newTestManager(t, true, []model.AvailabilityRule{regular, blocked})

		_, err := manager.Create(context.Background(), createParams("trainer-1", at(monday, 10, 0), at(monday, 11, 0)))
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeTrainerUnavailable, appErr.Code)
		assert.Contains(t, appErr.Message, "equipment maintenance")
	})

	t.Run("succeeds inside the regular slot", func(t *testing.T) {
		manager, _, _ := newTestManager(t, true, []model.AvailabilityRule{regular})

		_, err := manager.Create(context.Background(), createParams("trainer-1", at(monday, 10, 0), at(monday, 11, 0)))
		assert.NoError(t, err)
	})

	t.Run("checks every day of a multi-day interval", func(t *testing.T) {
		tuesday := monday.AddDate(0, 0, 1)
		allWeek := []model.AvailabilityRule{}
		for dow := 0; dow < 7; dow++ {
			allWeek = append(allWeek, model.NewRegularRule("trainer-1", dow, tod(0, 0), tod(24, 0), true))
		}
		blocked := model.NewBlockedRule("trainer-1", &tuesday, &tuesday, "holiday")
		manager, _, _ := newTestManager(t, true, append(allWeek, blocked))

		_, err := manager.Create(context.Background(), createParams("trainer-1", at(monday, 20, 0), at(tuesday, 2, 0)))
		assert.Equal(t, apperrors.ErrCodeTrainerUnavailable, apperrors.GetCode(err))
	})

	t.Run("not enforced when availability is advisory", func(t *testing.T) {
		blocked := model.NewBlockedRule("trainer-1", &monday, &monday, "")
		manager, _, _ := newTestManager(t, false, []model.AvailabilityRule{blocked})

		_, err := manager.Create(context.Background(), createParams("trainer-1", at(monday, 10, 0), at(monday, 11, 0)))
		assert.NoError(t, err)
	})
}

func TestLifecycleUpdate(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("title change never re-checks conflicts against itself", func(t *testing.T) {
		manager, _, publisher := newTestManager(t, false, nil)

		session, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 9, 0), at(day, 10, 0)))
		require.NoError(t, err)

		title := "Advanced Go"
		updated, err := manager.Update(context.Background(), session.ID, model.SessionPatch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "Advanced Go", updated.Title)
		assert.Equal(t, session.StartAt, updated.StartAt)

		updatedEvents := publisher.byType(events.TypeSessionUpdated)
		require.Len(t, updatedEvents, 1)
	})

	t.Run("moving the interval excludes the session itself", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		session, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 9, 0), at(day, 10, 0)))
		require.NoError(t, err)

		newStart := at(day, 9, 30)
		newEnd := at(day, 10, 30)
		updated, err := manager.Update(context.Background(), session.ID, model.SessionPatch{StartAt: &newStart, EndAt: &newEnd})
		require.NoError(t, err)
		assert.Equal(t, newStart, updated.StartAt)
		assert.Equal(t, newEnd, updated.EndAt)
		assert.Equal(t, 60, updated.DurationMinutes)
	})

	t.Run("moving onto another session reports the conflict", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		a, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 9, 0), at(day, 10, 0)))
		require.NoError(t, err)
		b, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 10, 15), at(day, 11, 0)))
		require.NoError(t, err)

		newStart := at(day, 9, 30)
		newEnd := at(day, 10, 30)
		_, err = manager.Update(context.Background(), a.ID, model.SessionPatch{StartAt: &newStart, EndAt: &newEnd})
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeScheduleConflict, appErr.Code)

		conflicts, ok := appErr.Details.([]model.Session)
		require.True(t, ok)
		require.Len(t, conflicts, 1)
		assert.Equal(t, b.ID, conflicts[0].ID)
	})

	t.Run("update event carries the prior snapshot", func(t *testing.T) {
		manager, _, publisher := newTestManager(t, false, nil)

		session, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 9, 0), at(day, 10, 0)))
		require.NoError(t, err)

		title := "Renamed"
		_, err = manager.Update(context.Background(), session.ID, model.SessionPatch{Title: &title})
		require.NoError(t, err)

		updatedEvents := publisher.byType(events.TypeSessionUpdated)
		require.Len(t, updatedEvents, 1)

		var payload events.SessionPayload
		require.NoError(t, json.Unmarshal(updatedEvents[0].event.Data, &payload))
		require.NotNil(t, payload.Prior)
		assert.Equal(t, "Go fundamentals", payload.Prior.Title)
		assert.Equal(t, "Renamed", payload.Session.Title)
	})

	t.Run("unknown session is not found", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		title := "x"
		_, err := manager.Update(context.Background(), "session-404", model.SessionPatch{Title: &title})
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})

	t.Run("cancelled sessions cannot be updated", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		session, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 9, 0), at(day, 10, 0)))
		require.NoError(t, err)
		_, err = manager.Cancel(context.Background(), session.ID)
		require.NoError(t, err)

		title := "x"
		_, err = manager.Update(context.Background(), session.ID, model.SessionPatch{Title: &title})
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})
}

func TestLifecycleCancel(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("cancels and emits an event", func(t *testing.T) {
		manager, _, publisher := newTestManager(t, false, nil)

		session, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 9, 0), at(day, 10, 0)))
		require.NoError(t, err)

		cancelled, err := manager.Cancel(context.Background(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusCancelled, cancelled.Status)

		assert.Len(t, publisher.byType(events.TypeSessionCancelled), 1)
	})

	t.Run("cancel is idempotent and preserves the interval", func(t *testing.T) {
		manager, _, publisher := newTestManager(t, false, nil)

		session, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 9, 0), at(day, 10, 0)))
		require.NoError(t, err)

		first, err := manager.Cancel(context.Background(), session.ID)
		require.NoError(t, err)
		second, err := manager.Cancel(context.Background(), session.ID)
		require.NoError(t, err)

		assert.Equal(t, first.StartAt, second.StartAt)
		assert.Equal(t, first.EndAt, second.EndAt)
		assert.Equal(t, model.SessionStatusCancelled, second.Status)
		assert.Len(t, publisher.byType(events.TypeSessionCancelled), 1)
	})

	t.Run("completed sessions cannot be cancelled", func(t *testing.T) {
		manager, repo, _ := newTestManager(t, false, nil)

		session, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 9, 0), at(day, 10, 0)))
		require.NoError(t, err)
		_, err = repo.UpdateStatus(context.Background(), session.ID, model.SessionStatusCompleted)
		require.NoError(t, err)

		_, err = manager.Cancel(context.Background(), session.ID)
		assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.GetCode(err))
	})

	t.Run("unknown session is not found", func(t *testing.T) {
		manager, _, _ := newTestManager(t, false, nil)

		_, err := manager.Cancel(context.Background(), "session-404")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestLifecycleConcurrentCreates(t *testing.T) {
	// Two concurrent creations for the same overlapping interval: exactly
	// one may win.
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	manager, _, _ := newTestManager(t, false, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = manager.Create(context.Background(), createParams("trainer-1", at(day, 10, 0), at(day, 11, 0)))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, apperrors.ErrCodeScheduleConflict, apperrors.GetCode(err))
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestLifecycleListSessions(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	manager, _, _ := newTestManager(t, false, nil)

	_, err := manager.Create(context.Background(), createParams("trainer-1", at(day, 9, 0), at(day, 10, 0)))
	require.NoError(t, err)
	_, err = manager.Create(context.Background(), createParams("trainer-1", at(day, 14, 0), at(day, 15, 0)))
	require.NoError(t, err)

	t.Run("range filter", func(t *testing.T) {
		from := at(day, 8, 0)
		to := at(day, 12, 0)
		sessions, err := manager.ListSessions(context.Background(), "trainer-1", &from, &to, nil)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("requires trainer id", func(t *testing.T) {
		_, err := manager.ListSessions(context.Background(), "", nil, nil, nil)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		from := at(day, 12, 0)
		to := at(day, 8, 0)
		_, err := manager.ListSessions(context.Background(), "trainer-1", &from, &to, nil)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})
}
