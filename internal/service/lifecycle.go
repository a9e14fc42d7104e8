package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trainerbook/scheduling-server-go/internal/config"
	apperrors "github.com/trainerbook/scheduling-server-go/internal/errors"
	"github.com/trainerbook/scheduling-server-go/internal/events"
	"github.com/trainerbook/scheduling-server-go/internal/model"
	"github.com/trainerbook/scheduling-server-go/internal/repository"
	"github.com/trainerbook/scheduling-server-go/internal/util"
)

// LifecycleManager owns session records: it orchestrates creation,
// modification, and cancellation, enforces the session state machine, and
// emits lifecycle events for external subscribers without waiting on them.
// Mutating operations for one trainer are serialized; failures are fail
// closed with no partial writes.
type LifecycleManager struct {
	sessions            repository.SessionRepository
	detector            *ConflictDetector
	resolver            *AvailabilityResolver
	publisher           EventPublisher
	locks               *trainerLocks
	enforceAvailability bool
	timeout             time.Duration
}

func NewLifecycleManager(
	sessions repository.SessionRepository,
	detector *ConflictDetector,
	resolver *AvailabilityResolver,
	publisher EventPublisher,
	enforceAvailability bool,
	timeout time.Duration,
) *LifecycleManager {
	return &LifecycleManager{
		sessions:            sessions,
		detector:            detector,
		resolver:            resolver,
		publisher:           publisher,
		locks:               newTrainerLocks(),
		enforceAvailability: enforceAvailability,
		timeout:             timeout,
	}
}

func (m *LifecycleManager) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	if params.TrainerID == "" {
		return nil, apperrors.MissingRequired("trainer_id")
	}
	if params.Title == "" {
		return nil, apperrors.MissingRequired("title")
	}
	if params.Format == "" {
		params.Format = model.FormatOnline
	}
	if !validFormat(params.Format) {
		return nil, apperrors.InvalidInput("format", string(params.Format))
	}
	params.StartAt = params.StartAt.UTC()
	params.EndAt = params.EndAt.UTC()
	if !params.EndAt.After(params.StartAt) {
		return nil, apperrors.ValidationError("end must be after start")
	}

	unlock := m.locks.Lock(params.TrainerID)
	defer unlock()

	conflicts, err := m.detector.FindConflicts(ctx, params.TrainerID, params.StartAt, params.EndAt, "")
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, apperrors.ScheduleConflict(conflicts)
	}

	if err := m.checkAvailability(ctx, params.TrainerID, params.StartAt, params.EndAt); err != nil {
		return nil, err
	}

	opCtx, cancel := opContext(ctx, m.timeout)
	defer cancel()

	session, err := m.sessions.Insert(opCtx, params)
	if err != nil {
		return nil, repoError(err)
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("trainerId", session.TrainerID).
		Time("startAt", session.StartAt).
		Time("endAt", session.EndAt).
		Msg("session created")

	m.publish(session.TrainerID, events.NewSessionEvent(events.TypeSessionCreated, *session, nil))

	return session, nil
}

func (m *LifecycleManager) Update(ctx context.Context, sessionID string, patch model.SessionPatch) (*model.Session, error) {
	if sessionID == "" {
		return nil, apperrors.MissingRequired("session_id")
	}

	existing, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(existing.TrainerID)
	defer unlock()

	// Reload under the lock so the update sees the effect of any write
	// that won the lock first.
	existing, err = m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing.Status.IsTerminal() {
		return nil, apperrors.ValidationError("cannot update a " + string(existing.Status) + " session")
	}

	prior := *existing
	next := *existing
	applyPatch(&next, patch)

	if patch.Temporal() {
		next.StartAt = next.StartAt.UTC()
		next.EndAt = next.EndAt.UTC()
		if !next.EndAt.After(next.StartAt) {
			return nil, apperrors.ValidationError("end must be after start")
		}
		next.DurationMinutes = model.DurationMinutes(next.StartAt, next.EndAt)

		conflicts, err := m.detector.FindConflicts(ctx, next.TrainerID, next.StartAt, next.EndAt, next.ID)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, apperrors.ScheduleConflict(conflicts)
		}

		if err := m.checkAvailability(ctx, next.TrainerID, next.StartAt, next.EndAt); err != nil {
			return nil, err
		}
	}

	if next.Format != "" && !validFormat(next.Format) {
		return nil, apperrors.InvalidInput("format", string(next.Format))
	}

	opCtx, cancel := opContext(ctx, m.timeout)
	defer cancel()

	updated, err := m.sessions.Update(opCtx, next)
	if err != nil {
		return nil, repoError(err)
	}
	if updated == nil {
		return nil, apperrors.NotFound("Session")
	}

	log.Info().
		Str("sessionId", updated.ID).
		Str("trainerId", updated.TrainerID).
		Bool("temporal", patch.Temporal()).
		Msg("session updated")

	m.publish(updated.TrainerID, events.NewSessionEvent(events.TypeSessionUpdated, *updated, &prior))

	return updated, nil
}

// Cancel transitions a session to cancelled, freeing its interval for future
// bookings. Cancelling an already-cancelled session is a no-op success.
func (m *LifecycleManager) Cancel(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, apperrors.MissingRequired("session_id")
	}

	existing, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(existing.TrainerID)
	defer unlock()

	existing, err = m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing.Status == model.SessionStatusCancelled {
		return existing, nil
	}
	if !model.CanTransition(existing.Status, model.SessionStatusCancelled) {
		return nil, apperrors.InvalidTransition(string(existing.Status), string(model.SessionStatusCancelled))
	}

	opCtx, cancel := opContext(ctx, m.timeout)
	defer cancel()

	cancelled, err := m.sessions.UpdateStatus(opCtx, sessionID, model.SessionStatusCancelled)
	if err != nil {
		return nil, repoError(err)
	}
	if cancelled == nil {
		return nil, apperrors.NotFound("Session")
	}

	log.Info().
		Str("sessionId", cancelled.ID).
		Str("trainerId", cancelled.TrainerID).
		Msg("session cancelled")

	m.publish(cancelled.TrainerID, events.NewSessionEvent(events.TypeSessionCancelled, *cancelled, nil))

	return cancelled, nil
}

// ListSessions is the read-only calendar query over a trainer's schedule.
func (m *LifecycleManager) ListSessions(ctx context.Context, trainerID string, from, to *time.Time, status *model.SessionStatus) ([]model.Session, error) {
	if trainerID == "" {
		return nil, apperrors.MissingRequired("trainer_id")
	}
	if from != nil && to != nil && !to.After(*from) {
		return nil, apperrors.ValidationError("to must be after from")
	}

	opCtx, cancel := opContext(ctx, m.timeout)
	defer cancel()

	sessions, err := m.sessions.FindByTrainer(opCtx, trainerID, from, to, status)
	if err != nil {
		return nil, repoError(err)
	}
	return sessions, nil
}

func (m *LifecycleManager) load(ctx context.Context, sessionID string) (*model.Session, error) {
	opCtx, cancel := opContext(ctx, m.timeout)
	defer cancel()

	session, err := m.sessions.FindByID(opCtx, sessionID)
	if err != nil {
		return nil, repoError(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

// checkAvailability consults the resolver for every calendar day the
// interval touches. Disabled when availability is advisory only.
func (m *LifecycleManager) checkAvailability(ctx context.Context, trainerID string, start, end time.Time) error {
	if m.enforceAvailability {
		for cur := start; cur.Before(end); {
			dayEnd := model.DateOnly(cur).Add(24 * time.Hour)
			segEnd := end
			if dayEnd.Before(end) {
				segEnd = dayEnd
			}

			timeStart := model.NewTimeOfDay(cur.Hour(), cur.Minute())
			timeEnd := model.NewTimeOfDay(segEnd.Hour(), segEnd.Minute())
			if segEnd.Equal(dayEnd) {
				timeEnd = model.NewTimeOfDay(24, 0)
			}

			res, err := m.resolver.Resolve(ctx, trainerID, cur, timeStart, timeEnd)
			if err != nil {
				return err
			}
			if !res.Available {
				reason := ""
				if res.WinningRule != nil {
					reason = res.WinningRule.Reason
				}
				return apperrors.TrainerUnavailable(reason)
			}

			cur = segEnd
		}
	}
	return nil
}

func (m *LifecycleManager) publish(trainerID string, event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), config.EventPublishTimeout)
	defer cancel()

	if err := m.publisher.Publish(ctx, trainerID, event); err != nil {
		log.Warn().
			Err(err).
			Str("trainerId", trainerID).
			Str("eventType", string(event.Type)).
			Msg("event publish failed")
	}
}

func applyPatch(session *model.Session, patch model.SessionPatch) {
	if patch.Title != nil {
		session.Title = *patch.Title
	}
	if patch.Description != nil {
		session.Description = *patch.Description
	}
	if patch.StartAt != nil {
		session.StartAt = *patch.StartAt
	}
	if patch.EndAt != nil {
		session.EndAt = *patch.EndAt
	}
	if patch.Location != nil {
		session.Location = *patch.Location
	}
	if patch.Format != nil {
		session.Format = *patch.Format
	}
}

func validFormat(format model.SessionFormat) bool {
	return util.IsValidEnum(string(format), model.ValidFormats())
}
