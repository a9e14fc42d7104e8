package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trainerbook/scheduling-server-go/internal/database"
	"github.com/trainerbook/scheduling-server-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// FindActiveByTrainer returns every non-cancelled session owned by the
	// trainer. Cancelled sessions are permanently excluded, which is how
	// cancellation frees an interval for future bookings.
	FindActiveByTrainer(ctx context.Context, trainerID string) ([]model.Session, error)
	FindByTrainer(ctx context.Context, trainerID string, from, to *time.Time, status *model.SessionStatus) ([]model.Session, error)
	Insert(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	Update(ctx context.Context, session model.Session) (*model.Session, error)
	UpdateStatus(ctx context.Context, id string, status model.SessionStatus) (*model.Session, error)
	// StartDue and CompleteDue advance sessions past their temporal
	// boundaries; used by the background status sweep.
	StartDue(ctx context.Context, now time.Time) (int64, error)
	CompleteDue(ctx context.Context, now time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActiveByTrainer(ctx context.Context, trainerID string) ([]model.Session, error) {
	sessions := []model.Session{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE trainer_id = $1
		AND status != 'cancelled'
		ORDER BY start_at
	`, trainerID)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) FindByTrainer(ctx context.Context, trainerID string, from, to *time.Time, status *model.SessionStatus) ([]model.Session, error) {
	conditions := []string{"trainer_id = $1"}
	args := []any{trainerID}

	if from != nil {
		args = append(args, *from)
		conditions = append(conditions, fmt.Sprintf("end_at > $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conditions = append(conditions, fmt.Sprintf("start_at < $%d", len(args)))
	}
	if status != nil {
		args = append(args, *status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `
		SELECT * FROM sessions
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY start_at
	`

	sessions := []model.Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) Insert(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (
			id, trainer_id, bootcamp_id, title, description,
			start_at, end_at, duration_minutes, location, format, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'scheduled')
		RETURNING *
	`,
		uuid.NewString(), params.TrainerID, params.BootcampID, params.Title, params.Description,
		params.StartAt, params.EndAt, model.DurationMinutes(params.StartAt, params.EndAt),
		params.Location, params.Format,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Update(ctx context.Context, session model.Session) (*model.Session, error) {
	var updated model.Session
	err := r.db.GetContext(ctx, &updated, `
		UPDATE sessions SET
			title = $2,
			description = $3,
			start_at = $4,
			end_at = $5,
			duration_minutes = $6,
			location = $7,
			format = $8,
			updated_at = $9
		WHERE id = $1
		RETURNING *
	`,
		session.ID, session.Title, session.Description,
		session.StartAt, session.EndAt, session.DurationMinutes,
		session.Location, session.Format, time.Now(),
	)
	return HandleNotFound(&updated, err)
}

func (r *sessionRepo) UpdateStatus(ctx context.Context, id string, status model.SessionStatus) (*model.Session, error) {
	var updated model.Session
	err := r.db.GetContext(ctx, &updated, `
		UPDATE sessions SET
			status = $2,
			updated_at = $3
		WHERE id = $1
		RETURNING *
	`, id, status, time.Now())
	return HandleNotFound(&updated, err)
}

func (r *sessionRepo) StartDue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'in_progress',
			updated_at = $1
		WHERE status = 'scheduled'
		AND start_at <= $1
		AND end_at > $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) CompleteDue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'completed',
			updated_at = $1
		WHERE status = 'in_progress'
		AND end_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
