package service

import (
	"context"
	"time"

	apperrors "github.com/trainerbook/scheduling-server-go/internal/errors"
	"github.com/trainerbook/scheduling-server-go/internal/model"
	"github.com/trainerbook/scheduling-server-go/internal/repository"
)

// ConflictDetector answers whether a candidate interval collides with a
// trainer's existing active sessions. It is a pure query: the lifecycle
// manager decides what to do with a non-empty result.
type ConflictDetector struct {
	sessions repository.SessionRepository
	timeout  time.Duration
}

func NewConflictDetector(sessions repository.SessionRepository, timeout time.Duration) *ConflictDetector {
	return &ConflictDetector{
		sessions: sessions,
		timeout:  timeout,
	}
}

// FindConflicts returns the active sessions of the trainer whose intervals
// intersect the half-open candidate [start, end). Touching endpoints do not
// conflict. excludeSessionID, when non-empty, removes a session from
// consideration so an update does not conflict with its own prior record.
func (d *ConflictDetector) FindConflicts(ctx context.Context, trainerID string, start, end time.Time, excludeSessionID string) ([]model.Session, error) {
	if trainerID == "" {
		return nil, apperrors.MissingRequired("trainer_id")
	}
	if !end.After(start) {
		return nil, apperrors.ValidationError("end must be after start")
	}

	ctx, cancel := opContext(ctx, d.timeout)
	defer cancel()

	active, err := d.sessions.FindActiveByTrainer(ctx, trainerID)
	if err != nil {
		return nil, repoError(err)
	}

	conflicts := []model.Session{}
	for _, session := range active {
		if excludeSessionID != "" && session.ID == excludeSessionID {
			continue
		}
		if session.Overlaps(start, end) {
			conflicts = append(conflicts, session)
		}
	}

	return conflicts, nil
}
