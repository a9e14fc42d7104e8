package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trainerbook/scheduling-server-go/internal/database"
	"github.com/trainerbook/scheduling-server-go/internal/model"
)

type AvailabilityRepository interface {
	FindByTrainer(ctx context.Context, trainerID string) ([]model.AvailabilityRule, error)
	// ReplaceAll swaps a trainer's entire rule set in one transaction.
	// Rule sets are replaced wholesale rather than patched; resolution
	// always operates over the current set.
	ReplaceAll(ctx context.Context, trainerID string, rules []model.AvailabilityRule) ([]model.AvailabilityRule, error)
}

type availabilityRepo struct {
	db *database.DB
}

func NewAvailabilityRepository(db *database.DB) AvailabilityRepository {
	return &availabilityRepo{db: db}
}

func (r *availabilityRepo) FindByTrainer(ctx context.Context, trainerID string) ([]model.AvailabilityRule, error) {
	rules := []model.AvailabilityRule{}
	err := r.db.SelectContext(ctx, &rules, `
		SELECT * FROM availability_rules
		WHERE trainer_id = $1
		ORDER BY start_date NULLS FIRST, start_time NULLS FIRST
	`, trainerID)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *availabilityRepo) ReplaceAll(ctx context.Context, trainerID string, rules []model.AvailabilityRule) ([]model.AvailabilityRule, error) {
	inserted := make([]model.AvailabilityRule, 0, len(rules))

	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM availability_rules WHERE trainer_id = $1
		`, trainerID); err != nil {
			return err
		}

		for _, rule := range rules {
			var row model.AvailabilityRule
			err := tx.GetContext(ctx, &row, `
				INSERT INTO availability_rules (
					id, trainer_id, type, day_of_week, start_date, end_date,
					start_time, end_time, timezone, is_available, reason, recurring
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				RETURNING *
			`,
				uuid.NewString(), trainerID, rule.Type, rule.DayOfWeek,
				rule.StartDate, rule.EndDate, rule.StartTime, rule.EndTime,
				rule.Timezone, rule.IsAvailable, rule.Reason, rule.Recurring,
			)
			if err != nil {
				return err
			}
			inserted = append(inserted, row)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}
