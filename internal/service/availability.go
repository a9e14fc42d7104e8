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
)

// AvailabilityService manages a trainer's availability rule set. Rule sets
// are replaced wholesale; each incoming rule is validated against its
// variant's shape before anything is written.
type AvailabilityService struct {
	rules     repository.AvailabilityRepository
	publisher EventPublisher
	timeout   time.Duration
}

func NewAvailabilityService(rules repository.AvailabilityRepository, publisher EventPublisher, timeout time.Duration) *AvailabilityService {
	return &AvailabilityService{
		rules:     rules,
		publisher: publisher,
		timeout:   timeout,
	}
}

func (s *AvailabilityService) ReplaceRules(ctx context.Context, trainerID string, rules []model.AvailabilityRule) ([]model.AvailabilityRule, error) {
	if trainerID == "" {
		return nil, apperrors.MissingRequired("trainer_id")
	}

	for i := range rules {
		rules[i].TrainerID = trainerID
		if err := rules[i].Validate(); err != nil {
			return nil, apperrors.ValidationError(err.Error())
		}
	}

	opCtx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	replaced, err := s.rules.ReplaceAll(opCtx, trainerID, rules)
	if err != nil {
		return nil, repoError(err)
	}

	log.Info().
		Str("trainerId", trainerID).
		Int("ruleCount", len(replaced)).
		Msg("availability rules replaced")

	pubCtx, pubCancel := context.WithTimeout(context.Background(), config.EventPublishTimeout)
	defer pubCancel()
	if err := s.publisher.Publish(pubCtx, trainerID, events.NewAvailabilityEvent(trainerID, replaced)); err != nil {
		log.Warn().Err(err).Str("trainerId", trainerID).Msg("event publish failed")
	}

	return replaced, nil
}

func (s *AvailabilityService) ListRules(ctx context.Context, trainerID string) ([]model.AvailabilityRule, error) {
	if trainerID == "" {
		return nil, apperrors.MissingRequired("trainer_id")
	}

	opCtx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	rules, err := s.rules.FindByTrainer(opCtx, trainerID)
	if err != nil {
		return nil, repoError(err)
	}
	return rules, nil
}
