package service

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/trainerbook/scheduling-server-go/internal/errors"
	"github.com/trainerbook/scheduling-server-go/internal/model"
	"github.com/trainerbook/scheduling-server-go/internal/repository"
)

// DefaultAvailable is the answer when no rule's scope overlaps the requested
// window at all: a trainer who has published no applicable rules is not
// bookable.
const DefaultAvailable = false

// Resolution is the resolver's verdict for one requested window.
type Resolution struct {
	Available   bool                    `json:"available"`
	WinningRule *model.AvailabilityRule `json:"winningRule,omitempty"`
}

// AvailabilityResolver combines a trainer's rule set into a nominal
// availability answer for a single date and time-of-day window.
//
// Precedence: blocked > vacation > exception > regular. Within a tier the
// rule with the smaller date span wins; remaining ties go to the most
// recently created rule. Timed rules only govern their own time window, so
// the requested window is cut at every overlapping rule boundary and each
// segment is resolved independently; the window is available only when all
// of its segments are.
type AvailabilityResolver struct {
	rules   repository.AvailabilityRepository
	timeout time.Duration
}

func NewAvailabilityResolver(rules repository.AvailabilityRepository, timeout time.Duration) *AvailabilityResolver {
	return &AvailabilityResolver{
		rules:   rules,
		timeout: timeout,
	}
}

func (r *AvailabilityResolver) Resolve(ctx context.Context, trainerID string, date time.Time, timeStart, timeEnd model.TimeOfDay) (*Resolution, error) {
	if trainerID == "" {
		return nil, apperrors.MissingRequired("trainer_id")
	}
	if !timeStart.Valid() || !timeEnd.Valid() {
		return nil, apperrors.ValidationError("time of day out of range")
	}
	if timeEnd <= timeStart {
		return nil, apperrors.ValidationError("time_end must be after time_start")
	}

	ctx, cancel := opContext(ctx, r.timeout)
	defer cancel()

	all, err := r.rules.FindByTrainer(ctx, trainerID)
	if err != nil {
		return nil, repoError(err)
	}

	applicable := make([]model.AvailabilityRule, 0, len(all))
	for _, rule := range all {
		if rule.AppliesTo(date) {
			applicable = append(applicable, rule)
		}
	}

	var firstWinner *model.AvailabilityRule
	for _, seg := range splitWindow(applicable, timeStart, timeEnd) {
		winner := pickWinner(applicable, seg.start, seg.end)

		available := DefaultAvailable
		if winner != nil {
			available = winner.IsAvailable
		}
		if !available {
			return &Resolution{Available: false, WinningRule: winner}, nil
		}
		if firstWinner == nil {
			firstWinner = winner
		}
	}

	return &Resolution{Available: true, WinningRule: firstWinner}, nil
}

type segment struct {
	start, end model.TimeOfDay
}

// splitWindow cuts [start, end) at every timed-rule boundary falling inside
// it, so each resulting segment is wholly inside or wholly outside each
// rule's time window.
func splitWindow(rules []model.AvailabilityRule, start, end model.TimeOfDay) []segment {
	cuts := []model.TimeOfDay{start, end}
	for _, rule := range rules {
		if rule.StartTime != nil && *rule.StartTime > start && *rule.StartTime < end {
			cuts = append(cuts, *rule.StartTime)
		}
		if rule.EndTime != nil && *rule.EndTime > start && *rule.EndTime < end {
			cuts = append(cuts, *rule.EndTime)
		}
	}

	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })

	segments := make([]segment, 0, len(cuts)-1)
	for i := 1; i < len(cuts); i++ {
		if cuts[i] == cuts[i-1] {
			continue
		}
		segments = append(segments, segment{start: cuts[i-1], end: cuts[i]})
	}
	return segments
}

func pickWinner(rules []model.AvailabilityRule, start, end model.TimeOfDay) *model.AvailabilityRule {
	var best *model.AvailabilityRule
	for i := range rules {
		rule := &rules[i]
		if !rule.CoversTime(start, end) {
			continue
		}
		if best == nil || beats(rule, best) {
			best = rule
		}
	}
	return best
}

// beats reports whether a takes precedence over b for the same segment.
func beats(a, b *model.AvailabilityRule) bool {
	if pa, pb := a.Type.Precedence(), b.Type.Precedence(); pa != pb {
		return pa > pb
	}
	if sa, sb := a.DateSpanDays(), b.DateSpanDays(); sa != sb {
		return sa < sb
	}
	return a.CreatedAt.After(b.CreatedAt)
}
