package model

import (
	"errors"
	"time"
)

// AvailabilityRule is one declarative statement about when a trainer is or is
// not bookable. The Type tag selects which fields are meaningful; the
// per-variant constructors plus Validate enforce the shape so rows with
// contradictory fields cannot enter the system.
//
//   - regular: recurring weekly slot. DayOfWeek + StartTime/EndTime set,
//     date bounds forbidden.
//   - exception: one-off override for a closed date range with its own time
//     window; may assert availability or unavailability.
//   - vacation / blocked: whole-day date-range rules, always unavailable,
//     open-ended on either side.
type AvailabilityRule struct {
	ID          string     `db:"id" json:"id"`
	TrainerID   string     `db:"trainer_id" json:"trainerId"`
	Type        RuleType   `db:"type" json:"type"`
	DayOfWeek   *int       `db:"day_of_week" json:"dayOfWeek,omitempty"`
	StartDate   *time.Time `db:"start_date" json:"startDate,omitempty"`
	EndDate     *time.Time `db:"end_date" json:"endDate,omitempty"`
	StartTime   *TimeOfDay `db:"start_time" json:"startTime,omitempty"`
	EndTime     *TimeOfDay `db:"end_time" json:"endTime,omitempty"`
	Timezone    string     `db:"timezone" json:"timezone,omitempty"`
	IsAvailable bool       `db:"is_available" json:"isAvailable"`
	Reason      string     `db:"reason" json:"reason,omitempty"`
	Recurring   bool       `db:"recurring" json:"recurring"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

func NewRegularRule(trainerID string, dayOfWeek int, start, end TimeOfDay, available bool) AvailabilityRule {
	dow := dayOfWeek
	s, e := start, end
	return AvailabilityRule{
		TrainerID:   trainerID,
		Type:        RuleTypeRegular,
		DayOfWeek:   &dow,
		StartTime:   &s,
		EndTime:     &e,
		IsAvailable: available,
		Recurring:   true,
	}
}

func NewExceptionRule(trainerID string, startDate, endDate time.Time, start, end TimeOfDay, available bool) AvailabilityRule {
	sd, ed := DateOnly(startDate), DateOnly(endDate)
	s, e := start, end
	return AvailabilityRule{
		TrainerID:   trainerID,
		Type:        RuleTypeException,
		StartDate:   &sd,
		EndDate:     &ed,
		StartTime:   &s,
		EndTime:     &e,
		IsAvailable: available,
	}
}

func NewVacationRule(trainerID string, startDate, endDate *time.Time, reason string) AvailabilityRule {
	return AvailabilityRule{
		TrainerID: trainerID,
		Type:      RuleTypeVacation,
		StartDate: dateOnlyPtr(startDate),
		EndDate:   dateOnlyPtr(endDate),
		Reason:    reason,
	}
}

func NewBlockedRule(trainerID string, startDate, endDate *time.Time, reason string) AvailabilityRule {
	return AvailabilityRule{
		TrainerID: trainerID,
		Type:      RuleTypeBlocked,
		StartDate: dateOnlyPtr(startDate),
		EndDate:   dateOnlyPtr(endDate),
		Reason:    reason,
	}
}

// Validate enforces the per-variant shape constraints.
func (r *AvailabilityRule) Validate() error {
	if r.TrainerID == "" {
		return errRule("trainer_id is required")
	}
	switch r.Type {
	case RuleTypeRegular:
		if r.DayOfWeek == nil || *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return errRule("regular rule requires day_of_week in 0..6")
		}
		if r.StartDate != nil || r.EndDate != nil {
			return errRule("regular rule must not set a date range")
		}
		if err := r.validateTimeWindow(); err != nil {
			return err
		}
	case RuleTypeException:
		if r.DayOfWeek != nil {
			return errRule("exception rule must not set day_of_week")
		}
		if r.StartDate == nil || r.EndDate == nil {
			return errRule("exception rule requires start_date and end_date")
		}
		if r.EndDate.Before(*r.StartDate) {
			return errRule("end_date must not precede start_date")
		}
		if err := r.validateTimeWindow(); err != nil {
			return err
		}
	case RuleTypeVacation, RuleTypeBlocked:
		if r.DayOfWeek != nil {
			return errRule(string(r.Type) + " rule must not set day_of_week")
		}
		if r.StartDate == nil && r.EndDate == nil {
			return errRule(string(r.Type) + " rule requires at least one date bound")
		}
		if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
			return errRule("end_date must not precede start_date")
		}
		if r.StartTime != nil || r.EndTime != nil {
			return errRule(string(r.Type) + " rule applies to the whole day and must not set times")
		}
		if r.IsAvailable {
			return errRule(string(r.Type) + " rule cannot assert availability")
		}
	default:
		return errRule("unknown rule type: " + string(r.Type))
	}
	if r.Recurring && r.Type != RuleTypeRegular {
		return errRule("only regular rules may be recurring")
	}
	return nil
}

func (r *AvailabilityRule) validateTimeWindow() error {
	if r.StartTime == nil || r.EndTime == nil {
		return errRule(string(r.Type) + " rule requires start_time and end_time")
	}
	if !r.StartTime.Valid() || !r.EndTime.Valid() {
		return errRule("time of day out of range")
	}
	if *r.EndTime <= *r.StartTime {
		return errRule("end_time must be after start_time")
	}
	return nil
}

// AppliesTo reports whether the rule's date scope contains the given date.
func (r *AvailabilityRule) AppliesTo(date time.Time) bool {
	d := DateOnly(date)
	switch r.Type {
	case RuleTypeRegular:
		return r.DayOfWeek != nil && int(d.Weekday()) == *r.DayOfWeek
	default:
		if r.StartDate != nil && d.Before(*r.StartDate) {
			return false
		}
		if r.EndDate != nil && d.After(*r.EndDate) {
			return false
		}
		return true
	}
}

// CoversTime reports whether the rule's time scope overlaps the half-open
// window [start, end). Vacation and blocked rules cover the whole day.
func (r *AvailabilityRule) CoversTime(start, end TimeOfDay) bool {
	if r.Type == RuleTypeVacation || r.Type == RuleTypeBlocked {
		return true
	}
	if r.StartTime == nil || r.EndTime == nil {
		return false
	}
	return *r.StartTime < end && *r.EndTime > start
}

// DateSpanDays measures the specificity of a rule's date scope: smaller spans
// are more specific. Regular rules and open-ended ranges are treated as
// unbounded.
func (r *AvailabilityRule) DateSpanDays() int {
	const unbounded = 1 << 30
	if r.Type == RuleTypeRegular || r.StartDate == nil || r.EndDate == nil {
		return unbounded
	}
	return int(r.EndDate.Sub(*r.StartDate)/(24*time.Hour)) + 1
}

// DateOnly truncates a timestamp to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := DateOnly(*t)
	return &d
}

func errRule(msg string) error { return errors.New(msg) }
