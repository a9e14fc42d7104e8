package model

type SessionStatus string

const (
	SessionStatusScheduled   SessionStatus = "scheduled"
	SessionStatusInProgress  SessionStatus = "in_progress"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusCancelled   SessionStatus = "cancelled"
	SessionStatusRescheduled SessionStatus = "rescheduled"
)

// IsTerminal reports whether no transitions are allowed out of s. Cancelled
// is terminal, but cancelling an already-cancelled session is accepted as a
// no-op by the lifecycle manager.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusCancelled, SessionStatusRescheduled:
		return true
	}
	return false
}

// CanTransition reports whether the session state machine permits from -> to.
func CanTransition(from, to SessionStatus) bool {
	switch from {
	case SessionStatusScheduled:
		switch to {
		case SessionStatusInProgress, SessionStatusCancelled, SessionStatusRescheduled:
			return true
		}
	case SessionStatusInProgress:
		switch to {
		case SessionStatusCompleted, SessionStatusCancelled:
			return true
		}
	}
	return false
}

func ValidStatuses() []string {
	return []string{
		string(SessionStatusScheduled),
		string(SessionStatusInProgress),
		string(SessionStatusCompleted),
		string(SessionStatusCancelled),
		string(SessionStatusRescheduled),
	}
}

type SessionFormat string

const (
	FormatInPerson SessionFormat = "in-person"
	FormatOnline   SessionFormat = "online"
	FormatHybrid   SessionFormat = "hybrid"
)

func ValidFormats() []string {
	return []string{
		string(FormatInPerson),
		string(FormatOnline),
		string(FormatHybrid),
	}
}

type RuleType string

const (
	RuleTypeRegular   RuleType = "regular"
	RuleTypeException RuleType = "exception"
	RuleTypeVacation  RuleType = "vacation"
	RuleTypeBlocked   RuleType = "blocked"
)

// Precedence returns the resolution tier of a rule type; higher wins.
func (t RuleType) Precedence() int {
	switch t {
	case RuleTypeBlocked:
		return 4
	case RuleTypeVacation:
		return 3
	case RuleTypeException:
		return 2
	case RuleTypeRegular:
		return 1
	}
	return 0
}
