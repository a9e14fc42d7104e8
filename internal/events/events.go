package events

import (
	"encoding/json"

	"github.com/trainerbook/scheduling-server-go/internal/model"
)

type Type string

const (
	TypeSessionCreated      Type = "session_created"
	TypeSessionUpdated      Type = "session_updated"
	TypeSessionCancelled    Type = "session_cancelled"
	TypeAvailabilityUpdated Type = "availability_updated"
)

type Event struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SessionPayload is the body of session lifecycle events. Prior carries the
// pre-update snapshot on session_updated so subscribers can diff.
type SessionPayload struct {
	Session model.Session  `json:"session"`
	Prior   *model.Session `json:"prior,omitempty"`
}

// AvailabilityPayload is the body of availability_updated events.
type AvailabilityPayload struct {
	TrainerID string                   `json:"trainerId"`
	Rules     []model.AvailabilityRule `json:"rules"`
}

func NewSessionEvent(t Type, session model.Session, prior *model.Session) Event {
	data, _ := json.Marshal(SessionPayload{Session: session, Prior: prior})
	return Event{Type: t, Data: data}
}

func NewAvailabilityEvent(trainerID string, rules []model.AvailabilityRule) Event {
	data, _ := json.Marshal(AvailabilityPayload{TrainerID: trainerID, Rules: rules})
	return Event{Type: TypeAvailabilityUpdated, Data: data}
}
