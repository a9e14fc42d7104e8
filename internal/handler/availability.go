package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/trainerbook/scheduling-server-go/internal/errors"
	"github.com/trainerbook/scheduling-server-go/internal/model"
	"github.com/trainerbook/scheduling-server-go/internal/service"
)

type AvailabilityHandler struct {
	availability *service.AvailabilityService
	resolver     *service.AvailabilityResolver
}

func NewAvailabilityHandler(availability *service.AvailabilityService, resolver *service.AvailabilityResolver) *AvailabilityHandler {
	return &AvailabilityHandler{
		availability: availability,
		resolver:     resolver,
	}
}

type ruleRequest struct {
	Type        string  `json:"type"`
	DayOfWeek   *int    `json:"dayOfWeek"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
	StartTime   *string `json:"startTime"`
	EndTime     *string `json:"endTime"`
	Timezone    string  `json:"timezone"`
	IsAvailable *bool   `json:"isAvailable"`
	Reason      string  `json:"reason"`
}

type replaceRulesRequest struct {
	Rules []ruleRequest `json:"rules"`
}

// PUT /v1/trainers/{trainerID}/availability
func (h *AvailabilityHandler) ReplaceRules(w http.ResponseWriter, r *http.Request) {
	trainerID := chi.URLParam(r, "trainerID")

	var req replaceRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid JSON body"))
		return
	}

	rules := make([]model.AvailabilityRule, 0, len(req.Rules))
	for _, raw := range req.Rules {
		rule, err := raw.toModel(trainerID)
		if err != nil {
			writeError(w, err)
			return
		}
		rules = append(rules, rule)
	}

	replaced, err := h.availability.ReplaceRules(r.Context(), trainerID, rules)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rules": replaced})
}

// GET /v1/trainers/{trainerID}/availability
func (h *AvailabilityHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	trainerID := chi.URLParam(r, "trainerID")

	rules, err := h.availability.ListRules(r.Context(), trainerID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// GET /v1/trainers/{trainerID}/availability/resolve?date=&start=&end=
func (h *AvailabilityHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	trainerID := chi.URLParam(r, "trainerID")

	date, err := parseDate("date", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	start, err := model.ParseTimeOfDay(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, apperrors.InvalidInput("start", "must be HH:MM"))
		return
	}
	end, err := model.ParseTimeOfDay(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, apperrors.InvalidInput("end", "must be HH:MM"))
		return
	}

	resolution, err := h.resolver.Resolve(r.Context(), trainerID, date, start, end)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resolution)
}

func (req ruleRequest) toModel(trainerID string) (model.AvailabilityRule, error) {
	rule := model.AvailabilityRule{
		TrainerID: trainerID,
		Type:      model.RuleType(req.Type),
		DayOfWeek: req.DayOfWeek,
		Timezone:  req.Timezone,
		Reason:    req.Reason,
		Recurring: model.RuleType(req.Type) == model.RuleTypeRegular,
	}

	if req.StartDate != nil {
		d, err := parseDate("startDate", *req.StartDate)
		if err != nil {
			return model.AvailabilityRule{}, err
		}
		rule.StartDate = &d
	}
	if req.EndDate != nil {
		d, err := parseDate("endDate", *req.EndDate)
		if err != nil {
			return model.AvailabilityRule{}, err
		}
		rule.EndDate = &d
	}
	if req.StartTime != nil {
		t, err := model.ParseTimeOfDay(*req.StartTime)
		if err != nil {
			return model.AvailabilityRule{}, apperrors.InvalidInput("startTime", "must be HH:MM")
		}
		rule.StartTime = &t
	}
	if req.EndTime != nil {
		t, err := model.ParseTimeOfDay(*req.EndTime)
		if err != nil {
			return model.AvailabilityRule{}, apperrors.InvalidInput("endTime", "must be HH:MM")
		}
		rule.EndTime = &t
	}

	if req.IsAvailable != nil {
		rule.IsAvailable = *req.IsAvailable
	} else {
		// Regular slots assert availability unless stated otherwise.
		rule.IsAvailable = rule.Type == model.RuleTypeRegular
	}

	return rule, nil
}
