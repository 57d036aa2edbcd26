package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/service/reminder"
)

type ruleInput struct {
	Name               string `json:"name"`
	TriggerType        string `json:"trigger_type"`
	TriggerDays        int    `json:"trigger_days"`
	SourceCampaignID   string `json:"source_campaign_id"`
	ReminderCampaignID string `json:"reminder_campaign_id"`
	IsActive           *bool  `json:"is_active"`
	MaxReminders       int    `json:"max_reminders"`
}

func (in *ruleInput) toDomain(ownerID, id string) *domain.ReminderRule {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	maxReminders := in.MaxReminders
	if maxReminders == 0 {
		maxReminders = 1
	}
	return &domain.ReminderRule{
		ID:                 id,
		OwnerID:            ownerID,
		Name:               in.Name,
		TriggerType:        domain.ReminderTrigger(in.TriggerType),
		TriggerDays:        in.TriggerDays,
		SourceCampaignID:   in.SourceCampaignID,
		ReminderCampaignID: in.ReminderCampaignID,
		IsActive:           active,
		MaxReminders:       maxReminders,
	}
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.reminders.ListRules(r.Context(), ownerID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"rules": rules, "total": len(rules)})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var in ruleInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	rule, err := s.reminders.CreateRule(r.Context(), in.toDomain(ownerID(r), ""))
	if err != nil {
		writeRuleError(w, err)
		return
	}
	httputil.Created(w, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.reminders.GetRule(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeRuleError(w, err)
		return
	}
	httputil.OK(w, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var in ruleInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	rule, err := s.reminders.UpdateRule(r.Context(), in.toDomain(ownerID(r), chi.URLParam(r, "id")))
	if err != nil {
		writeRuleError(w, err)
		return
	}
	httputil.OK(w, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.reminders.DeleteRule(r.Context(), ownerID(r), chi.URLParam(r, "id")); err != nil {
		writeRuleError(w, err)
		return
	}
	httputil.NoContent(w)
}

func writeRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reminder.ErrRuleNotFound):
		httputil.NotFound(w, "reminder rule not found")
	case errors.Is(err, reminder.ErrInvalidTrigger),
		errors.Is(err, reminder.ErrInvalidRule),
		errors.Is(err, reminder.ErrCampaignMismatch):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
