package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/service/dispatch"
)

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := s.campaigns.List(r.Context(), ownerID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaigns": list, "total": len(list)})
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name         string `json:"name"`
		Subject      string `json:"subject"`
		HTMLBody     string `json:"html_body"`
		TextBody     string `json:"text_body"`
		FromName     string `json:"from_name"`
		FromEmail    string `json:"from_email"`
		DelaySeconds int    `json:"delay_seconds"`
		CC           string `json:"cc"`
	}
	if !httputil.Decode(w, r, &in) {
		return
	}
	if in.Name == "" || in.Subject == "" || in.FromEmail == "" {
		httputil.BadRequest(w, "name, subject and from_email are required")
		return
	}

	c := &domain.Campaign{
		OwnerID:   ownerID(r),
		Name:      in.Name,
		Subject:   in.Subject,
		HTMLBody:  in.HTMLBody,
		TextBody:  in.TextBody,
		FromName:  in.FromName,
		FromEmail: in.FromEmail,
		Settings:  domain.CampaignSettings{DelaySeconds: in.DelaySeconds, CC: in.CC},
		Status:    domain.CampaignDraft,
	}
	id, err := s.campaigns.Create(r.Context(), c)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, map[string]any{"id": id})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.campaigns.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if errors.Is(err, dispatch.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, c)
}

// handleSendCampaign starts or schedules a dispatch. The send loop runs in
// the background; the response only confirms the hand-off.
func (s *Server) handleSendCampaign(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if r.ContentLength > 0 && !httputil.Decode(w, r, &in) {
		return
	}

	owner := ownerID(r)
	campaignID := chi.URLParam(r, "id")

	receipt, err := s.sends.Send(r.Context(), owner, campaignID, in.ScheduledAt)
	if err != nil {
		writeDispatchError(w, err)
		return
	}

	status := "scheduled"
	if receipt.Started {
		status = "started"
		if err := s.launcher.Dispatch(r.Context(), owner, campaignID); err != nil {
			if errors.Is(err, dispatch.ErrInFlight) {
				// Another loop owns the campaign; its status is theirs.
				httputil.Conflict(w, "dispatch already in flight for campaign")
				return
			}
			// Send already flipped the campaign to sending but no loop is
			// running; put it back so the caller can try again.
			if aerr := s.sends.Abort(r.Context(), owner, campaignID); aerr != nil {
				logger.Error("api: abort after failed dispatch hand-off",
					"campaign_id", campaignID, "error", aerr.Error())
			}
			httputil.InternalError(w, err)
			return
		}
	}

	httputil.Accepted(w, map[string]any{
		"status":         status,
		"total_contacts": receipt.TotalContacts,
	})
}

func (s *Server) handleTestSend(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Recipients []string `json:"recipients"`
	}
	if r.ContentLength > 0 && !httputil.Decode(w, r, &in) {
		return
	}
	if len(in.Recipients) == 0 {
		in.Recipients = s.testRecipients
	}
	if len(in.Recipients) == 0 {
		httputil.BadRequest(w, "recipients is required and no default test recipients are configured")
		return
	}

	err := s.sends.TestSend(r.Context(), ownerID(r), chi.URLParam(r, "id"), in.Recipients)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"sent": len(in.Recipients)})
}

func (s *Server) handleRetryCampaign(w http.ResponseWriter, r *http.Request) {
	n, err := s.sends.Retry(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"contacts_reset": n})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	// Ownership check first so contacts of foreign campaigns 404.
	if _, err := s.campaigns.Get(r.Context(), ownerID(r), chi.URLParam(r, "id")); err != nil {
		writeDispatchError(w, err)
		return
	}
	list, err := s.contacts.ListByCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"contacts": list, "total": len(list)})
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email   string `json:"email"`
		Company string `json:"company"`
	}
	if !httputil.Decode(w, r, &in) {
		return
	}
	if in.Email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}

	campaignID := chi.URLParam(r, "id")
	if _, err := s.campaigns.Get(r.Context(), ownerID(r), campaignID); err != nil {
		writeDispatchError(w, err)
		return
	}

	id, err := s.contacts.Create(r.Context(), &domain.Contact{
		OwnerID:    ownerID(r),
		CampaignID: &campaignID,
		Email:      in.Email,
		Company:    in.Company,
		Status:     domain.ContactPending,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, map[string]any{"id": id})
}

// writeDispatchError maps dispatch sentinels onto HTTP statuses.
func writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		httputil.NotFound(w, "campaign not found")
	case errors.Is(err, dispatch.ErrNoContacts),
		errors.Is(err, dispatch.ErrScheduleInPast),
		errors.Is(err, dispatch.ErrNoTransport),
		errors.Is(err, dispatch.ErrNotRetryable):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, dispatch.ErrAlreadySending),
		errors.Is(err, dispatch.ErrInFlight):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
