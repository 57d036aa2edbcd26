// Package api exposes the HTTP surface: campaign CRUD, dispatch
// operations, reminder rule management, and open tracking.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/service/dispatch"
	"github.com/ignite/outreach/internal/tracking"
)

// CampaignStore is the campaign persistence the handlers need.
type CampaignStore interface {
	Create(ctx context.Context, c *domain.Campaign) (string, error)
	List(ctx context.Context, ownerID string) ([]domain.Campaign, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
}

// ContactStore is the contact persistence the handlers need.
type ContactStore interface {
	Create(ctx context.Context, c *domain.Contact) (string, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.Contact, error)
}

// DispatchService is the synchronous dispatch surface.
type DispatchService interface {
	Send(ctx context.Context, ownerID, campaignID string, scheduledAt *time.Time) (dispatch.Receipt, error)
	Abort(ctx context.Context, ownerID, campaignID string) error
	Retry(ctx context.Context, ownerID, campaignID string) (int, error)
	TestSend(ctx context.Context, ownerID, campaignID string, recipients []string) error
}

// Launcher runs a started campaign's loop in the background.
type Launcher interface {
	Dispatch(ctx context.Context, ownerID, campaignID string) error
}

// ReminderService is the reminder-rule surface.
type ReminderService interface {
	CreateRule(ctx context.Context, rule *domain.ReminderRule) (*domain.ReminderRule, error)
	UpdateRule(ctx context.Context, rule *domain.ReminderRule) (*domain.ReminderRule, error)
	DeleteRule(ctx context.Context, ownerID, id string) error
	GetRule(ctx context.Context, ownerID, id string) (*domain.ReminderRule, error)
	ListRules(ctx context.Context, ownerID string) ([]domain.ReminderRule, error)
}

// Server carries the handler dependencies.
type Server struct {
	campaigns CampaignStore
	contacts  ContactStore
	sends     DispatchService
	launcher  Launcher
	reminders ReminderService
	trackers  *tracking.Handler
	auth      Authenticator

	testRecipients []string
}

// NewServer creates the HTTP server wiring.
func NewServer(campaigns CampaignStore, contacts ContactStore, sends DispatchService, launcher Launcher, reminders ReminderService, trackers *tracking.Handler, auth Authenticator) *Server {
	return &Server{
		campaigns: campaigns,
		contacts:  contacts,
		sends:     sends,
		launcher:  launcher,
		reminders: reminders,
		trackers:  trackers,
		auth:      auth,
	}
}

// WithTestRecipients sets the default recipients used when a test-send
// request does not name any.
func (s *Server) WithTestRecipients(addrs []string) *Server {
	s.testRecipients = addrs
	return s
}

// Routes builds the full router. Tracking and health are public; the API
// subtree requires a bearer token.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	// Open tracking must stay public: mail clients fetch the pixel with no
	// credentials.
	if s.trackers != nil {
		r.Get("/track/open/{token}", s.trackers.HandleOpen)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)
			r.Get("/{id}", s.handleGetCampaign)
			r.Post("/{id}/send", s.handleSendCampaign)
			r.Post("/{id}/test-send", s.handleTestSend)
			r.Post("/{id}/retry", s.handleRetryCampaign)
			r.Get("/{id}/contacts", s.handleListContacts)
			r.Post("/{id}/contacts", s.handleAddContact)
		})

		r.Route("/reminder-rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Get("/{id}", s.handleGetRule)
			r.Put("/{id}", s.handleUpdateRule)
			r.Delete("/{id}", s.handleDeleteRule)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
