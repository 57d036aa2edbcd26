package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/credentials"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/personalize"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/tracking"
	"github.com/ignite/outreach/internal/transport"
)

// CredentialSource resolves the sending account for an owner, refreshing
// OAuth tokens as needed.
type CredentialSource interface {
	Resolve(ctx context.Context, ownerID string) (*domain.MailAccount, error)
}

// TransportFactory selects a sender for an account's provider.
type TransportFactory interface {
	ForAccount(account *domain.MailAccount) (transport.Sender, error)
}

// Receipt is the synchronous answer to a send request. When Started is
// false the campaign was scheduled for later instead of dispatched now.
type Receipt struct {
	Started       bool `json:"started"`
	TotalContacts int  `json:"total_contacts"`
}

// Service implements the campaign dispatch controller. The synchronous
// surface (Send, Retry, TestSend) validates and flips state; the send loop
// itself runs in Run, which a background worker invokes after Send returns.
type Service struct {
	campaigns CampaignRepository
	contacts  ContactRepository
	creds     CredentialSource
	senders   TransportFactory
	render    *personalize.Personalizer

	sendTimeout time.Duration

	// onCompleted fires after a campaign reaches completed, with the
	// campaign ID as source for reminder-rule evaluation.
	onCompleted func(ctx context.Context, campaignID string)

	// Overridable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewService creates a dispatch service.
func NewService(campaigns CampaignRepository, contacts ContactRepository, creds CredentialSource, senders TransportFactory, render *personalize.Personalizer, sendTimeout time.Duration) *Service {
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Service{
		campaigns:   campaigns,
		contacts:    contacts,
		creds:       creds,
		senders:     senders,
		render:      render,
		sendTimeout: sendTimeout,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// OnCompleted registers the completion hook (reminder-rule evaluation).
func (s *Service) OnCompleted(fn func(ctx context.Context, campaignID string)) {
	s.onCompleted = fn
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Send validates a dispatch request and either schedules the campaign for
// later (scheduledAt in the future) or transitions it to sending. The
// actual send loop is NOT run here: the caller hands the campaign to the
// background dispatcher and this method returns immediately.
func (s *Service) Send(ctx context.Context, ownerID, campaignID string, scheduledAt *time.Time) (Receipt, error) {
	c, err := s.campaigns.Get(ctx, ownerID, campaignID)
	if err != nil {
		return Receipt{}, err
	}
	if c.Status == domain.CampaignSending {
		return Receipt{}, ErrAlreadySending
	}
	if c.Status != domain.CampaignDraft {
		return Receipt{}, fmt.Errorf("%w: campaign is %s", ErrAlreadySending, c.Status)
	}

	list, err := s.contacts.ListByCampaign(ctx, campaignID)
	if err != nil {
		return Receipt{}, err
	}
	// Starting requires at least one contact still awaiting delivery; a
	// fully-sent campaign has nothing to dispatch.
	sendable := 0
	for _, ct := range list {
		if ct.Sendable() {
			sendable++
		}
	}
	if sendable == 0 {
		return Receipt{}, ErrNoContacts
	}

	// Detect a missing transport before mutating anything.
	if _, _, err := s.resolveSender(ctx, ownerID); err != nil {
		return Receipt{}, err
	}

	now := s.now()
	if scheduledAt != nil {
		if !scheduledAt.After(now) {
			return Receipt{}, ErrScheduleInPast
		}
		if err := s.campaigns.Schedule(ctx, campaignID, scheduledAt.UTC()); err != nil {
			return Receipt{}, err
		}
		logger.Info("dispatch: campaign scheduled",
			"campaign_id", campaignID, "scheduled_at", scheduledAt.UTC().Format(time.RFC3339))
		return Receipt{Started: false, TotalContacts: len(list)}, nil
	}

	if err := s.campaigns.MarkSending(ctx, campaignID, now); err != nil {
		return Receipt{}, err
	}
	logger.Info("dispatch: campaign started",
		"campaign_id", campaignID, "total_contacts", len(list))
	return Receipt{Started: true, TotalContacts: len(list)}, nil
}

func (s *Service) resolveSender(ctx context.Context, ownerID string) (*domain.MailAccount, transport.Sender, error) {
	account, err := s.creds.Resolve(ctx, ownerID)
	if err != nil {
		if errors.Is(err, credentials.ErrNoAccount) {
			return nil, nil, ErrNoTransport
		}
		return nil, nil, err
	}
	sender, err := s.senders.ForAccount(account)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNoTransport, err)
	}
	return account, sender, nil
}

// Run executes the send loop for a campaign already in sending state. It
// walks the pending/failed contacts in stable order, personalizes and
// sends one message per contact with the configured delay between sends,
// and finishes by recomputing the campaign status from the full contact
// set. Run is invoked by the background dispatcher, never by a request
// handler directly.
func (s *Service) Run(ctx context.Context, ownerID, campaignID string) {
	c, err := s.campaigns.Get(ctx, ownerID, campaignID)
	if err != nil {
		logger.Error("dispatch: load campaign", "campaign_id", campaignID, "error", err.Error())
		return
	}

	account, sender, err := s.resolveSender(ctx, ownerID)
	if err != nil {
		// Fatal before any send attempt: the campaign fails whole.
		logger.Error("dispatch: resolve transport", "campaign_id", campaignID, "error", err.Error())
		s.finish(ctx, c, domain.CampaignFailed)
		return
	}

	list, err := s.contacts.ListByCampaign(ctx, campaignID)
	if err != nil {
		logger.Error("dispatch: list contacts", "campaign_id", campaignID, "error", err.Error())
		s.finish(ctx, c, domain.CampaignFailed)
		return
	}

	var batch []domain.Contact
	for _, ct := range list {
		if ct.Sendable() {
			batch = append(batch, ct)
		}
	}

	delay := c.Delay()
	for i := range batch {
		contact := &batch[i]

		token := tracking.NewToken()
		if err := s.contacts.MarkQueued(ctx, contact.ID, token); err != nil {
			logger.Error("dispatch: mark queued",
				"contact_id", contact.ID, "error", err.Error())
			continue
		}

		msg := s.buildMessage(c, contact, token)
		err := s.deliver(ctx, sender, msg, &account.Credentials)
		switch {
		case err == nil:
			if uerr := s.contacts.MarkSent(ctx, contact.ID, s.now()); uerr != nil {
				// The email is already out; favor a stale status row
				// over any action that could double-send.
				logger.Error("dispatch: mark sent",
					"contact_id", contact.ID, "error", uerr.Error())
			}
		case transport.IsAuthError(err):
			// Terminal auth failure: abort the whole loop instead of
			// failing the remaining contacts one at a time.
			logger.Error("dispatch: auth failure, aborting",
				"campaign_id", campaignID, "error", err.Error())
			if uerr := s.contacts.ResetToPending(ctx, contact.ID); uerr != nil {
				logger.Error("dispatch: reset contact",
					"contact_id", contact.ID, "error", uerr.Error())
			}
			s.finish(ctx, c, domain.CampaignFailed)
			return
		default:
			if uerr := s.contacts.MarkFailed(ctx, contact.ID, err.Error()); uerr != nil {
				logger.Error("dispatch: mark failed",
					"contact_id", contact.ID, "error", uerr.Error())
			}
		}

		if i < len(batch)-1 {
			s.sleep(ctx, delay)
		}
	}

	s.finish(ctx, c, s.computeStatus(ctx, campaignID))
}

func (s *Service) deliver(ctx context.Context, sender transport.Sender, msg *domain.EmailMessage, creds *domain.Credentials) error {
	sctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	_, err := sender.Send(sctx, msg, creds)
	return err
}

func (s *Service) buildMessage(c *domain.Campaign, contact *domain.Contact, token string) *domain.EmailMessage {
	return &domain.EmailMessage{
		ID:        uuid.New().String(),
		To:        contact.Email,
		CC:        c.Settings.CC,
		FromName:  c.FromName,
		FromEmail: c.FromEmail,
		Subject:   s.render.Render(c.Subject, contact),
		HTMLBody:  s.render.Build(c.HTMLBody, contact, token),
		TextBody:  s.render.Render(c.TextBody, contact),
	}
}

// computeStatus derives the terminal campaign status from the full contact
// set, including rows sent on earlier runs. Completed requires at least one
// sent contact and no unresolved ones; a set that is all failures is a
// failed campaign.
func (s *Service) computeStatus(ctx context.Context, campaignID string) domain.CampaignStatus {
	list, err := s.contacts.ListByCampaign(ctx, campaignID)
	if err != nil {
		logger.Error("dispatch: recompute status", "campaign_id", campaignID, "error", err.Error())
		return domain.CampaignFailed
	}

	anySent := false
	allResolved := true
	for _, ct := range list {
		if ct.Status == domain.ContactSent {
			anySent = true
		}
		if !ct.Resolved() {
			allResolved = false
		}
	}
	if anySent && allResolved {
		return domain.CampaignCompleted
	}
	return domain.CampaignFailed
}

func (s *Service) finish(ctx context.Context, c *domain.Campaign, status domain.CampaignStatus) {
	if err := s.campaigns.Finish(ctx, c.ID, status, s.now()); err != nil {
		logger.Error("dispatch: finish campaign", "campaign_id", c.ID, "error", err.Error())
		return
	}
	logger.Info("dispatch: campaign finished", "campaign_id", c.ID, "status", string(status))
	if status == domain.CampaignCompleted && s.onCompleted != nil {
		s.onCompleted(ctx, c.ID)
	}
}

// Abort returns a campaign stuck in sending back to draft. It exists for
// the failed hand-off case: Send has flipped the status but the background
// loop could not be launched, so nothing will ever finish the campaign.
// Campaigns in any other state are left alone.
func (s *Service) Abort(ctx context.Context, ownerID, campaignID string) error {
	c, err := s.campaigns.Get(ctx, ownerID, campaignID)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignSending {
		return nil
	}
	if err := s.campaigns.Reopen(ctx, campaignID); err != nil {
		return err
	}
	logger.Warn("dispatch: campaign aborted back to draft", "campaign_id", campaignID)
	return nil
}

// Retry resets every non-sent contact of a terminal campaign back to
// pending and reopens the campaign as draft. Contacts already sent are
// untouched, so a subsequent dispatch never double-sends.
func (s *Service) Retry(ctx context.Context, ownerID, campaignID string) (int, error) {
	c, err := s.campaigns.Get(ctx, ownerID, campaignID)
	if err != nil {
		return 0, err
	}
	if c.Status != domain.CampaignCompleted && c.Status != domain.CampaignFailed {
		return 0, ErrNotRetryable
	}

	n, err := s.contacts.ResetUnsent(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if err := s.campaigns.Reopen(ctx, campaignID); err != nil {
		return 0, err
	}
	logger.Info("dispatch: campaign reopened for retry",
		"campaign_id", campaignID, "contacts_reset", n)
	return n, nil
}

// TestSend delivers the campaign to the given test recipients with a
// [TEST] subject prefix. It bypasses the delay loop entirely and mutates
// no campaign or contact state; no tracking pixel is injected.
func (s *Service) TestSend(ctx context.Context, ownerID, campaignID string, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no test recipients configured")
	}

	c, err := s.campaigns.Get(ctx, ownerID, campaignID)
	if err != nil {
		return err
	}
	account, sender, err := s.resolveSender(ctx, ownerID)
	if err != nil {
		return err
	}

	for _, to := range recipients {
		sample := &domain.Contact{Email: to, Company: "Example Inc"}
		msg := &domain.EmailMessage{
			ID:        uuid.New().String(),
			To:        to,
			FromName:  c.FromName,
			FromEmail: c.FromEmail,
			Subject:   "[TEST] " + s.render.Render(c.Subject, sample),
			HTMLBody:  s.render.Build(c.HTMLBody, sample, ""),
			TextBody:  s.render.Render(c.TextBody, sample),
		}
		if err := s.deliver(ctx, sender, msg, &account.Credentials); err != nil {
			return fmt.Errorf("test send to %s: %w", to, err)
		}
	}
	return nil
}
