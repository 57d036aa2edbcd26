package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/personalize"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/tracking"
	"github.com/ignite/outreach/internal/transport"
)

// CredentialSource resolves the sending account for an owner.
type CredentialSource interface {
	Resolve(ctx context.Context, ownerID string) (*domain.MailAccount, error)
}

// TransportFactory selects a sender for an account's provider.
type TransportFactory interface {
	ForAccount(account *domain.MailAccount) (transport.Sender, error)
}

// Service owns reminder rules and the reminder queue.
type Service struct {
	rules     RuleRepository
	queue     QueueRepository
	campaigns CampaignSource
	contacts  ContactSource
	creds     CredentialSource
	senders   TransportFactory
	render    *personalize.Personalizer

	batchSize   int
	sendTimeout time.Duration

	now func() time.Time
}

// NewService creates a reminder service. batchSize bounds how many due
// items one ProcessQueue pass handles.
func NewService(rules RuleRepository, queue QueueRepository, campaigns CampaignSource, contacts ContactSource, creds CredentialSource, senders TransportFactory, render *personalize.Personalizer, batchSize int, sendTimeout time.Duration) *Service {
	if batchSize <= 0 {
		batchSize = 50
	}
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Service{
		rules:       rules,
		queue:       queue,
		campaigns:   campaigns,
		contacts:    contacts,
		creds:       creds,
		senders:     senders,
		render:      render,
		batchSize:   batchSize,
		sendTimeout: sendTimeout,
		now:         time.Now,
	}
}

func (s *Service) validate(ctx context.Context, rule *domain.ReminderRule) error {
	if !rule.TriggerType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTrigger, rule.TriggerType)
	}
	if rule.TriggerDays < 1 {
		return fmt.Errorf("%w: trigger_days must be >= 1", ErrInvalidRule)
	}
	if rule.MaxReminders < 1 {
		return fmt.Errorf("%w: max_reminders must be >= 1", ErrInvalidRule)
	}
	if rule.SourceCampaignID == "" || rule.ReminderCampaignID == "" {
		return fmt.Errorf("%w: source and reminder campaigns are required", ErrInvalidRule)
	}
	// Both campaigns must exist under the rule owner.
	if _, err := s.campaigns.Get(ctx, rule.OwnerID, rule.SourceCampaignID); err != nil {
		return fmt.Errorf("%w: source campaign: %v", ErrCampaignMismatch, err)
	}
	if _, err := s.campaigns.Get(ctx, rule.OwnerID, rule.ReminderCampaignID); err != nil {
		return fmt.Errorf("%w: reminder campaign: %v", ErrCampaignMismatch, err)
	}
	return nil
}

// CreateRule validates and persists a rule, then immediately evaluates it
// so an already-completed source campaign gets its reminders scheduled
// without waiting for another completion event.
func (s *Service) CreateRule(ctx context.Context, rule *domain.ReminderRule) (*domain.ReminderRule, error) {
	if err := s.validate(ctx, rule); err != nil {
		return nil, err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	logger.Info("reminder: rule created", "rule_id", rule.ID, "trigger", string(rule.TriggerType))

	if err := s.ScheduleForRule(ctx, rule.OwnerID, rule.ID); err != nil {
		// The rule exists; scheduling can run again on the next
		// completion event.
		logger.Error("reminder: initial scheduling", "rule_id", rule.ID, "error", err.Error())
	}
	return rule, nil
}

// UpdateRule validates and persists changes to an existing rule.
func (s *Service) UpdateRule(ctx context.Context, rule *domain.ReminderRule) (*domain.ReminderRule, error) {
	if _, err := s.rules.Get(ctx, rule.OwnerID, rule.ID); err != nil {
		return nil, err
	}
	if err := s.validate(ctx, rule); err != nil {
		return nil, err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// DeleteRule removes a rule. Queue items already produced by the rule are
// kept; pending ones still go out.
func (s *Service) DeleteRule(ctx context.Context, ownerID, id string) error {
	return s.rules.Delete(ctx, ownerID, id)
}

// ListRules returns all rules of an owner.
func (s *Service) ListRules(ctx context.Context, ownerID string) ([]domain.ReminderRule, error) {
	return s.rules.ListByOwner(ctx, ownerID)
}

// GetRule returns one rule of an owner.
func (s *Service) GetRule(ctx context.Context, ownerID, id string) (*domain.ReminderRule, error) {
	return s.rules.Get(ctx, ownerID, id)
}

// OnCampaignCompleted evaluates every active rule whose source campaign
// just completed. Rules are independent; one rule's failure is logged and
// does not stop the others. Wired as the dispatch service's completion
// hook.
func (s *Service) OnCampaignCompleted(ctx context.Context, campaignID string) {
	rules, err := s.rules.ListActiveBySource(ctx, campaignID)
	if err != nil {
		logger.Error("reminder: list rules for campaign", "campaign_id", campaignID, "error", err.Error())
		return
	}
	for _, rule := range rules {
		if err := s.ScheduleForRule(ctx, rule.OwnerID, rule.ID); err != nil {
			logger.Error("reminder: schedule rule", "rule_id", rule.ID, "error", err.Error())
		}
	}
}

// ScheduleForRule enqueues one reminder per eligible contact of the rule's
// source campaign. Eligible means the contact was actually sent the source
// email and has fewer than max_reminders items for this rule already.
func (s *Service) ScheduleForRule(ctx context.Context, ownerID, ruleID string) error {
	rule, err := s.rules.Get(ctx, ownerID, ruleID)
	if err != nil {
		return err
	}
	if !rule.IsActive {
		return nil
	}

	source, err := s.campaigns.Get(ctx, ownerID, rule.SourceCampaignID)
	if err != nil {
		return fmt.Errorf("load source campaign: %w", err)
	}

	sent, err := s.contacts.ListSent(ctx, rule.SourceCampaignID)
	if err != nil {
		return fmt.Errorf("list sent contacts: %w", err)
	}
	if len(sent) == 0 {
		return nil
	}

	now := s.now()
	var items []domain.ReminderQueueItem
	for i := range sent {
		contact := &sent[i]

		n, err := s.queue.CountForContactRule(ctx, contact.ID, rule.ID)
		if err != nil {
			logger.Error("reminder: count queue items",
				"rule_id", rule.ID, "error", err.Error())
			continue
		}
		if n >= rule.MaxReminders {
			continue
		}

		items = append(items, domain.ReminderQueueItem{
			ID:             uuid.New().String(),
			OwnerID:        rule.OwnerID,
			ContactID:      contact.ID,
			ReminderRuleID: rule.ID,
			CampaignID:     rule.ReminderCampaignID,
			ScheduledFor:   s.scheduledFor(rule, source, contact, now),
			Status:         domain.QueuePending,
			ReminderCount:  n,
		})
	}
	if len(items) == 0 {
		return nil
	}

	if err := s.queue.InsertBatch(ctx, items); err != nil {
		return fmt.Errorf("enqueue reminders: %w", err)
	}
	logger.Info("reminder: scheduled",
		"rule_id", rule.ID, "items", len(items),
		"trigger", string(rule.TriggerType))
	return nil
}

// scheduledFor computes when an item becomes due. days_after_last_email
// anchors on the contact's own sent_at; the other two triggers anchor on
// the source campaign's completion. A missing anchor falls back to now.
func (s *Service) scheduledFor(rule *domain.ReminderRule, source *domain.Campaign, contact *domain.Contact, now time.Time) time.Time {
	anchor := now
	switch rule.TriggerType {
	case domain.TriggerDaysAfterLastEmail:
		if contact.SentAt != nil {
			anchor = *contact.SentAt
		}
	default:
		if source.CompletedAt != nil {
			anchor = *source.CompletedAt
		}
	}
	return anchor.Add(time.Duration(rule.TriggerDays) * 24 * time.Hour)
}

// ProcessQueue handles one batch of due reminder items. Items are fully
// isolated: a failure marks that item failed and moves on. Invoked by the
// periodic worker.
func (s *Service) ProcessQueue(ctx context.Context) (int, error) {
	items, err := s.queue.Due(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select due reminders: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	sent := 0
	for i := range items {
		if err := s.processItem(ctx, &items[i]); err != nil {
			logger.Error("reminder: item failed",
				"item_id", items[i].ID, "error", err.Error())
			if uerr := s.queue.MarkFailed(ctx, items[i].ID, err.Error()); uerr != nil {
				logger.Error("reminder: mark failed",
					"item_id", items[i].ID, "error", uerr.Error())
			}
			continue
		}
		sent++
	}
	logger.Info("reminder: batch processed", "due", len(items), "sent", sent)
	return sent, nil
}

func (s *Service) processItem(ctx context.Context, item *domain.ReminderQueueItem) error {
	rule, err := s.rules.Get(ctx, item.OwnerID, item.ReminderRuleID)
	if err != nil {
		return fmt.Errorf("load rule: %w", err)
	}

	contact, err := s.contacts.Get(ctx, item.ContactID)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}

	// no_response means the follow-up only goes to contacts who never
	// opened the original email.
	if rule.TriggerType == domain.TriggerNoResponse && contact.Opened() {
		return fmt.Errorf("contact already responded")
	}

	campaign, err := s.campaigns.Get(ctx, item.OwnerID, item.CampaignID)
	if err != nil {
		return fmt.Errorf("load reminder campaign: %w", err)
	}

	account, err := s.creds.Resolve(ctx, item.OwnerID)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}
	sender, err := s.senders.ForAccount(account)
	if err != nil {
		return fmt.Errorf("resolve transport: %w", err)
	}

	token := tracking.NewToken()
	msg := &domain.EmailMessage{
		ID:        uuid.New().String(),
		To:        contact.Email,
		CC:        campaign.Settings.CC,
		FromName:  campaign.FromName,
		FromEmail: campaign.FromEmail,
		Subject:   s.render.Render(campaign.Subject, contact),
		HTMLBody:  s.render.Build(campaign.HTMLBody, contact, token),
		TextBody:  s.render.Render(campaign.TextBody, contact),
	}

	sctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	if _, err := sender.Send(sctx, msg, &account.Credentials); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	if err := s.queue.MarkSent(ctx, item.ID, token, s.now()); err != nil {
		// The email is out; keep the stale row rather than retry.
		logger.Error("reminder: mark sent", "item_id", item.ID, "error", err.Error())
	}
	return nil
}
