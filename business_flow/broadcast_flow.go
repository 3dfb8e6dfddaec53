// Package businessflow contains the core business logic for campaign broadcasting
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/calyxsuite/outreach/app/services"
	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/repository"
	"github.com/calyxsuite/outreach/utils"
	"gorm.io/gorm"
)

// BroadcastSummary reports the outcome of one coordinator pass
type BroadcastSummary struct {
	CampaignID uint   `json:"campaign_id"`
	Channel    string `json:"channel"`
	Scheduled  int    `json:"scheduled"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// BroadcastFlow coordinates one campaign broadcast: it resolves the audience,
// creates recipient rows, and schedules a delivery task per recipient with a
// throttle-derived delay. It never waits for deliveries to execute; a campaign
// is "sent" once every recipient has been scheduled.
type BroadcastFlow interface {
	Broadcast(ctx context.Context, campaignID uint, metadata *ClientMetadata) (*BroadcastSummary, error)
}

// BroadcastFlowImpl implements the campaign broadcast coordination for one
// delivery channel. An email coordinator ignores SMS campaigns and vice versa.
type BroadcastFlowImpl struct {
	channel       models.CampaignChannel
	defaultRate   int
	lockTTL       time.Duration
	campaignRepo  repository.CampaignRepository
	userRepo      repository.UserRepository
	recipientRepo repository.RecipientRepository
	taskRepo      repository.DeliveryTaskRepository
	auditRepo     repository.AuditLogRepository
	resolver      AudienceResolver
	locker        BroadcastLocker
	notifier      services.Notifier
	db            *gorm.DB
}

// NewEmailBroadcastFlow creates the email variant of the broadcast coordinator
func NewEmailBroadcastFlow(
	campaignRepo repository.CampaignRepository,
	userRepo repository.UserRepository,
	recipientRepo repository.RecipientRepository,
	taskRepo repository.DeliveryTaskRepository,
	auditRepo repository.AuditLogRepository,
	resolver AudienceResolver,
	locker BroadcastLocker,
	notifier services.Notifier,
	db *gorm.DB,
	lockTTL time.Duration,
) BroadcastFlow {
	return &BroadcastFlowImpl{
		channel:       models.CampaignChannelEmail,
		defaultRate:   DefaultEmailRatePerMinute,
		lockTTL:       lockTTL,
		campaignRepo:  campaignRepo,
		userRepo:      userRepo,
		recipientRepo: recipientRepo,
		taskRepo:      taskRepo,
		auditRepo:     auditRepo,
		resolver:      resolver,
		locker:        locker,
		notifier:      notifier,
		db:            db,
	}
}

// NewSMSBroadcastFlow creates the SMS variant of the broadcast coordinator
func NewSMSBroadcastFlow(
	campaignRepo repository.CampaignRepository,
	userRepo repository.UserRepository,
	recipientRepo repository.RecipientRepository,
	taskRepo repository.DeliveryTaskRepository,
	auditRepo repository.AuditLogRepository,
	resolver AudienceResolver,
	locker BroadcastLocker,
	notifier services.Notifier,
	db *gorm.DB,
	lockTTL time.Duration,
) BroadcastFlow {
	return &BroadcastFlowImpl{
		channel:       models.CampaignChannelSMS,
		defaultRate:   DefaultSMSRatePerMinute,
		lockTTL:       lockTTL,
		campaignRepo:  campaignRepo,
		userRepo:      userRepo,
		recipientRepo: recipientRepo,
		taskRepo:      taskRepo,
		auditRepo:     auditRepo,
		resolver:      resolver,
		locker:        locker,
		notifier:      notifier,
		db:            db,
	}
}

// Broadcast runs one coordinator pass over a campaign's audience
func (s *BroadcastFlowImpl) Broadcast(ctx context.Context, campaignID uint, metadata *ClientMetadata) (*BroadcastSummary, error) {
	// Missing campaign or a channel mismatch is a type guard, not an error
	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil || campaign.Channel != s.channel {
		return nil, nil
	}

	owner, err := s.resolveOwner(ctx, campaign)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, nil
	}

	// A concurrent duplicate trigger on the same campaign returns without
	// side effects; the lock TTL bounds the hold if the process dies.
	if s.locker != nil {
		acquired, err := s.locker.Acquire(ctx, campaign.ID, s.lockTTL)
		if err != nil {
			return nil, NewBusinessError("BROADCAST_LOCK_FAILED", "Failed to acquire broadcast lock", err)
		}
		if !acquired {
			return nil, NewBusinessError("BROADCAST_IN_PROGRESS", "Campaign broadcast is already running", ErrCampaignAlreadyRunning)
		}
		defer func() {
			if err := s.locker.Release(ctx, campaign.ID); err != nil {
				log.Printf("[BroadcastFlow] Failed to release lock for campaign %d: %v", campaign.ID, err)
			}
		}()
	}

	startMsg := fmt.Sprintf("Broadcast of campaign %s started", campaign.UUID)
	s.createAuditLog(ctx, owner, campaign, models.AuditActionBroadcastStarted, startMsg, true, nil, metadata)

	// The email coordinator flips the campaign to sending before the audience
	// is enumerated so a duplicate trigger is visible by status inspection
	if s.channel == models.CampaignChannelEmail {
		if err := s.markSending(ctx, campaign); err != nil {
			return nil, err
		}
	}

	summary, err := s.scheduleAudience(ctx, campaign, owner)
	if err != nil {
		errMsg := fmt.Sprintf("Broadcast of campaign %s failed: %s", campaign.UUID, err.Error())
		s.createAuditLog(ctx, owner, campaign, models.AuditActionBroadcastFailed, errMsg, false, &errMsg, metadata)
		return nil, err
	}

	if err := s.markSent(ctx, campaign); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Broadcast of campaign %s completed: %d scheduled, %d skipped, %d failed",
		campaign.UUID, summary.Scheduled, summary.Skipped, summary.Failed)
	s.createAuditLog(ctx, owner, campaign, models.AuditActionBroadcastCompleted, msg, true, nil, metadata)

	// Completion means every delivery was scheduled, not that any executed.
	// Reload first: the owner is told about the campaign's final state.
	s.notifyOwner(ctx, campaign.ID, owner, summary.Scheduled, metadata)

	return summary, nil
}

// resolveOwner returns the campaign's owning user, nil when absent or inactive
func (s *BroadcastFlowImpl) resolveOwner(ctx context.Context, campaign *models.Campaign) (*models.User, error) {
	owner := campaign.User
	if owner == nil {
		var err error
		owner, err = s.userRepo.ByID(ctx, campaign.UserID)
		if err != nil {
			return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to lookup campaign owner", err)
		}
	}
	if owner == nil || !utils.IsTrue(owner.IsActive) {
		return nil, nil
	}
	return owner, nil
}

// markSending transitions the campaign to sending and stamps started_at
func (s *BroadcastFlowImpl) markSending(ctx context.Context, campaign *models.Campaign) error {
	if campaign.Status == models.CampaignStatusSending {
		return nil
	}
	if !campaign.CanTransitionTo(models.CampaignStatusSending) {
		return NewBusinessError("CAMPAIGN_NOT_BROADCASTABLE", "Campaign cannot start sending in its current status", ErrCampaignNotScheduled)
	}

	campaign.Status = models.CampaignStatusSending
	if campaign.StartedAt == nil {
		campaign.StartedAt = utils.UTCNowPtr()
	}

	if err := s.campaignRepo.Update(ctx, campaign); err != nil {
		return NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Failed to mark campaign as sending", err)
	}
	return nil
}

// markSent transitions the campaign to sent and stamps completed_at
func (s *BroadcastFlowImpl) markSent(ctx context.Context, campaign *models.Campaign) error {
	if campaign.Status != models.CampaignStatusSent {
		if !campaign.CanTransitionTo(models.CampaignStatusSent) {
			return NewBusinessError("CAMPAIGN_NOT_BROADCASTABLE", "Campaign cannot be marked sent in its current status", ErrCampaignNotScheduled)
		}
		campaign.Status = models.CampaignStatusSent
	}
	if campaign.StartedAt == nil {
		campaign.StartedAt = utils.UTCNowPtr()
	}
	campaign.CompletedAt = utils.UTCNowPtr()

	if err := s.campaignRepo.Update(ctx, campaign); err != nil {
		return NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Failed to mark campaign as sent", err)
	}
	return nil
}

// scheduleAudience streams the audience and schedules one delivery per
// eligible contact. A failure on one contact never aborts the loop; the
// running index only advances for contacts that were actually scheduled, so
// the throttle envelope stays dense.
func (s *BroadcastFlowImpl) scheduleAudience(ctx context.Context, campaign *models.Campaign, owner *models.User) (*BroadcastSummary, error) {
	summary := &BroadcastSummary{
		CampaignID: campaign.ID,
		Channel:    campaign.Channel.String(),
	}

	iter, err := s.resolver.Resolve(ctx, campaign)
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_RESOLUTION_FAILED", "Failed to resolve campaign audience", err)
	}
	defer iter.Close()

	rate := ResolveThrottleRate(campaign.Settings.ThrottleRate(), s.defaultRate)
	base := utils.UTCNow()
	index := 0

	for iter.Next() {
		contact, err := iter.Contact()
		if err != nil {
			summary.Failed++
			log.Printf("[BroadcastFlow] Campaign %d: failed to read contact from cursor: %v", campaign.ID, err)
			continue
		}

		if !s.eligible(contact) {
			summary.Skipped++
			continue
		}

		runAt := base.Add(DelayFor(index, rate))
		if err := s.scheduleRecipient(ctx, campaign, owner, contact, runAt); err != nil {
			summary.Failed++
			log.Printf("[BroadcastFlow] Campaign %d: failed to schedule contact %d: %v", campaign.ID, contact.ID, err)
			continue
		}

		summary.Scheduled++
		index++
	}
	if err := iter.Close(); err != nil {
		return nil, NewBusinessError("AUDIENCE_CURSOR_FAILED", "Audience cursor failed mid-broadcast", err)
	}

	return summary, nil
}

// eligible re-checks the channel destination on the contact itself. The SQL
// predicates exclude unsubscribed and empty-destination contacts; phone format
// is only verifiable here.
func (s *BroadcastFlowImpl) eligible(contact *models.Contact) bool {
	switch s.channel {
	case models.CampaignChannelEmail:
		return contact.CanReceiveEmail()
	case models.CampaignChannelSMS:
		return contact.CanReceiveSMS() && contact.HasValidPhone()
	default:
		return false
	}
}

// scheduleRecipient creates the recipient row, its delivery task, and the
// send-to audit entry, atomically when a database is present
func (s *BroadcastFlowImpl) scheduleRecipient(ctx context.Context, campaign *models.Campaign, owner *models.User, contact *models.Contact, runAt time.Time) error {
	recipient := &models.CampaignRecipient{
		CampaignID: campaign.ID,
		ContactID:  contact.ID,
		Email:      contact.Email,
		Phone:      contact.Phone,
		Status:     models.RecipientStatusPending,
	}

	insert := func(txCtx context.Context) error {
		if err := s.recipientRepo.Save(txCtx, recipient); err != nil {
			return fmt.Errorf("failed to create recipient: %w", err)
		}

		task := &models.DeliveryTask{
			CampaignID:  campaign.ID,
			RecipientID: recipient.ID,
			Channel:     campaign.Channel,
			Status:      models.DeliveryTaskStatusPending,
			ScheduledAt: runAt,
		}
		if err := s.taskRepo.Save(txCtx, task); err != nil {
			return fmt.Errorf("failed to create delivery task: %w", err)
		}

		desc := fmt.Sprintf("Scheduled %s delivery to contact %d at %s", campaign.Channel, contact.ID, runAt.Format(time.RFC3339))
		s.createRecipientAuditLog(txCtx, owner, recipient, desc)
		return nil
	}

	if s.db != nil {
		return repository.WithTransaction(ctx, s.db, insert)
	}
	return insert(ctx)
}

// notifyOwner re-loads the campaign and informs the owner the run finished
func (s *BroadcastFlowImpl) notifyOwner(ctx context.Context, campaignID uint, owner *models.User, scheduled int, metadata *ClientMetadata) {
	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil || campaign == nil {
		return
	}

	if s.notifier != nil {
		if err := s.notifier.CampaignCompleted(ctx, owner, campaign, scheduled); err != nil {
			log.Printf("[BroadcastFlow] Failed to notify owner of campaign %d: %v", campaign.ID, err)
			return
		}
	}

	msg := fmt.Sprintf("Owner notified that campaign %s finished broadcasting", campaign.UUID)
	s.createAuditLog(ctx, owner, campaign, models.AuditActionCampaignOwnerNotified, msg, true, nil, metadata)
}

// createAuditLog records a campaign-scoped audit entry, ignoring audit failures
func (s *BroadcastFlowImpl) createAuditLog(ctx context.Context, owner *models.User, campaign *models.Campaign, action, description string, success bool, errorMessage *string, metadata *ClientMetadata) {
	if s.auditRepo == nil {
		return
	}

	var meta json.RawMessage
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			meta = b
		}
	}

	subjectType := "campaign"
	entry := &models.AuditLog{
		UserID:       &owner.ID,
		Action:       action,
		SubjectType:  &subjectType,
		SubjectID:    &campaign.ID,
		Description:  &description,
		Metadata:     meta,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMessage,
		CreatedAt:    utils.UTCNow(),
	}
	if metadata != nil && metadata.RequestID != "" {
		entry.RequestID = &metadata.RequestID
	}

	if err := s.auditRepo.Save(ctx, entry); err != nil {
		log.Printf("[BroadcastFlow] Failed to write audit log: %v", err)
	}
}

// createRecipientAuditLog records the send-to event for one scheduled recipient
func (s *BroadcastFlowImpl) createRecipientAuditLog(ctx context.Context, owner *models.User, recipient *models.CampaignRecipient, description string) {
	if s.auditRepo == nil {
		return
	}

	subjectType := "campaign_recipient"
	entry := &models.AuditLog{
		UserID:      &owner.ID,
		Action:      models.AuditActionRecipientScheduled,
		SubjectType: &subjectType,
		SubjectID:   &recipient.ID,
		Description: &description,
		Success:     utils.ToPtr(true),
		CreatedAt:   utils.UTCNow(),
	}

	if err := s.auditRepo.Save(ctx, entry); err != nil {
		log.Printf("[BroadcastFlow] Failed to write audit log: %v", err)
	}
}
