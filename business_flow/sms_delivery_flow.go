package businessflow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/calyxsuite/outreach/app/services"
	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/repository"
	"github.com/calyxsuite/outreach/utils"
)

// SMSComplianceSuffix is appended to every outbound SMS
const SMSComplianceSuffix = "Reply STOP to unsubscribe"

// SMSDeliveryFlowImpl implements the SMS delivery executor. Unlike the email
// executor, every send failure is terminal: it is recorded on the recipient as
// status failed with a reason and never propagated, so the task runner does
// not retry.
type SMSDeliveryFlowImpl struct {
	recipientRepo repository.RecipientRepository
	auditRepo     repository.AuditLogRepository
	renderer      services.Renderer
	sender        services.SMSSender
}

// NewSMSDeliveryFlow creates a new SMS delivery flow instance
func NewSMSDeliveryFlow(
	recipientRepo repository.RecipientRepository,
	auditRepo repository.AuditLogRepository,
	renderer services.Renderer,
	sender services.SMSSender,
) DeliveryFlow {
	return &SMSDeliveryFlowImpl{
		recipientRepo: recipientRepo,
		auditRepo:     auditRepo,
		renderer:      renderer,
		sender:        sender,
	}
}

// Deliver renders and sends one campaign SMS. A missing recipient, campaign,
// owner, or contact, or an empty stored phone, means there is nothing to do.
func (s *SMSDeliveryFlowImpl) Deliver(ctx context.Context, recipientID uint) error {
	recipient, err := s.recipientRepo.ByIDWithRelations(ctx, recipientID)
	if err != nil {
		return NewBusinessError("RECIPIENT_LOOKUP_FAILED", "Failed to lookup recipient", err)
	}
	if recipient == nil || recipient.Campaign == nil || recipient.Campaign.User == nil || recipient.Contact == nil {
		return nil
	}
	if recipient.Phone == "" {
		return nil
	}

	campaign := recipient.Campaign
	owner := campaign.User

	message := strings.TrimSpace(s.renderer.Render(campaign.Content, recipient.Contact))
	message = message + " " + SMSComplianceSuffix

	var settings models.SMSSettings
	if owner.SMSSettings != nil {
		settings = *owner.SMSSettings
	}

	result, err := s.sender.Send(ctx, settings, recipient.Phone, message)
	if err != nil {
		s.recordFailure(ctx, owner.ID, recipient, err)
		return nil
	}

	recipient.MarkSent()
	if recipient.Metadata == nil {
		recipient.Metadata = models.RecipientMetadata{}
	}
	recipient.Metadata["message_id"] = result.MessageID
	recipient.Metadata["provider"] = result.Provider

	if err := s.recipientRepo.Update(ctx, recipient); err != nil {
		return NewBusinessError("RECIPIENT_UPDATE_FAILED", "Failed to mark recipient as sent", err)
	}

	msg := fmt.Sprintf("SMS delivered to recipient %d (%s) via %s", recipient.ID, recipient.Phone, result.Provider)
	s.createDeliveryAuditLog(ctx, owner.ID, recipient.ID, models.AuditActionDeliverySent, msg, true, nil)

	return nil
}

// recordFailure marks the recipient failed with the send error's message
func (s *SMSDeliveryFlowImpl) recordFailure(ctx context.Context, userID uint, recipient *models.CampaignRecipient, sendErr error) {
	recipient.MarkFailed(sendErr.Error())

	if err := s.recipientRepo.Update(ctx, recipient); err != nil {
		log.Printf("[SMSDeliveryFlow] Failed to record failure for recipient %d: %v", recipient.ID, err)
	}

	errMsg := fmt.Sprintf("SMS delivery to recipient %d failed: %s", recipient.ID, sendErr.Error())
	s.createDeliveryAuditLog(ctx, userID, recipient.ID, models.AuditActionDeliveryFailed, errMsg, false, &errMsg)
}

// createDeliveryAuditLog records a delivery-level audit entry, ignoring audit failures
func (s *SMSDeliveryFlowImpl) createDeliveryAuditLog(ctx context.Context, userID, recipientID uint, action, description string, success bool, errorMessage *string) {
	if s.auditRepo == nil {
		return
	}

	subjectType := "campaign_recipient"
	entry := &models.AuditLog{
		UserID:       &userID,
		Action:       action,
		SubjectType:  &subjectType,
		SubjectID:    &recipientID,
		Description:  &description,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMessage,
		CreatedAt:    utils.UTCNow(),
	}

	if err := s.auditRepo.Save(ctx, entry); err != nil {
		log.Printf("[SMSDeliveryFlow] Failed to write audit log: %v", err)
	}
}
