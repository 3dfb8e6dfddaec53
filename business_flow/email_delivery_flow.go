package businessflow

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/calyxsuite/outreach/app/services"
	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/repository"
	"github.com/calyxsuite/outreach/utils"
)

// DefaultEmailSubject is used when a campaign's rendered subject is empty
const DefaultEmailSubject = "Campaign"

// hrefPattern matches every href attribute value, single or double quoted,
// case-insensitively. The quote style is preserved on rewrite.
var hrefPattern = regexp.MustCompile(`(?i)(href\s*=\s*)("([^"]*)"|'([^']*)')`)

// DeliveryFlow executes one scheduled delivery for one recipient
type DeliveryFlow interface {
	Deliver(ctx context.Context, recipientID uint) error
}

// EmailDeliveryFlowImpl implements the email delivery executor. Send errors
// propagate to the caller so the task runner can retry.
type EmailDeliveryFlowImpl struct {
	recipientRepo  repository.RecipientRepository
	auditRepo      repository.AuditLogRepository
	renderer       services.Renderer
	tracking       services.TrackingTokenService
	mailer         services.Mailer
	unsubscribeTTL time.Duration
}

// NewEmailDeliveryFlow creates a new email delivery flow instance
func NewEmailDeliveryFlow(
	recipientRepo repository.RecipientRepository,
	auditRepo repository.AuditLogRepository,
	renderer services.Renderer,
	tracking services.TrackingTokenService,
	mailer services.Mailer,
	unsubscribeTTL time.Duration,
) DeliveryFlow {
	return &EmailDeliveryFlowImpl{
		recipientRepo:  recipientRepo,
		auditRepo:      auditRepo,
		renderer:       renderer,
		tracking:       tracking,
		mailer:         mailer,
		unsubscribeTTL: unsubscribeTTL,
	}
}

// Deliver renders, instruments, and sends one campaign email. A missing
// recipient, campaign, owner, or contact, or an empty stored email, means
// there is nothing to do; that is not a failure.
func (s *EmailDeliveryFlowImpl) Deliver(ctx context.Context, recipientID uint) error {
	recipient, err := s.recipientRepo.ByIDWithRelations(ctx, recipientID)
	if err != nil {
		return NewBusinessError("RECIPIENT_LOOKUP_FAILED", "Failed to lookup recipient", err)
	}
	if recipient == nil || recipient.Campaign == nil || recipient.Campaign.User == nil || recipient.Contact == nil {
		return nil
	}
	if recipient.Email == "" {
		return nil
	}

	campaign := recipient.Campaign
	owner := campaign.User
	contact := recipient.Contact

	subject := strings.TrimSpace(s.renderer.Render(campaign.Subject, contact))
	if subject == "" {
		subject = DefaultEmailSubject
	}
	body := s.renderer.Render(campaign.Content, contact)

	body, err = s.rewriteLinks(body, recipient.ID)
	if err != nil {
		return NewBusinessError("LINK_REWRITE_FAILED", "Failed to rewrite tracking links", err)
	}

	body, err = s.appendTrackingFooter(body, recipient.ID, contact.ID)
	if err != nil {
		return NewBusinessError("TRACKING_FOOTER_FAILED", "Failed to build tracking footer", err)
	}

	if owner.MailSettings == nil {
		return NewBusinessError("MAIL_SETTINGS_MISSING", "Campaign owner has no mail settings", ErrMailSettingsMissing)
	}

	if err := s.mailer.Send(ctx, *owner.MailSettings, recipient.Email, subject, body); err != nil {
		errMsg := fmt.Sprintf("Email delivery to recipient %d failed: %s", recipient.ID, err.Error())
		s.createDeliveryAuditLog(ctx, owner.ID, recipient.ID, models.AuditActionDeliveryFailed, errMsg, false, &errMsg)
		return err
	}

	recipient.MarkSent()
	if err := s.recipientRepo.Update(ctx, recipient); err != nil {
		return NewBusinessError("RECIPIENT_UPDATE_FAILED", "Failed to mark recipient as sent", err)
	}

	msg := fmt.Sprintf("Email delivered to recipient %d (%s)", recipient.ID, recipient.Email)
	s.createDeliveryAuditLog(ctx, owner.ID, recipient.ID, models.AuditActionDeliverySent, msg, true, nil)

	return nil
}

// rewriteLinks replaces every href destination in the body with a
// click-tracking redirect that carries the original destination URL-encoded.
// Markup around the attribute, including the quote style, is preserved.
func (s *EmailDeliveryFlowImpl) rewriteLinks(body string, recipientID uint) (string, error) {
	var rewriteErr error

	rewritten := hrefPattern.ReplaceAllStringFunc(body, func(match string) string {
		groups := hrefPattern.FindStringSubmatch(match)
		if groups == nil {
			return match
		}

		prefix := groups[1]
		quote := `"`
		destination := groups[3]
		if strings.HasPrefix(groups[2], "'") {
			quote = "'"
			destination = groups[4]
		}

		clickURL, err := s.tracking.ClickURL(recipientID, destination)
		if err != nil {
			if rewriteErr == nil {
				rewriteErr = err
			}
			return match
		}

		return prefix + quote + clickURL + quote
	})

	if rewriteErr != nil {
		return "", rewriteErr
	}
	return rewritten, nil
}

// appendTrackingFooter adds the unsubscribe link and the open pixel
func (s *EmailDeliveryFlowImpl) appendTrackingFooter(body string, recipientID, contactID uint) (string, error) {
	unsubscribeURL, err := s.tracking.SignedUnsubscribeURL(contactID, s.unsubscribeTTL)
	if err != nil {
		return "", err
	}
	pixelURL, err := s.tracking.OpenPixelURL(recipientID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(body)
	b.WriteString(fmt.Sprintf(`<p style="font-size:12px;color:#888;"><a href=%q>Unsubscribe</a></p>`, unsubscribeURL))
	b.WriteString(fmt.Sprintf(`<img src=%q width="1" height="1" alt="" style="display:none;"/>`, pixelURL))

	return b.String(), nil
}

// createDeliveryAuditLog records a delivery-level audit entry, ignoring audit failures
func (s *EmailDeliveryFlowImpl) createDeliveryAuditLog(ctx context.Context, userID, recipientID uint, action, description string, success bool, errorMessage *string) {
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
		log.Printf("[EmailDeliveryFlow] Failed to write audit log: %v", err)
	}
}
