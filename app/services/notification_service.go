package services

import (
	"context"
	"fmt"
	"log"

	"github.com/calyxsuite/outreach/models"
)

// Notifier informs a tenant owner about campaign lifecycle events
type Notifier interface {
	CampaignCompleted(ctx context.Context, user *models.User, campaign *models.Campaign, scheduled int) error
}

// NotifierImpl implements Notifier by emailing the owner over their own
// transport, falling back to a log line when no transport is configured
type NotifierImpl struct {
	mailer Mailer
}

// NewNotifier creates a new notifier instance
func NewNotifier(mailer Mailer) Notifier {
	return &NotifierImpl{mailer: mailer}
}

// CampaignCompleted notifies the owner that every recipient of a campaign has
// been scheduled for delivery
func (n *NotifierImpl) CampaignCompleted(ctx context.Context, user *models.User, campaign *models.Campaign, scheduled int) error {
	if user == nil || campaign == nil {
		return fmt.Errorf("user and campaign are required")
	}

	if n.mailer == nil || user.MailSettings == nil || user.MailSettings.Validate() != nil {
		log.Printf("[Notifier] Campaign %s completed for user %d: %d recipients scheduled", campaign.UUID, user.ID, scheduled)
		return nil
	}

	subject := fmt.Sprintf("Campaign %q has been sent", campaign.Name)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your campaign <strong>%s</strong> has finished broadcasting. %d recipients were scheduled for delivery.</p>",
		user.Name, campaign.Name, scheduled,
	)

	return n.mailer.Send(ctx, *user.MailSettings, user.Email, subject, body)
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	Completed []MockCompletionNotice
	NotifyErr error
}

// MockCompletionNotice records one CampaignCompleted call
type MockCompletionNotice struct {
	UserID     uint
	CampaignID uint
	Scheduled  int
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Completed: make([]MockCompletionNotice, 0)}
}

// CampaignCompleted records the notification instead of sending it
func (m *MockNotifier) CampaignCompleted(ctx context.Context, user *models.User, campaign *models.Campaign, scheduled int) error {
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.Completed = append(m.Completed, MockCompletionNotice{
		UserID:     user.ID,
		CampaignID: campaign.ID,
		Scheduled:  scheduled,
	})
	return nil
}
