package businessflow

import (
	"context"
	"errors"
	"testing"

	"github.com/calyxsuite/outreach/app/services"
	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type smsDeliveryFixture struct {
	recips *fakeRecipientRepo
	audit  *fakeAuditRepo
	sender *services.MockSMSSender
	flow   DeliveryFlow
}

func newSMSDeliveryFixture(content string) *smsDeliveryFixture {
	owner := &models.User{
		ID:       10,
		Email:    "owner@example.com",
		IsActive: utils.ToPtr(true),
		SMSSettings: &models.SMSSettings{
			Provider: "testgate",
			APIKey:   "key",
			SenderID: "TESTCO",
		},
	}
	campaign := &models.Campaign{
		ID:      1,
		UserID:  owner.ID,
		Channel: models.CampaignChannelSMS,
		Content: content,
		Status:  models.CampaignStatusSending,
		User:    owner,
	}
	contact := &models.Contact{ID: 5, FirstName: "Jane", Phone: "+14155550100"}
	recipient := &models.CampaignRecipient{
		ID:         42,
		CampaignID: campaign.ID,
		ContactID:  contact.ID,
		Phone:      contact.Phone,
		Status:     models.RecipientStatusPending,
		Campaign:   campaign,
		Contact:    contact,
	}

	f := &smsDeliveryFixture{
		recips: newFakeRecipientRepo(recipient),
		audit:  newFakeAuditRepo(),
		sender: services.NewMockSMSSender(),
	}
	f.flow = NewSMSDeliveryFlow(f.recips, f.audit, services.NewRenderer(), f.sender)
	return f
}

func TestSMSDeliverAppendsComplianceSuffix(t *testing.T) {
	f := newSMSDeliveryFixture("Hi {first_name}, big news!  ")

	err := f.flow.Deliver(context.Background(), 42)
	require.NoError(t, err)

	require.Len(t, f.sender.SentMessages, 1)
	sent := f.sender.SentMessages[0]
	assert.Equal(t, "+14155550100", sent.Phone)
	assert.Equal(t, "Hi Jane, big news! Reply STOP to unsubscribe", sent.Message)
}

func TestSMSDeliverRecordsProviderMetadata(t *testing.T) {
	f := newSMSDeliveryFixture("Hi")
	f.sender.NextResult = &services.SMSResult{MessageID: "msg-123", Provider: "testgate"}

	err := f.flow.Deliver(context.Background(), 42)
	require.NoError(t, err)

	rec, _ := f.recips.ByID(context.Background(), 42)
	assert.Equal(t, models.RecipientStatusSent, rec.Status)
	assert.NotNil(t, rec.SentAt)
	assert.Equal(t, "msg-123", rec.Metadata["message_id"])
	assert.Equal(t, "testgate", rec.Metadata["provider"])
	assert.Equal(t, 1, f.audit.countByAction(models.AuditActionDeliverySent))
}

func TestSMSDeliverSwallowsSendErrors(t *testing.T) {
	f := newSMSDeliveryFixture("Hi")
	f.sender.SendErr = errors.New("gateway timeout")

	// The error is recorded, never propagated, so the task is not retried
	err := f.flow.Deliver(context.Background(), 42)
	require.NoError(t, err)

	rec, _ := f.recips.ByID(context.Background(), 42)
	assert.Equal(t, models.RecipientStatusFailed, rec.Status)
	assert.NotNil(t, rec.FailedAt)
	require.NotNil(t, rec.FailureReason)
	assert.Equal(t, "gateway timeout", *rec.FailureReason)
	assert.Equal(t, 1, f.audit.countByAction(models.AuditActionDeliveryFailed))
}

func TestSMSDeliverMissingRecipientIsNoop(t *testing.T) {
	f := newSMSDeliveryFixture("Hi")

	err := f.flow.Deliver(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, f.sender.SentMessages)
}

func TestSMSDeliverEmptyPhoneIsNoop(t *testing.T) {
	f := newSMSDeliveryFixture("Hi")
	rec, _ := f.recips.ByID(context.Background(), 42)
	rec.Phone = ""

	err := f.flow.Deliver(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, f.sender.SentMessages)

	rec, _ = f.recips.ByID(context.Background(), 42)
	assert.Equal(t, models.RecipientStatusPending, rec.Status)
}
