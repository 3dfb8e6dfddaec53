package businessflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/calyxsuite/outreach/app/services"
	"github.com/calyxsuite/outreach/config"
	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emailDeliveryFixture struct {
	recips   *fakeRecipientRepo
	audit    *fakeAuditRepo
	mailer   *services.MockMailer
	tracking services.TrackingTokenService
	flow     DeliveryFlow
}

func newEmailDeliveryFixture(t *testing.T, content, subject string) *emailDeliveryFixture {
	t.Helper()

	tracking, err := services.NewTrackingTokenService(&config.TrackingConfig{
		SecretKey:     "test-tracking-secret-key-32-chars!!",
		PublicBaseURL: "https://track.example.com",
		Issuer:        "outreach-test",
	})
	require.NoError(t, err)

	owner := &models.User{
		ID:       10,
		Email:    "owner@example.com",
		IsActive: utils.ToPtr(true),
		MailSettings: &models.MailSettings{
			Host:      "smtp.example.com",
			Port:      587,
			FromEmail: "campaigns@example.com",
			FromName:  "Campaigns",
		},
	}
	campaign := &models.Campaign{
		ID:      1,
		UserID:  owner.ID,
		Channel: models.CampaignChannelEmail,
		Subject: subject,
		Content: content,
		Status:  models.CampaignStatusSending,
		User:    owner,
	}
	contact := &models.Contact{ID: 5, FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"}
	recipient := &models.CampaignRecipient{
		ID:         42,
		CampaignID: campaign.ID,
		ContactID:  contact.ID,
		Email:      contact.Email,
		Status:     models.RecipientStatusPending,
		Campaign:   campaign,
		Contact:    contact,
	}

	f := &emailDeliveryFixture{
		recips:   newFakeRecipientRepo(recipient),
		audit:    newFakeAuditRepo(),
		mailer:   services.NewMockMailer(),
		tracking: tracking,
	}
	f.flow = NewEmailDeliveryFlow(f.recips, f.audit, services.NewRenderer(), tracking, f.mailer, 30*24*time.Hour)
	return f
}

func (f *emailDeliveryFixture) sentBody(t *testing.T) string {
	t.Helper()
	require.Len(t, f.mailer.SentMessages, 1)
	return f.mailer.SentMessages[0].HTML
}

func TestEmailDeliverRewritesLinks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		links   int
	}{
		{
			name:    "no links",
			content: "<p>Hello {first_name}</p>",
			links:   0,
		},
		{
			name:    "one link",
			content: `<p>See <a href="https://example.com/offer?a=1&b=2">the offer</a></p>`,
			links:   1,
		},
		{
			name: "five links with mixed quoting and casing",
			content: `<a href="https://example.com/1">1</a>` +
				`<a href='https://example.com/2'>2</a>` +
				`<a HREF="https://example.com/3">3</a>` +
				`<a Href = "https://example.com/4">4</a>` +
				`<a href='https://example.com/5?x=y&z=w'>5</a>`,
			links: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEmailDeliveryFixture(t, tt.content, "Offer")

			err := f.flow.Deliver(context.Background(), 42)
			require.NoError(t, err)

			body := f.sentBody(t)
			assert.Equal(t, tt.links, strings.Count(body, "/t/click/"))
			assert.NotContains(t, body, `href="https://example.com`)
			assert.NotContains(t, body, `href='https://example.com`)
		})
	}
}

func TestEmailDeliverClickURLCarriesDestination(t *testing.T) {
	destination := "https://example.com/offer?a=1&b=2"
	f := newEmailDeliveryFixture(t, fmt.Sprintf(`<a href="%s">go</a>`, destination), "Offer")

	err := f.flow.Deliver(context.Background(), 42)
	require.NoError(t, err)

	body := f.sentBody(t)
	assert.Contains(t, body, "url="+url.QueryEscape(destination))

	// The embedded token decodes back to the recipient that was emailed
	start := strings.Index(body, "/t/click/") + len("/t/click/")
	end := strings.Index(body[start:], "?")
	require.Greater(t, end, 0)
	id, err := f.tracking.Decode(body[start : start+end])
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestEmailDeliverPreservesQuoteStyle(t *testing.T) {
	f := newEmailDeliveryFixture(t, `<a href='https://example.com/offer'>go</a>`, "Offer")

	err := f.flow.Deliver(context.Background(), 42)
	require.NoError(t, err)

	body := f.sentBody(t)
	assert.Contains(t, body, "href='https://track.example.com/t/click/")
}

func TestEmailDeliverAppendsTrackingFooter(t *testing.T) {
	f := newEmailDeliveryFixture(t, "<p>No links here</p>", "Offer")

	err := f.flow.Deliver(context.Background(), 42)
	require.NoError(t, err)

	body := f.sentBody(t)
	assert.Contains(t, body, "https://track.example.com/u/")
	assert.Contains(t, body, ">Unsubscribe</a>")
	assert.Contains(t, body, "https://track.example.com/t/open/")
	assert.Contains(t, body, `width="1" height="1"`)
}

func TestEmailDeliverSubjectFallback(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{name: "empty subject", subject: "", want: "Campaign"},
		{name: "whitespace subject", subject: "   ", want: "Campaign"},
		{name: "rendered subject", subject: "Hi {first_name}", want: "Hi Jane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEmailDeliveryFixture(t, "<p>Body</p>", tt.subject)

			err := f.flow.Deliver(context.Background(), 42)
			require.NoError(t, err)

			require.Len(t, f.mailer.SentMessages, 1)
			assert.Equal(t, tt.want, f.mailer.SentMessages[0].Subject)
		})
	}
}

func TestEmailDeliverSendErrorPropagates(t *testing.T) {
	f := newEmailDeliveryFixture(t, "<p>Body</p>", "Offer")
	f.mailer.SendErr = errors.New("smtp 550 mailbox unavailable")

	err := f.flow.Deliver(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp 550")

	// The recipient stays pending so the task runner can retry
	rec, _ := f.recips.ByID(context.Background(), 42)
	assert.Equal(t, models.RecipientStatusPending, rec.Status)
	assert.Equal(t, 1, f.audit.countByAction(models.AuditActionDeliveryFailed))
}

func TestEmailDeliverMarksSent(t *testing.T) {
	f := newEmailDeliveryFixture(t, "<p>Body</p>", "Offer")

	err := f.flow.Deliver(context.Background(), 42)
	require.NoError(t, err)

	rec, _ := f.recips.ByID(context.Background(), 42)
	assert.Equal(t, models.RecipientStatusSent, rec.Status)
	assert.NotNil(t, rec.SentAt)
	assert.Equal(t, 1, f.audit.countByAction(models.AuditActionDeliverySent))
}

func TestEmailDeliverMissingRecipientIsNoop(t *testing.T) {
	f := newEmailDeliveryFixture(t, "<p>Body</p>", "Offer")

	err := f.flow.Deliver(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, f.mailer.SentMessages)
}

func TestEmailDeliverEmptyEmailIsNoop(t *testing.T) {
	f := newEmailDeliveryFixture(t, "<p>Body</p>", "Offer")
	rec, _ := f.recips.ByID(context.Background(), 42)
	rec.Email = ""

	err := f.flow.Deliver(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, f.mailer.SentMessages)
}

func TestEmailDeliverRequiresMailSettings(t *testing.T) {
	f := newEmailDeliveryFixture(t, "<p>Body</p>", "Offer")
	rec, _ := f.recips.ByID(context.Background(), 42)
	rec.Campaign.User.MailSettings = nil

	err := f.flow.Deliver(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMailSettingsMissing))
	assert.Empty(t, f.mailer.SentMessages)
}
