package testing

import (
	"fmt"
	"math/rand"

	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestUser creates a tenant owner with working mail and SMS settings
func (tf *TestFixtures) CreateTestUser() (*models.User, error) {
	suffix := fmt.Sprintf("%06d", rand.Intn(900000)+100000)

	user := &models.User{
		Email:    fmt.Sprintf("owner.%s@example.com", suffix),
		Name:     "Test Owner " + suffix,
		IsActive: utils.ToPtr(true),
		MailSettings: &models.MailSettings{
			Host:       "smtp.example.com",
			Port:       587,
			Username:   "mailer",
			Password:   "secret",
			FromEmail:  fmt.Sprintf("campaigns.%s@example.com", suffix),
			FromName:   "Test Campaigns",
			Encryption: "starttls",
		},
		SMSSettings: &models.SMSSettings{
			Provider:  "testgate",
			APIKey:    "key-" + suffix,
			APISecret: "secret-" + suffix,
			SenderID:  "TESTCO",
		},
	}

	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}
	return user, nil
}

// CreateTestClient creates a client owned by the given user
func (tf *TestFixtures) CreateTestClient(userID uint) (*models.Client, error) {
	client := &models.Client{
		UserID: userID,
		Name:   fmt.Sprintf("Test Client %04d", rand.Intn(10000)),
	}
	if err := tf.DB.DB.Create(client).Error; err != nil {
		return nil, fmt.Errorf("failed to create test client: %w", err)
	}
	return client, nil
}

// CreateTestContact creates a contact under the given client with both
// channels available. Callers blank out email or phone as needed.
func (tf *TestFixtures) CreateTestContact(clientID uint) (*models.Contact, error) {
	suffix := fmt.Sprintf("%06d", rand.Intn(900000)+100000)

	contact := &models.Contact{
		ClientID:  clientID,
		FirstName: "Jane",
		LastName:  "Doe " + suffix,
		Email:     fmt.Sprintf("jane.%s@example.com", suffix),
		Phone:     fmt.Sprintf("+1415555%04d", rand.Intn(10000)),
	}
	if err := tf.DB.DB.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create test contact: %w", err)
	}
	return contact, nil
}

// CreateTestSegment creates a segment owned by the given user
func (tf *TestFixtures) CreateTestSegment(userID uint, filter models.SegmentFilter) (*models.Segment, error) {
	segment := &models.Segment{
		UserID: userID,
		Name:   fmt.Sprintf("Test Segment %04d", rand.Intn(10000)),
		Filter: filter,
	}
	if err := tf.DB.DB.Create(segment).Error; err != nil {
		return nil, fmt.Errorf("failed to create test segment: %w", err)
	}
	return segment, nil
}

// CreateTestCampaign creates a scheduled campaign on the given channel
func (tf *TestFixtures) CreateTestCampaign(userID uint, channel models.CampaignChannel) (*models.Campaign, error) {
	campaign := &models.Campaign{
		UserID:   userID,
		Channel:  channel,
		Name:     fmt.Sprintf("Test Campaign %04d", rand.Intn(10000)),
		Subject:  "Hello {first_name}",
		Content:  "<p>Hi {first_name}, check <a href=\"https://example.com/offer\">this</a>.</p>",
		Settings: models.CampaignSettings{},
		Status:   models.CampaignStatusScheduled,
	}
	if channel == models.CampaignChannelSMS {
		campaign.Subject = ""
		campaign.Content = "Hi {first_name}, big news."
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// CreateTestRecipient creates a pending recipient row snapshotting the
// contact's current email and phone
func (tf *TestFixtures) CreateTestRecipient(campaign *models.Campaign, contact *models.Contact) (*models.CampaignRecipient, error) {
	recipient := &models.CampaignRecipient{
		CampaignID: campaign.ID,
		ContactID:  contact.ID,
		Email:      contact.Email,
		Phone:      contact.Phone,
		Status:     models.RecipientStatusPending,
		Metadata:   models.RecipientMetadata{},
	}
	if err := tf.DB.DB.Create(recipient).Error; err != nil {
		return nil, fmt.Errorf("failed to create test recipient: %w", err)
	}
	return recipient, nil
}

// CreateTestDeliveryTask creates a pending delivery task due at the given time
func (tf *TestFixtures) CreateTestDeliveryTask(recipient *models.CampaignRecipient, channel models.CampaignChannel) (*models.DeliveryTask, error) {
	task := &models.DeliveryTask{
		CampaignID:  recipient.CampaignID,
		RecipientID: recipient.ID,
		Channel:     channel,
		Status:      models.DeliveryTaskStatusPending,
		ScheduledAt: utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(task).Error; err != nil {
		return nil, fmt.Errorf("failed to create test delivery task: %w", err)
	}
	return task, nil
}
