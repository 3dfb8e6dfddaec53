package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calyxsuite/outreach/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecipientStatus represents the delivery status of a campaign recipient
type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "pending"
	RecipientStatusSent      RecipientStatus = "sent"
	RecipientStatusDelivered RecipientStatus = "delivered"
	RecipientStatusOpened    RecipientStatus = "opened"
	RecipientStatusClicked   RecipientStatus = "clicked"
	RecipientStatusBounced   RecipientStatus = "bounced"
	RecipientStatusFailed    RecipientStatus = "failed"
)

// String returns the string representation of the status
func (s RecipientStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s RecipientStatus) Valid() bool {
	switch s {
	case RecipientStatusPending, RecipientStatusSent, RecipientStatusDelivered,
		RecipientStatusOpened, RecipientStatusClicked, RecipientStatusBounced,
		RecipientStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for RecipientStatus
func (s *RecipientStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = RecipientStatus(v)
	case []byte:
		*s = RecipientStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RecipientStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for RecipientStatus
func (s RecipientStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid RecipientStatus: %s", s)
	}
	return string(s), nil
}

// RecipientMetadata carries channel-specific delivery details, e.g. the
// provider message id for SMS sends.
type RecipientMetadata map[string]any

// Value implements the driver.Valuer interface for RecipientMetadata
func (m RecipientMetadata) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(RecipientMetadata{})
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for RecipientMetadata
func (m *RecipientMetadata) Scan(value any) error {
	if value == nil {
		*m = RecipientMetadata{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into RecipientMetadata", value)
	}

	return json.Unmarshal(bytes, m)
}

// CampaignRecipient is the per-contact delivery record and status tracker for
// one campaign. Email and phone are snapshots taken when the row is created,
// deliberately decoupled from later contact edits. The unique index on
// (campaign_id, contact_id) backstops duplicate broadcast triggers.
type CampaignRecipient struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uk_campaign_recipients_uuid" json:"uuid"`
	CampaignID    uint              `gorm:"not null;uniqueIndex:uk_campaign_recipients_campaign_contact;index:idx_campaign_recipients_campaign_id" json:"campaign_id"`
	ContactID     uint              `gorm:"not null;uniqueIndex:uk_campaign_recipients_campaign_contact;index:idx_campaign_recipients_contact_id" json:"contact_id"`
	Email         string            `gorm:"size:255" json:"email"`
	Phone         string            `gorm:"size:20" json:"phone"`
	Status        RecipientStatus   `gorm:"type:recipient_status;not null;default:'pending';index:idx_campaign_recipients_status" json:"status"`
	SentAt        *time.Time        `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time        `json:"delivered_at,omitempty"`
	OpenedAt      *time.Time        `json:"opened_at,omitempty"`
	ClickedAt     *time.Time        `json:"clicked_at,omitempty"`
	BouncedAt     *time.Time        `json:"bounced_at,omitempty"`
	FailedAt      *time.Time        `json:"failed_at,omitempty"`
	FailureReason *string           `gorm:"type:text" json:"failure_reason,omitempty"`
	Metadata      RecipientMetadata `gorm:"type:jsonb;not null" json:"metadata"`
	CreatedAt     time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaign_recipients_created_at" json:"created_at"`
	UpdatedAt     *time.Time        `json:"updated_at,omitempty"`

	// Relations
	Campaign *Campaign `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
	Contact  *Contact  `gorm:"foreignKey:ContactID;references:ID" json:"contact,omitempty"`
}

// TableName returns the table name for the model
func (CampaignRecipient) TableName() string {
	return "campaign_recipients"
}

// BeforeCreate is called before creating a new record
func (r *CampaignRecipient) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RecipientStatusPending
	}
	if r.Metadata == nil {
		r.Metadata = RecipientMetadata{}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (r *CampaignRecipient) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	r.UpdatedAt = &now
	return nil
}

// MarkSent records a successful send
func (r *CampaignRecipient) MarkSent() {
	r.Status = RecipientStatusSent
	r.SentAt = utils.UTCNowPtr()
}

// MarkFailed records a terminal delivery failure with its reason
func (r *CampaignRecipient) MarkFailed(reason string) {
	r.Status = RecipientStatusFailed
	r.FailedAt = utils.UTCNowPtr()
	r.FailureReason = &reason
}

// RecipientFilter represents filter criteria for campaign recipient queries
type RecipientFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	CampaignID    *uint
	ContactID     *uint
	Status        *RecipientStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
