package models

import (
	"time"

	"github.com/calyxsuite/outreach/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contact represents a person reachable by campaigns. The broadcast engine
// treats contacts as read-only; consent markers gate channel eligibility.
type Contact struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UUID                uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_contacts_uuid" json:"uuid"`
	ClientID            uint       `gorm:"not null;index:idx_contacts_client_id" json:"client_id"`
	FirstName           string     `gorm:"size:255" json:"first_name"`
	LastName            string     `gorm:"size:255" json:"last_name"`
	Email               string     `gorm:"size:255;index:idx_contacts_email" json:"email"`
	Phone               string     `gorm:"size:20;index:idx_contacts_phone" json:"phone"`
	EmailUnsubscribedAt *time.Time `gorm:"index:idx_contacts_email_unsubscribed_at" json:"email_unsubscribed_at,omitempty"`
	SMSOptedOutAt       *time.Time `gorm:"index:idx_contacts_sms_opted_out_at" json:"sms_opted_out_at,omitempty"`
	CreatedAt           time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_contacts_created_at" json:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`

	// Relations
	Client *Client `gorm:"foreignKey:ClientID;references:ID" json:"client,omitempty"`
}

// TableName returns the table name for the model
func (Contact) TableName() string {
	return "contacts"
}

// BeforeCreate is called before creating a new record
func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// FullName returns the contact's display name
func (c *Contact) FullName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.LastName
	}
}

// CanReceiveEmail reports whether the contact is eligible for the email channel
func (c *Contact) CanReceiveEmail() bool {
	return c.Email != "" && c.EmailUnsubscribedAt == nil
}

// CanReceiveSMS reports whether the contact is eligible for the SMS channel.
// Phone format is validated again at scheduling time (E.164).
func (c *Contact) CanReceiveSMS() bool {
	return c.Phone != "" && c.SMSOptedOutAt == nil
}

// HasValidPhone reports whether the stored phone is a well-formed E.164 number
func (c *Contact) HasValidPhone() bool {
	return utils.IsValidE164(c.Phone)
}

// ContactFilter represents filter criteria for contact queries
type ContactFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	ClientID      *uint
	Email         *string
	Phone         *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
