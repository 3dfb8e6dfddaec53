package models

import (
	"time"

	"github.com/calyxsuite/outreach/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client represents a business client owned by a tenant; contacts hang off clients
type Client struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_clients_uuid" json:"uuid"`
	UserID    uint       `gorm:"not null;index:idx_clients_user_id" json:"user_id"`
	Name      string     `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	User     *User     `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Contacts []Contact `gorm:"foreignKey:ClientID" json:"contacts,omitempty"`
}

// TableName returns the table name for the model
func (Client) TableName() string {
	return "clients"
}

// BeforeCreate is called before creating a new record
func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// ClientFilter represents filter criteria for client queries
type ClientFilter struct {
	ID     *uint
	UUID   *uuid.UUID
	UserID *uint
	Name   *string
}
