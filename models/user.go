// Package models contains domain entities and business models for the broadcast engine
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

// MailSettings holds the tenant-specific outbound mail transport configuration.
// Stored as jsonb on the user row; required fields are validated when the
// transport is resolved, not at persistence time.
type MailSettings struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	FromEmail  string `json:"from_email"`
	FromName   string `json:"from_name,omitempty"`
	Encryption string `json:"encryption,omitempty"` // none, tls, starttls
}

// Validate checks the fields required to open an SMTP transport.
func (m MailSettings) Validate() error {
	if m.Host == "" {
		return fmt.Errorf("mail settings: host is required")
	}
	if m.Port <= 0 || m.Port > 65535 {
		return fmt.Errorf("mail settings: invalid port %d", m.Port)
	}
	if m.FromEmail == "" {
		return fmt.Errorf("mail settings: from_email is required")
	}
	return nil
}

// Value implements the driver.Valuer interface for MailSettings
func (m MailSettings) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for MailSettings
func (m *MailSettings) Scan(value any) error {
	if value == nil {
		*m = MailSettings{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MailSettings", value)
	}

	return json.Unmarshal(bytes, m)
}

// SMSSettings holds the tenant-specific SMS provider configuration.
type SMSSettings struct {
	Provider  string `json:"provider"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret,omitempty"`
	SenderID  string `json:"sender_id"`
	BaseURL   string `json:"base_url,omitempty"`
}

// Validate checks the fields required to call the SMS provider.
func (s SMSSettings) Validate() error {
	if s.Provider == "" {
		return fmt.Errorf("sms settings: provider is required")
	}
	if s.APIKey == "" {
		return fmt.Errorf("sms settings: api_key is required")
	}
	if s.SenderID == "" {
		return fmt.Errorf("sms settings: sender_id is required")
	}
	return nil
}

// Value implements the driver.Valuer interface for SMSSettings
func (s SMSSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for SMSSettings
func (s *SMSSettings) Scan(value any) error {
	if value == nil {
		*s = SMSSettings{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SMSSettings", value)
	}

	return json.Unmarshal(bytes, s)
}

// User represents a tenant owner in the database
type User struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:uk_users_uuid" json:"uuid"`
	Email        string        `gorm:"size:255;not null;uniqueIndex:uk_users_email" json:"email"`
	Name         string        `gorm:"size:255;not null" json:"name"`
	IsActive     *bool         `gorm:"default:true;index:idx_users_is_active" json:"is_active"`
	MailSettings *MailSettings `gorm:"type:jsonb" json:"mail_settings,omitempty"`
	SMSSettings  *SMSSettings  `gorm:"type:jsonb" json:"sms_settings,omitempty"`
	CreatedAt    time.Time     `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_users_created_at" json:"created_at"`
	UpdatedAt    *time.Time    `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (User) TableName() string {
	return "users"
}

// BeforeCreate is called before creating a new record
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == uuid.Nil {
		u.UUID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = utils.UTCNow()
	}
	return nil
}

// UserFilter represents filter criteria for user queries
type UserFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	Email         *string
	IsActive      *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
