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

// CampaignChannel represents the delivery channel of a campaign
type CampaignChannel string

const (
	CampaignChannelEmail CampaignChannel = "email"
	CampaignChannelSMS   CampaignChannel = "sms"
)

// String returns the string representation of the channel
func (c CampaignChannel) String() string {
	return string(c)
}

// Valid checks if the channel is valid
func (c CampaignChannel) Valid() bool {
	return c == CampaignChannelEmail || c == CampaignChannelSMS
}

// Scan implements the sql.Scanner interface for CampaignChannel
func (c *CampaignChannel) Scan(value any) error {
	if value == nil {
		*c = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*c = CampaignChannel(v)
	case []byte:
		*c = CampaignChannel(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignChannel", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignChannel
func (c CampaignChannel) Value() (driver.Value, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid CampaignChannel: %s", c)
	}
	return string(c), nil
}

// CampaignStatus represents the status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusSent      CampaignStatus = "sent"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled,
		CampaignStatusSending, CampaignStatusSent:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// CampaignSettings holds per-campaign tunables. Stored as jsonb, so numeric
// values may round-trip as float64 or string; the throttle scheduler performs
// the tolerant conversion.
type CampaignSettings map[string]any

// SettingThrottleRatePerMinute is the settings key for the target throughput cap
const SettingThrottleRatePerMinute = "throttle_rate_per_minute"

// ThrottleRate returns the raw configured throttle rate, which may be of any
// JSON scalar type, or nil when unset.
func (s CampaignSettings) ThrottleRate() any {
	if s == nil {
		return nil
	}
	return s[SettingThrottleRatePerMinute]
}

// Value implements the driver.Valuer interface for CampaignSettings
func (s CampaignSettings) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal(CampaignSettings{})
	}
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for CampaignSettings
func (s *CampaignSettings) Scan(value any) error {
	if value == nil {
		*s = CampaignSettings{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignSettings", value)
	}

	return json.Unmarshal(bytes, s)
}

// Campaign represents a single broadcast unit of content targeted at an
// audience over one channel. Mutated only by the broadcast coordinator once a
// run begins.
type Campaign struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	UserID      uint             `gorm:"not null;index:idx_campaigns_user_id" json:"user_id"`
	SegmentID   *uint            `gorm:"index:idx_campaigns_segment_id" json:"segment_id,omitempty"`
	Channel     CampaignChannel  `gorm:"type:campaign_channel;not null;index:idx_campaigns_channel" json:"channel"`
	Name        string           `gorm:"size:255;not null" json:"name"`
	Subject     string           `gorm:"size:998" json:"subject"`
	Content     string           `gorm:"type:text;not null" json:"content"`
	Settings    CampaignSettings `gorm:"type:jsonb;not null" json:"settings"`
	Status      CampaignStatus   `gorm:"type:campaign_status;not null;default:'draft';index:idx_campaigns_status" json:"status"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt   *time.Time       `json:"updated_at,omitempty"`

	// Relations
	User    *User    `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Segment *Segment `gorm:"foreignKey:SegmentID;references:ID" json:"segment,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.Settings == nil {
		c.Settings = CampaignSettings{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the campaign can transition to the given status
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch c.Status {
	case CampaignStatusDraft:
		return newStatus == CampaignStatusScheduled || newStatus == CampaignStatusSending
	case CampaignStatusScheduled:
		return newStatus == CampaignStatusSending || newStatus == CampaignStatusSent
	case CampaignStatusSending:
		return newStatus == CampaignStatusSent
	default:
		return false
	}
}

// CampaignFilter represents filter criteria for campaign queries
type CampaignFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	UserID        *uint
	SegmentID     *uint
	Channel       *CampaignChannel
	Status        *CampaignStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
