package models

import (
	"time"

	"github.com/calyxsuite/outreach/utils"
	"gorm.io/gorm"
)

// DeliveryTaskStatus represents the lifecycle of a scheduled delivery task
type DeliveryTaskStatus string

const (
	DeliveryTaskStatusPending DeliveryTaskStatus = "pending"
	DeliveryTaskStatusRunning DeliveryTaskStatus = "running"
	DeliveryTaskStatusDone    DeliveryTaskStatus = "done"
	DeliveryTaskStatusFailed  DeliveryTaskStatus = "failed"
)

// DeliveryTask is one scheduled delivery executor invocation. The broadcast
// coordinator inserts one row per recipient with ScheduledAt = now + throttle
// delay; the delivery worker claims due rows and runs the matching executor.
// Execution is at-least-once: a task that errors is retried until MaxAttempts.
type DeliveryTask struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	CampaignID  uint               `gorm:"not null;index:idx_delivery_tasks_campaign_id" json:"campaign_id"`
	RecipientID uint               `gorm:"not null;index:idx_delivery_tasks_recipient_id" json:"recipient_id"`
	Channel     CampaignChannel    `gorm:"type:campaign_channel;not null" json:"channel"`
	Status      DeliveryTaskStatus `gorm:"type:delivery_task_status;not null;default:'pending';index:idx_delivery_tasks_status" json:"status"`
	ScheduledAt time.Time          `gorm:"not null;index:idx_delivery_tasks_scheduled_at" json:"scheduled_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Attempts    int                `gorm:"default:0" json:"attempts"`
	LastError   *string            `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_delivery_tasks_created_at" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Campaign  *Campaign          `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
	Recipient *CampaignRecipient `gorm:"foreignKey:RecipientID;references:ID" json:"recipient,omitempty"`
}

// TableName returns the table name for the model
func (DeliveryTask) TableName() string {
	return "delivery_tasks"
}

// BeforeCreate is called before creating a new record
func (t *DeliveryTask) BeforeCreate(tx *gorm.DB) error {
	if t.Status == "" {
		t.Status = DeliveryTaskStatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = utils.UTCNow()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	return nil
}

// DeliveryTaskFilter represents filter criteria for delivery task queries
type DeliveryTaskFilter struct {
	ID              *uint
	CampaignID      *uint
	RecipientID     *uint
	Channel         *CampaignChannel
	Status          *DeliveryTaskStatus
	ScheduledBefore *time.Time
}
