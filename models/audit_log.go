// Package models contains domain entities and business models for the broadcast engine
package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       *uint           `gorm:"index:idx_audit_user_id" json:"user_id,omitempty"`
	User         *User           `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Action       string          `gorm:"type:audit_action_enum;not null;index:idx_audit_action" json:"action"`
	SubjectType  *string         `gorm:"size:64;index:idx_audit_subject" json:"subject_type,omitempty"`
	SubjectID    *uint           `gorm:"index:idx_audit_subject" json:"subject_id,omitempty"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb;index:idx_audit_metadata,type:gin" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionBroadcastStarted      = "campaign_broadcast_started"
	AuditActionBroadcastCompleted    = "campaign_broadcast_completed"
	AuditActionBroadcastFailed       = "campaign_broadcast_failed"
	AuditActionRecipientScheduled    = "campaign_recipient_scheduled"
	AuditActionDeliverySent          = "campaign_delivery_sent"
	AuditActionDeliveryFailed        = "campaign_delivery_failed"
	AuditActionCampaignOwnerNotified = "campaign_owner_notified"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	UserID        *uint
	Action        *string
	SubjectType   *string
	SubjectID     *uint
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
