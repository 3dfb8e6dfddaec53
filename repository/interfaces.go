// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/calyxsuite/outreach/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	Save(ctx context.Context, entity *T) error
}

// UserRepository defines operations for tenant owners
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByUUID(ctx context.Context, uuid string) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
}

// AudienceSpec describes the audience of one campaign run: the owning tenant,
// the delivery channel (which decides the consent/destination predicates), and
// an optional segment filter tree. A nil Filter means every contact belonging
// to any client of the tenant.
type AudienceSpec struct {
	OwnerID uint
	Channel models.CampaignChannel
	Filter  *models.SegmentFilter
}

// ContactIterator is a forward-only cursor over audience contacts. Callers
// must Close it; a fresh StreamAudience call re-executes the query.
type ContactIterator interface {
	Next() bool
	Contact() (*models.Contact, error)
	Close() error
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	// StreamAudience opens a database cursor over the channel-eligible contacts
	// matching spec, ordered by contact id ascending. The audience is never
	// materialized in memory.
	StreamAudience(ctx context.Context, spec AudienceSpec) (ContactIterator, error)
	CountAudience(ctx context.Context, spec AudienceSpec) (int64, error)
}

// SegmentRepository defines operations for segments
type SegmentRepository interface {
	Repository[models.Segment, models.SegmentFilterCriteria]
	ByUUID(ctx context.Context, uuid string) (*models.Segment, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
}

// RecipientRepository defines operations for campaign recipients
type RecipientRepository interface {
	Repository[models.CampaignRecipient, models.RecipientFilter]
	ByFilter(ctx context.Context, filter models.RecipientFilter, orderBy string, limit, offset int) ([]*models.CampaignRecipient, error)
	Count(ctx context.Context, filter models.RecipientFilter) (int64, error)
	Update(ctx context.Context, recipient *models.CampaignRecipient) error
	ByIDWithRelations(ctx context.Context, id uint) (*models.CampaignRecipient, error)
}

// DeliveryTaskRepository defines operations for scheduled delivery tasks
type DeliveryTaskRepository interface {
	Repository[models.DeliveryTask, models.DeliveryTaskFilter]
	// ClaimDue atomically marks up to limit due pending tasks as running and
	// returns them, so concurrent workers never claim the same task twice.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryTask, error)
	Update(ctx context.Context, task *models.DeliveryTask) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListBySubject(ctx context.Context, subjectType string, subjectID uint, limit, offset int) ([]*models.AuditLog, error)
}
