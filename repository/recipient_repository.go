package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/calyxsuite/outreach/models"
	"gorm.io/gorm"
)

// RecipientRepositoryImpl implements the RecipientRepository interface
type RecipientRepositoryImpl struct {
	*BaseRepository[models.CampaignRecipient, models.RecipientFilter]
}

// NewRecipientRepository creates a new campaign recipient repository
func NewRecipientRepository(db *gorm.DB) RecipientRepository {
	return &RecipientRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CampaignRecipient, models.RecipientFilter](db),
	}
}

// ByIDWithRelations retrieves a recipient with its campaign, campaign owner,
// and contact preloaded, as needed by the delivery executors
func (r *RecipientRepositoryImpl) ByIDWithRelations(ctx context.Context, id uint) (*models.CampaignRecipient, error) {
	db := r.getDB(ctx)

	var recipient models.CampaignRecipient
	err := db.Preload("Campaign").
		Preload("Campaign.User").
		Preload("Contact").
		Last(&recipient, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find recipient by ID %d: %w", id, err)
	}

	return &recipient, nil
}

// ByFilter retrieves recipients based on filter criteria with pagination
func (r *RecipientRepositoryImpl) ByFilter(ctx context.Context, filter models.RecipientFilter, orderBy string, limit, offset int) ([]*models.CampaignRecipient, error) {
	db := r.getDB(ctx)

	var recipients []*models.CampaignRecipient
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&recipients).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find recipients by filter: %w", err)
	}

	return recipients, nil
}

// Count returns the number of recipients matching the filter
func (r *RecipientRepositoryImpl) Count(ctx context.Context, filter models.RecipientFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.CampaignRecipient{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count recipients: %w", err)
	}

	return count, nil
}

// Update updates a campaign recipient
func (r *RecipientRepositoryImpl) Update(ctx context.Context, recipient *models.CampaignRecipient) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Save(recipient).Error
	if err != nil {
		return fmt.Errorf("failed to update recipient: %w", err)
	}

	return nil
}

// applyFilter applies filter conditions to the GORM query
func (r *RecipientRepositoryImpl) applyFilter(db *gorm.DB, filter models.RecipientFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.ContactID != nil {
		db = db.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
