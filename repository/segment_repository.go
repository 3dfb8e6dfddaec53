package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/calyxsuite/outreach/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SegmentRepositoryImpl implements the SegmentRepository interface
type SegmentRepositoryImpl struct {
	*BaseRepository[models.Segment, models.SegmentFilterCriteria]
}

// NewSegmentRepository creates a new segment repository
func NewSegmentRepository(db *gorm.DB) SegmentRepository {
	return &SegmentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Segment, models.SegmentFilterCriteria](db),
	}
}

// ByUUID retrieves a segment by UUID
func (r *SegmentRepositoryImpl) ByUUID(ctx context.Context, rawUUID string) (*models.Segment, error) {
	parsed, err := uuid.Parse(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID format: %w", err)
	}

	db := r.getDB(ctx)

	var segment models.Segment
	err = db.Where("uuid = ?", parsed).Last(&segment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find segment by UUID: %w", err)
	}

	return &segment, nil
}
