package repository

import (
	"context"
	"fmt"

	"github.com/calyxsuite/outreach/models"
	"gorm.io/gorm"
)

// AuditLogRepositoryImpl implements the AuditLogRepository interface
type AuditLogRepositoryImpl struct {
	*BaseRepository[models.AuditLog, models.AuditLogFilter]
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &AuditLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AuditLog, models.AuditLogFilter](db),
	}
}

// ListBySubject returns audit entries for one subject, newest first
func (r *AuditLogRepositoryImpl) ListBySubject(ctx context.Context, subjectType string, subjectID uint, limit, offset int) ([]*models.AuditLog, error) {
	db := r.getDB(ctx)

	var logs []*models.AuditLog
	query := db.Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit logs for %s %d: %w", subjectType, subjectID, err)
	}

	return logs, nil
}
