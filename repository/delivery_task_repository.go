package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeliveryTaskRepositoryImpl implements the DeliveryTaskRepository interface
type DeliveryTaskRepositoryImpl struct {
	*BaseRepository[models.DeliveryTask, models.DeliveryTaskFilter]
}

// NewDeliveryTaskRepository creates a new delivery task repository
func NewDeliveryTaskRepository(db *gorm.DB) DeliveryTaskRepository {
	return &DeliveryTaskRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DeliveryTask, models.DeliveryTaskFilter](db),
	}
}

// ClaimDue marks up to limit due pending tasks as running and returns them.
// The select and the status flip happen in one transaction with row locks, so
// two workers polling at the same instant never claim the same task.
func (r *DeliveryTaskRepositoryImpl) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryTask, error) {
	var claimed []*models.DeliveryTask

	err := WithTransaction(ctx, r.DB, func(txCtx context.Context) error {
		db := r.getDB(txCtx)

		var tasks []*models.DeliveryTask
		err := db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND scheduled_at <= ?", models.DeliveryTaskStatusPending, now).
			Order("scheduled_at ASC").
			Limit(limit).
			Find(&tasks).Error
		if err != nil {
			return fmt.Errorf("failed to list due delivery tasks: %w", err)
		}
		if len(tasks) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(tasks))
		for _, t := range tasks {
			ids = append(ids, t.ID)
		}

		started := utils.UTCNow()
		err = db.Model(&models.DeliveryTask{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     models.DeliveryTaskStatusRunning,
				"started_at": started,
				"updated_at": started,
				"attempts":   gorm.Expr("attempts + 1"),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to claim delivery tasks: %w", err)
		}

		for _, t := range tasks {
			t.Status = models.DeliveryTaskStatusRunning
			t.StartedAt = &started
			t.Attempts++
		}
		claimed = tasks
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// Update updates a delivery task
func (r *DeliveryTaskRepositoryImpl) Update(ctx context.Context, task *models.DeliveryTask) error {
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

	task.UpdatedAt = utils.UTCNow()
	err = db.Save(task).Error
	if err != nil {
		return fmt.Errorf("failed to update delivery task: %w", err)
	}

	return nil
}
