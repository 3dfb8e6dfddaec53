package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/calyxsuite/outreach/models"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements the ContactRepository interface
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, models.ContactFilter]
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Contact, models.ContactFilter](db),
	}
}

// contactColumns whitelists the contact fields addressable from a segment
// criterion. Anything outside this map contributes no constraint.
var contactColumns = map[string]string{
	"first_name": "contacts.first_name",
	"last_name":  "contacts.last_name",
	"email":      "contacts.email",
	"phone":      "contacts.phone",
	"created_at": "contacts.created_at",
}

// StreamAudience opens a forward-only cursor over the channel-eligible
// contacts matching spec, ordered by contact id ascending
func (r *ContactRepositoryImpl) StreamAudience(ctx context.Context, spec AudienceSpec) (ContactIterator, error) {
	db := r.getDB(ctx)

	query, err := r.audienceQuery(db, spec)
	if err != nil {
		return nil, err
	}

	rows, err := query.Order("contacts.id ASC").Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to open audience cursor: %w", err)
	}

	return &contactRows{db: db, rows: rows}, nil
}

// CountAudience returns the size of the audience described by spec
func (r *ContactRepositoryImpl) CountAudience(ctx context.Context, spec AudienceSpec) (int64, error) {
	db := r.getDB(ctx)

	query, err := r.audienceQuery(db, spec)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count audience: %w", err)
	}

	return count, nil
}

// audienceQuery builds the contacts query for one audience spec: tenant scope
// via the clients join, the channel consent/destination predicates, and the
// optional segment filter tree.
func (r *ContactRepositoryImpl) audienceQuery(db *gorm.DB, spec AudienceSpec) (*gorm.DB, error) {
	query := db.Model(&models.Contact{}).
		Joins("JOIN clients ON clients.id = contacts.client_id").
		Where("clients.user_id = ?", spec.OwnerID)

	switch spec.Channel {
	case models.CampaignChannelEmail:
		query = query.Where("contacts.email <> '' AND contacts.email_unsubscribed_at IS NULL")
	case models.CampaignChannelSMS:
		query = query.Where("contacts.phone <> '' AND contacts.sms_opted_out_at IS NULL")
	default:
		return nil, fmt.Errorf("unsupported audience channel: %s", spec.Channel)
	}

	if spec.Filter != nil && !spec.Filter.IsEmpty() {
		cond, args := segmentFilterSQL(*spec.Filter)
		if cond != "" {
			query = query.Where(cond, args...)
		}
	}

	return query, nil
}

// segmentFilterSQL translates a segment filter tree into a SQL condition:
// criteria within a group joined by the group's criteria operator, groups
// joined by the tree's group operator.
func segmentFilterSQL(filter models.SegmentFilter) (string, []any) {
	groupOp := sqlOperator(filter.GroupOperator)

	var groupConds []string
	var args []any
	for _, group := range filter.Groups {
		critOp := sqlOperator(group.CriteriaOperator)

		var critConds []string
		for _, crit := range group.Criteria {
			cond, critArgs, ok := criterionSQL(crit)
			if !ok {
				continue
			}
			critConds = append(critConds, cond)
			args = append(args, critArgs...)
		}
		if len(critConds) == 0 {
			continue
		}
		groupConds = append(groupConds, "("+strings.Join(critConds, " "+critOp+" ")+")")
	}
	if len(groupConds) == 0 {
		return "", nil
	}

	return "(" + strings.Join(groupConds, " "+groupOp+" ") + ")", args
}

func sqlOperator(op models.FilterOperator) string {
	if op == models.FilterOperatorOr {
		return "OR"
	}
	return "AND"
}

// criterionSQL maps one {type, field, operator, value} criterion onto a
// parameterized SQL fragment. Unknown fields or operators are skipped.
func criterionSQL(crit models.SegmentCriterion) (string, []any, bool) {
	column, ok := contactColumns[crit.Field]
	if !ok {
		return "", nil, false
	}

	switch crit.Operator {
	case models.CriterionOpEquals:
		return column + " = ?", []any{crit.Value}, true
	case models.CriterionOpNotEquals:
		return column + " <> ?", []any{crit.Value}, true
	case models.CriterionOpContains:
		return column + " ILIKE ?", []any{"%" + crit.Value + "%"}, true
	case models.CriterionOpStartsWith:
		return column + " ILIKE ?", []any{crit.Value + "%"}, true
	case models.CriterionOpGreaterThan:
		return column + " > ?", []any{crit.Value}, true
	case models.CriterionOpLessThan:
		return column + " < ?", []any{crit.Value}, true
	case models.CriterionOpIsSet:
		return column + " <> ''", nil, true
	case models.CriterionOpIsNotSet:
		return column + " = ''", nil, true
	default:
		return "", nil, false
	}
}

// contactRows adapts a database cursor to the ContactIterator contract
type contactRows struct {
	db   *gorm.DB
	rows *sql.Rows
}

func (it *contactRows) Next() bool {
	return it.rows.Next()
}

func (it *contactRows) Contact() (*models.Contact, error) {
	var contact models.Contact
	if err := it.db.ScanRows(it.rows, &contact); err != nil {
		return nil, fmt.Errorf("failed to scan audience contact: %w", err)
	}
	return &contact, nil
}

// Close releases the cursor. It surfaces any error the iteration hit, so
// callers learn about a cursor that died mid-stream. Safe to call twice.
func (it *contactRows) Close() error {
	closeErr := it.rows.Close()
	if err := it.rows.Err(); err != nil {
		return err
	}
	return closeErr
}
