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

// FilterOperator joins groups or criteria within a segment filter tree
type FilterOperator string

const (
	FilterOperatorAnd FilterOperator = "and"
	FilterOperatorOr  FilterOperator = "or"
)

// Valid checks if the operator is valid
func (o FilterOperator) Valid() bool {
	return o == FilterOperatorAnd || o == FilterOperatorOr
}

// SegmentCriterion is a single {type, field, operator, value} condition
type SegmentCriterion struct {
	Type     string `json:"type"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Criterion operator constants understood by the audience resolver
const (
	CriterionOpEquals      = "equals"
	CriterionOpNotEquals   = "not_equals"
	CriterionOpContains    = "contains"
	CriterionOpStartsWith  = "starts_with"
	CriterionOpGreaterThan = "greater_than"
	CriterionOpLessThan    = "less_than"
	CriterionOpIsSet       = "is_set"
	CriterionOpIsNotSet    = "is_not_set"
)

// SegmentGroup is a set of criteria joined by CriteriaOperator
type SegmentGroup struct {
	CriteriaOperator FilterOperator     `json:"criteria_operator"`
	Criteria         []SegmentCriterion `json:"criteria"`
}

// SegmentFilter is the boolean filter tree evaluated against a tenant's contacts:
// groups joined by GroupOperator, criteria within a group joined by the group's
// CriteriaOperator.
type SegmentFilter struct {
	GroupOperator FilterOperator `json:"group_operator"`
	Groups        []SegmentGroup `json:"groups"`
}

// IsEmpty reports whether the filter constrains nothing
func (f SegmentFilter) IsEmpty() bool {
	for _, g := range f.Groups {
		if len(g.Criteria) > 0 {
			return false
		}
	}
	return true
}

// Value implements the driver.Valuer interface for SegmentFilter
func (f SegmentFilter) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan implements the sql.Scanner interface for SegmentFilter
func (f *SegmentFilter) Scan(value any) error {
	if value == nil {
		*f = SegmentFilter{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SegmentFilter", value)
	}

	return json.Unmarshal(bytes, f)
}

// Segment represents a saved, dynamically evaluated audience filter
type Segment struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:uk_segments_uuid" json:"uuid"`
	UserID    uint          `gorm:"not null;index:idx_segments_user_id" json:"user_id"`
	Name      string        `gorm:"size:255;not null" json:"name"`
	Filter    SegmentFilter `gorm:"type:jsonb;not null" json:"filter"`
	CreatedAt time.Time     `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`

	// Relations
	User *User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
}

// TableName returns the table name for the model
func (Segment) TableName() string {
	return "segments"
}

// BeforeCreate is called before creating a new record
func (s *Segment) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// SegmentFilterCriteria represents filter criteria for segment queries
type SegmentFilterCriteria struct {
	ID     *uint
	UUID   *uuid.UUID
	UserID *uint
	Name   *string
}
