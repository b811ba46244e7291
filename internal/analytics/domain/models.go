package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subsight/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	DataTypeMRR                 = "mrr"
	DataTypeARR                 = "arr"
	DataTypeLTV                 = "ltv"
	DataTypeActiveSubscriptions = "active_subscriptions"
)

const (
	SegmentNone    = "none"
	SegmentCountry = "country"
	SegmentPlan    = "plan"
)

// SnapshotCurrency is the currency stamped on every stored row.
// Values are taken from Stripe as-is; cross-currency conversion is a
// reporting concern, not a storage one.
const SnapshotCurrency = "USD"

// MetricRow is one derived metric value, optionally segmented.
// TableName keeps the original analytics_data name.
type MetricRow struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID       string       `gorm:"not null;index" json:"user_id"`
	DataType     string       `gorm:"not null" json:"data_type"`
	SegmentType  string       `gorm:"not null;default:'none'" json:"segment_type"`
	SegmentValue string       `gorm:"not null;default:''" json:"segment_value"`
	Value        float64      `gorm:"not null;default:0" json:"value"`
	Currency     string       `gorm:"not null;default:'USD'" json:"currency"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (MetricRow) TableName() string {
	return "analytics_data"
}

// SubscriptionRecord is a Stripe subscription reduced to the fields
// the aggregation math needs.
type SubscriptionRecord struct {
	ID                 string
	CustomerID         string
	Status             string
	Created            time.Time
	StartDate          time.Time
	CurrentPeriodStart time.Time
	Country            string
	PlanLabel          string
	Currency           string
	Quantity           int64
	// MonthlyAmount is the discounted, month-normalized amount in
	// major currency units for the whole item quantity.
	MonthlyAmount float64
	// MissingPrice marks a subscription whose item carried no price.
	// Such records are reported as data warnings and excluded from
	// aggregation.
	MissingPrice bool
}

// Billable reports whether the subscription's status counts toward
// revenue.
func (r SubscriptionRecord) Billable() bool {
	switch r.Status {
	case "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}

// Counted reports whether the record carries revenue weight: a
// billable status, a resolved price and a non-zero amount. Records
// failing this are excluded from every aggregate.
func (r SubscriptionRecord) Counted() bool {
	return r.Billable() && !r.MissingPrice && r.MonthlyAmount > 0
}

type Repository interface {
	// ReplaceSnapshot atomically swaps a tenant's metric rows.
	ReplaceSnapshot(ctx context.Context, db *gorm.DB, userID string, rows []*MetricRow) error
	// TotalsByType returns the unsegmented value per data type.
	TotalsByType(ctx context.Context, db *gorm.DB, userID string) (map[string]float64, error)
	// ListSnapshot pages through a tenant's stored rows. One row past
	// the page size is returned so the caller can detect more pages.
	ListSnapshot(ctx context.Context, db *gorm.DB, userID string, page pagination.Pagination) ([]*MetricRow, error)
	// AllRows loads every stored row for a tenant. A snapshot is
	// bounded by segment cardinality, so the full set stays small.
	AllRows(ctx context.Context, db *gorm.DB, userID string) ([]*MetricRow, error)
}
