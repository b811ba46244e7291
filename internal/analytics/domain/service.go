package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/subsight/pkg/db/pagination"
)

var (
	// ErrSyncInProgress means another sync for the same tenant holds the lock.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrInvalidUser is returned for blank tenant identifiers.
	ErrInvalidUser = errors.New("user id is required")
)

// PeriodFilter restricts a sync to subscriptions created in one
// calendar month. Zero value means no filter.
type PeriodFilter struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (p PeriodFilter) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Contains reports whether t falls inside the filtered month (UTC).
func (p PeriodFilter) Contains(t time.Time) bool {
	if p.IsZero() {
		return true
	}
	t = t.UTC()
	return t.Year() == p.Year && int(t.Month()) == p.Month
}

type SyncRequest struct {
	UserID string
	Filter PeriodFilter
}

const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// MetricTotal carries an unsegmented total together with its movement
// against the previous snapshot.
type MetricTotal struct {
	Value     float64 `json:"value"`
	Previous  float64 `json:"previous"`
	ChangePct float64 `json:"change_pct"`
	Direction string  `json:"direction"`
}

// SyncResult summarizes a completed sync run.
type SyncResult struct {
	SyncRunID         string                 `json:"sync_run_id"`
	SyncedAt          time.Time              `json:"synced_at"`
	SubscriptionsSeen int                    `json:"subscriptions_seen"`
	BillableCount     int                    `json:"billable_count"`
	RowsWritten       int                    `json:"rows_written"`
	Totals            map[string]MetricTotal `json:"totals"`
	Currency          string                 `json:"currency"`
	Recoverable       bool                   `json:"recoverable,omitempty"`
	Error             string                 `json:"error,omitempty"`
}

// MonthBucket is one month of subscription activity, newest first.
type MonthBucket struct {
	Year          int      `json:"year"`
	Month         int      `json:"month"`
	Label         string   `json:"label"`
	Subscriptions int      `json:"subscriptions"`
	Countries     []string `json:"countries"`
	MRR           float64  `json:"mrr"`
	ARR           float64  `json:"arr"`
}

// MonthlyBreakdown is the per-month view of the connected account.
type MonthlyBreakdown struct {
	Months    []MonthBucket `json:"months"`
	Total     int           `json:"total_subscriptions"`
	Countries []string      `json:"countries"`
}

// SnapshotPage is one page of stored metric rows.
type SnapshotPage struct {
	Rows     []*MetricRow         `json:"rows"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

// SnapshotView is the dashboard shape of a stored snapshot: the
// unsegmented totals plus per-country and per-plan breakdowns, keyed
// by data type.
type SnapshotView struct {
	Totals    map[string]float64            `json:"totals"`
	ByCountry map[string]map[string]float64 `json:"by_country"`
	ByPlan    map[string]map[string]float64 `json:"by_plan"`
	Currency  string                        `json:"currency"`
}

type Service interface {
	// Sync pulls Stripe data, derives metrics and replaces the
	// tenant's snapshot. Concurrent calls for one tenant are rejected
	// with ErrSyncInProgress.
	Sync(ctx context.Context, req SyncRequest) (*SyncResult, error)
	// MonthlyBreakdown buckets the tenant's subscriptions by the
	// month they became active.
	MonthlyBreakdown(ctx context.Context, userID string) (*MonthlyBreakdown, error)
	// Snapshot reads the stored metric rows without touching Stripe.
	Snapshot(ctx context.Context, userID string, pageToken string, pageSize int) (*SnapshotPage, error)
	// SnapshotOverview groups the stored rows for the dashboard.
	SnapshotOverview(ctx context.Context, userID string) (*SnapshotView, error)
}
