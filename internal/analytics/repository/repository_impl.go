package repository

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	analyticsdomain "github.com/smallbiznis/subsight/internal/analytics/domain"
	"github.com/smallbiznis/subsight/pkg/db/pagination"
)

type repo struct{}

func Provide() analyticsdomain.Repository {
	return &repo{}
}

// ReplaceSnapshot deletes the tenant's rows and inserts the new set.
// Callers run it inside a transaction so readers never see a partial
// snapshot.
func (r *repo) ReplaceSnapshot(ctx context.Context, db *gorm.DB, userID string, rows []*analyticsdomain.MetricRow) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM analytics_data WHERE user_id = ?`,
		userID,
	).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(rows).Error
}

func (r *repo) TotalsByType(ctx context.Context, db *gorm.DB, userID string) (map[string]float64, error) {
	var results []struct {
		DataType string
		Value    float64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT data_type, value
		 FROM analytics_data
		 WHERE user_id = ? AND segment_type = ?`,
		userID,
		analyticsdomain.SegmentNone,
	).Scan(&results).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[string]float64, len(results))
	for _, res := range results {
		totals[res.DataType] = res.Value
	}
	return totals, nil
}

func (r *repo) AllRows(ctx context.Context, db *gorm.DB, userID string) ([]*analyticsdomain.MetricRow, error) {
	var rows []*analyticsdomain.MetricRow
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("segment_type ASC, segment_value ASC, data_type ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListSnapshot(ctx context.Context, db *gorm.DB, userID string, page pagination.Pagination) ([]*analyticsdomain.MetricRow, error) {
	query := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Limit(page.PageSize + 1)

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		afterID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, err
		}
		query = query.Where("id > ?", afterID)
	}

	var rows []*analyticsdomain.MetricRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
