package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	analyticsdomain "github.com/smallbiznis/subsight/internal/analytics/domain"
	"github.com/smallbiznis/subsight/pkg/db"
	"github.com/smallbiznis/subsight/pkg/db/pagination"
)

func setup(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()
	conn := db.NewTest(t)
	require.NoError(t, conn.AutoMigrate(&analyticsdomain.MetricRow{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return conn, node
}

func metricRow(node *snowflake.Node, userID, dataType, segmentType, segmentValue string, value float64) *analyticsdomain.MetricRow {
	return &analyticsdomain.MetricRow{
		ID:           node.Generate(),
		UserID:       userID,
		DataType:     dataType,
		SegmentType:  segmentType,
		SegmentValue: segmentValue,
		Value:        value,
		Currency:     analyticsdomain.SnapshotCurrency,
	}
}

func TestReplaceSnapshotSwapsRows(t *testing.T) {
	conn, node := setup(t)
	repo := Provide()
	ctx := context.Background()

	first := []*analyticsdomain.MetricRow{
		metricRow(node, "user-1", analyticsdomain.DataTypeMRR, analyticsdomain.SegmentNone, "", 100),
		metricRow(node, "user-1", analyticsdomain.DataTypeARR, analyticsdomain.SegmentNone, "", 1200),
	}
	require.NoError(t, repo.ReplaceSnapshot(ctx, conn, "user-1", first))

	second := []*analyticsdomain.MetricRow{
		metricRow(node, "user-1", analyticsdomain.DataTypeMRR, analyticsdomain.SegmentNone, "", 150),
	}
	require.NoError(t, repo.ReplaceSnapshot(ctx, conn, "user-1", second))

	var count int64
	require.NoError(t, conn.Model(&analyticsdomain.MetricRow{}).Where("user_id = ?", "user-1").Count(&count).Error)
	require.EqualValues(t, 1, count)

	totals, err := repo.TotalsByType(ctx, conn, "user-1")
	require.NoError(t, err)
	require.InDelta(t, 150, totals[analyticsdomain.DataTypeMRR], 0.001)
}

func TestReplaceSnapshotLeavesOtherTenantsAlone(t *testing.T) {
	conn, node := setup(t)
	repo := Provide()
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSnapshot(ctx, conn, "user-1", []*analyticsdomain.MetricRow{
		metricRow(node, "user-1", analyticsdomain.DataTypeMRR, analyticsdomain.SegmentNone, "", 100),
	}))
	require.NoError(t, repo.ReplaceSnapshot(ctx, conn, "user-2", []*analyticsdomain.MetricRow{
		metricRow(node, "user-2", analyticsdomain.DataTypeMRR, analyticsdomain.SegmentNone, "", 999),
	}))

	totals, err := repo.TotalsByType(ctx, conn, "user-1")
	require.NoError(t, err)
	require.InDelta(t, 100, totals[analyticsdomain.DataTypeMRR], 0.001)
}

func TestTotalsByTypeIgnoresSegmentedRows(t *testing.T) {
	conn, node := setup(t)
	repo := Provide()
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSnapshot(ctx, conn, "user-1", []*analyticsdomain.MetricRow{
		metricRow(node, "user-1", analyticsdomain.DataTypeMRR, analyticsdomain.SegmentNone, "", 100),
		metricRow(node, "user-1", analyticsdomain.DataTypeMRR, analyticsdomain.SegmentCountry, "Germany", 60),
		metricRow(node, "user-1", analyticsdomain.DataTypeMRR, analyticsdomain.SegmentPlan, "Pro", 40),
	}))

	totals, err := repo.TotalsByType(ctx, conn, "user-1")
	require.NoError(t, err)
	require.Len(t, totals, 1)
	require.InDelta(t, 100, totals[analyticsdomain.DataTypeMRR], 0.001)
}

func TestListSnapshotPagination(t *testing.T) {
	conn, node := setup(t)
	repo := Provide()
	ctx := context.Background()

	rows := make([]*analyticsdomain.MetricRow, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, metricRow(node, "user-1", analyticsdomain.DataTypeMRR, analyticsdomain.SegmentCountry, "Germany", float64(i)))
	}
	require.NoError(t, repo.ReplaceSnapshot(ctx, conn, "user-1", rows))

	page, err := repo.ListSnapshot(ctx, conn, "user-1", pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3) // page size plus one lookahead row

	token, err := pagination.EncodeCursor(pagination.Cursor{ID: page[1].ID.String()})
	require.NoError(t, err)

	next, err := repo.ListSnapshot(ctx, conn, "user-1", pagination.Pagination{PageToken: token, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, next, 3)
	require.Greater(t, int64(next[0].ID), int64(page[1].ID))
}

func TestListSnapshotRejectsBadToken(t *testing.T) {
	conn, _ := setup(t)
	repo := Provide()

	_, err := repo.ListSnapshot(context.Background(), conn, "user-1", pagination.Pagination{PageToken: "not-base64!!", PageSize: 2})
	require.Error(t, err)
}
