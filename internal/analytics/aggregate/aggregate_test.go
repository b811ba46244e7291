package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/subsight/internal/analytics/domain"
)

func rec(id, status, countryName, plan string, monthly float64) domain.SubscriptionRecord {
	return domain.SubscriptionRecord{
		ID:            id,
		Status:        status,
		Country:       countryName,
		PlanLabel:     plan,
		MonthlyAmount: monthly,
	}
}

func find(t *testing.T, rows []*domain.MetricRow, dataType, segmentType, segmentValue string) *domain.MetricRow {
	t.Helper()
	for _, row := range rows {
		if row.DataType == dataType && row.SegmentType == segmentType && row.SegmentValue == segmentValue {
			return row
		}
	}
	t.Fatalf("missing row %s/%s/%s", dataType, segmentType, segmentValue)
	return nil
}

func TestBuildTotals(t *testing.T) {
	rows := Build("user-1", []domain.SubscriptionRecord{
		rec("sub_1", "active", "United States", "Pro", 29),
		rec("sub_2", "trialing", "Germany", "Pro", 49),
		rec("sub_3", "past_due", "United States", "Starter", 9.99),
		rec("sub_4", "canceled", "France", "Pro", 99),
	}, 24)

	require.InDelta(t, 87.99, find(t, rows, domain.DataTypeMRR, domain.SegmentNone, "").Value, 0.001)
	require.InDelta(t, 1055.88, find(t, rows, domain.DataTypeARR, domain.SegmentNone, "").Value, 0.001)
	require.InDelta(t, 2111.76, find(t, rows, domain.DataTypeLTV, domain.SegmentNone, "").Value, 0.001)
	require.InDelta(t, 3, find(t, rows, domain.DataTypeActiveSubscriptions, domain.SegmentNone, "").Value, 0.001)

	for _, row := range rows {
		require.Equal(t, "user-1", row.UserID)
		require.Equal(t, domain.SnapshotCurrency, row.Currency)
	}
}

func TestBuildCountrySegments(t *testing.T) {
	rows := Build("user-1", []domain.SubscriptionRecord{
		rec("sub_1", "active", "United States", "Pro", 29),
		rec("sub_2", "active", "United States", "Starter", 9),
		rec("sub_3", "active", "Germany", "Pro", 49),
	}, 24)

	require.InDelta(t, 38, find(t, rows, domain.DataTypeMRR, domain.SegmentCountry, "United States").Value, 0.001)
	require.InDelta(t, 2, find(t, rows, domain.DataTypeActiveSubscriptions, domain.SegmentCountry, "United States").Value, 0.001)
	require.InDelta(t, 49, find(t, rows, domain.DataTypeMRR, domain.SegmentCountry, "Germany").Value, 0.001)
	require.InDelta(t, 588, find(t, rows, domain.DataTypeARR, domain.SegmentCountry, "Germany").Value, 0.001)
}

func TestBuildPlanSegments(t *testing.T) {
	rows := Build("user-1", []domain.SubscriptionRecord{
		rec("sub_1", "active", "United States", "Pro", 29),
		rec("sub_2", "active", "Germany", "Pro", 29),
		rec("sub_3", "active", "Germany", "Starter", 9),
	}, 12)

	require.InDelta(t, 58, find(t, rows, domain.DataTypeMRR, domain.SegmentPlan, "Pro").Value, 0.001)
	require.InDelta(t, 696, find(t, rows, domain.DataTypeLTV, domain.SegmentPlan, "Pro").Value, 0.001)
	require.InDelta(t, 9, find(t, rows, domain.DataTypeMRR, domain.SegmentPlan, "Starter").Value, 0.001)
}

func TestBuildExcludesRecordsWithoutPrices(t *testing.T) {
	broken := rec("sub_2", "active", "United States", "Unknown plan", 0)
	broken.MissingPrice = true
	rows := Build("user-1", []domain.SubscriptionRecord{
		rec("sub_1", "active", "United States", "Pro", 29),
		broken,
	}, 24)

	require.InDelta(t, 1, find(t, rows, domain.DataTypeActiveSubscriptions, domain.SegmentNone, "").Value, 0.001)
	for _, row := range rows {
		require.NotEqual(t, "Unknown plan", row.SegmentValue)
	}
}

func TestBuildExcludesZeroAmountRecords(t *testing.T) {
	rows := Build("user-1", []domain.SubscriptionRecord{
		rec("sub_1", "active", "United States", "Pro", 29),
		// Fully discounted subscription carries no revenue weight.
		rec("sub_2", "active", "Germany", "Pro", 0),
	}, 24)

	require.InDelta(t, 1, find(t, rows, domain.DataTypeActiveSubscriptions, domain.SegmentNone, "").Value, 0.001)
	require.InDelta(t, 29, find(t, rows, domain.DataTypeMRR, domain.SegmentNone, "").Value, 0.001)
	for _, row := range rows {
		require.NotEqual(t, "Germany", row.SegmentValue)
	}
}

func TestBuildSegmentsConserveTotals(t *testing.T) {
	rows := Build("user-1", []domain.SubscriptionRecord{
		rec("sub_1", "active", "United States", "Pro", 29),
		rec("sub_2", "trialing", "Germany", "Pro", 49.99),
		rec("sub_3", "past_due", "Germany", "Starter", 9),
		rec("sub_4", "active", "Brazil", "Starter", 9),
	}, 24)

	dataTypes := []string{
		domain.DataTypeMRR,
		domain.DataTypeARR,
		domain.DataTypeLTV,
		domain.DataTypeActiveSubscriptions,
	}
	for _, dataType := range dataTypes {
		global := find(t, rows, dataType, domain.SegmentNone, "").Value
		var byCountry, byPlan float64
		for _, row := range rows {
			if row.DataType != dataType {
				continue
			}
			switch row.SegmentType {
			case domain.SegmentCountry:
				byCountry += row.Value
			case domain.SegmentPlan:
				byPlan += row.Value
			}
		}
		require.InDelta(t, global, byCountry, 0.011, "country rows must sum to the %s total", dataType)
		require.InDelta(t, global, byPlan, 0.011, "plan rows must sum to the %s total", dataType)
	}
}

func TestBuildEmptyInputStillWritesTotals(t *testing.T) {
	rows := Build("user-1", nil, 24)
	require.Len(t, rows, 4)
	require.Zero(t, find(t, rows, domain.DataTypeMRR, domain.SegmentNone, "").Value)
	require.Zero(t, find(t, rows, domain.DataTypeActiveSubscriptions, domain.SegmentNone, "").Value)
}

func TestBuildSegmentOrderIsDeterministic(t *testing.T) {
	input := []domain.SubscriptionRecord{
		rec("sub_1", "active", "Germany", "Zeta", 10),
		rec("sub_2", "active", "Australia", "Alpha", 20),
	}
	first := Build("user-1", input, 24)
	second := Build("user-1", input, 24)
	require.Equal(t, first, second)

	// Countries come before plans, each alphabetical.
	require.Equal(t, "Australia", first[4].SegmentValue)
	require.Equal(t, "Germany", first[8].SegmentValue)
	require.Equal(t, "Alpha", first[12].SegmentValue)
}

func TestBucketByMonth(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	a := rec("sub_1", "active", "United States", "Pro", 29)
	a.Created = time.Date(2025, time.May, 3, 0, 0, 0, 0, time.UTC)
	b := rec("sub_2", "active", "Germany", "Pro", 49)
	b.Created = time.Date(2025, time.May, 20, 0, 0, 0, 0, time.UTC)
	c := rec("sub_3", "active", "Germany", "Starter", 9)
	c.Created = time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	out := BucketByMonth([]domain.SubscriptionRecord{a, b, c}, now)
	require.Equal(t, 3, out.Total)
	require.Equal(t, []string{"Germany", "United States"}, out.Countries)
	require.Len(t, out.Months, 2)

	may := out.Months[0]
	require.Equal(t, "May 2025", may.Label)
	require.Equal(t, 2, may.Subscriptions)
	require.Equal(t, []string{"Germany", "United States"}, may.Countries)
	require.InDelta(t, 78, may.MRR, 0.001)
	require.InDelta(t, 936, may.ARR, 0.001)

	require.Equal(t, "April 2025", out.Months[1].Label)
}

func TestBucketByMonthCountsEachActivationMonth(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	r := rec("sub_1", "active", "United States", "Pro", 29)
	r.Created = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	r.StartDate = time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	// A renewal in the future must not open a bucket.
	r.CurrentPeriodStart = time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)

	out := BucketByMonth([]domain.SubscriptionRecord{r}, now)
	require.Equal(t, 1, out.Total)
	require.Len(t, out.Months, 2)
	require.Equal(t, "March 2025", out.Months[0].Label)
	require.Equal(t, "February 2025", out.Months[1].Label)
	require.InDelta(t, 29, out.Months[0].MRR, 0.001)
	require.InDelta(t, 29, out.Months[1].MRR, 0.001)
}

func TestBucketByMonthSkipsNonBillableRecords(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	canceled := rec("sub_1", "canceled", "United States", "Pro", 29)
	canceled.Created = time.Date(2025, time.May, 3, 0, 0, 0, 0, time.UTC)
	free := rec("sub_2", "active", "Germany", "Pro", 0)
	free.Created = time.Date(2025, time.May, 4, 0, 0, 0, 0, time.UTC)

	out := BucketByMonth([]domain.SubscriptionRecord{canceled, free}, now)
	require.Zero(t, out.Total)
	require.Empty(t, out.Months)
}

func TestBucketByMonthDeduplicatesWithinMonth(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	r := rec("sub_1", "active", "United States", "Pro", 29)
	r.Created = time.Date(2025, time.May, 3, 0, 0, 0, 0, time.UTC)
	// A renewal in the same month must not double-count.
	r.CurrentPeriodStart = time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)

	out := BucketByMonth([]domain.SubscriptionRecord{r, r}, now)
	require.Equal(t, 1, out.Total)
	require.Equal(t, 1, out.Months[0].Subscriptions)
	require.InDelta(t, 29, out.Months[0].MRR, 0.001)
}

func TestBucketByMonthSkipsRecordsWithoutTimestamps(t *testing.T) {
	out := BucketByMonth([]domain.SubscriptionRecord{rec("sub_1", "active", "United States", "Pro", 29)}, time.Now())
	require.Zero(t, out.Total)
	require.Empty(t, out.Months)
}
