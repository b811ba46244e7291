// Package aggregate derives the stored metric rows from normalized
// subscription records. Everything here is a pure fold; persistence
// and Stripe access stay out.
package aggregate

import (
	"math"
	"sort"

	"github.com/smallbiznis/subsight/internal/analytics/domain"
)

type bucket struct {
	mrr   float64
	count int
}

// Build folds the billable records into one full snapshot: the
// unsegmented totals plus a country and a plan breakdown for each
// data type. Values are rounded to two decimals.
func Build(userID string, recs []domain.SubscriptionRecord, lifespanMonths int) []*domain.MetricRow {
	total := bucket{}
	byCountry := map[string]*bucket{}
	byPlan := map[string]*bucket{}

	for _, rec := range recs {
		if !rec.Counted() {
			continue
		}
		total.mrr += rec.MonthlyAmount
		total.count++
		add(byCountry, rec.Country, rec.MonthlyAmount)
		add(byPlan, rec.PlanLabel, rec.MonthlyAmount)
	}

	rows := segmentRows(userID, domain.SegmentNone, "", total, lifespanMonths)
	for _, key := range sortedKeys(byCountry) {
		rows = append(rows, segmentRows(userID, domain.SegmentCountry, key, *byCountry[key], lifespanMonths)...)
	}
	for _, key := range sortedKeys(byPlan) {
		rows = append(rows, segmentRows(userID, domain.SegmentPlan, key, *byPlan[key], lifespanMonths)...)
	}
	return rows
}

func add(m map[string]*bucket, key string, amount float64) {
	b, ok := m[key]
	if !ok {
		b = &bucket{}
		m[key] = b
	}
	b.mrr += amount
	b.count++
}

func segmentRows(userID, segmentType, segmentValue string, b bucket, lifespanMonths int) []*domain.MetricRow {
	row := func(dataType string, value float64) *domain.MetricRow {
		return &domain.MetricRow{
			UserID:       userID,
			DataType:     dataType,
			SegmentType:  segmentType,
			SegmentValue: segmentValue,
			Value:        round2(value),
			Currency:     domain.SnapshotCurrency,
		}
	}
	return []*domain.MetricRow{
		row(domain.DataTypeMRR, b.mrr),
		row(domain.DataTypeARR, b.mrr*12),
		row(domain.DataTypeLTV, b.mrr*float64(lifespanMonths)),
		row(domain.DataTypeActiveSubscriptions, float64(b.count)),
	}
}

func sortedKeys(m map[string]*bucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
