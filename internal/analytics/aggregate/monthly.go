package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/smallbiznis/subsight/internal/analytics/domain"
)

type monthKey struct {
	year  int
	month time.Month
}

type monthState struct {
	subs      map[string]struct{}
	countries map[string]struct{}
	mrr       float64
}

// BucketByMonth groups records into calendar months. A subscription
// is counted in every month one of its created, start or current
// period start timestamps falls into, at most once per month.
// Timestamps beyond now are treated as scheduling noise and skipped.
func BucketByMonth(recs []domain.SubscriptionRecord, now time.Time) *domain.MonthlyBreakdown {
	now = now.UTC()
	months := map[monthKey]*monthState{}
	seen := map[string]struct{}{}
	allCountries := map[string]struct{}{}

	for _, rec := range recs {
		if !rec.Counted() {
			continue
		}
		for _, key := range activationMonths(rec, now) {
			state, ok := months[key]
			if !ok {
				state = &monthState{subs: map[string]struct{}{}, countries: map[string]struct{}{}}
				months[key] = state
			}
			if _, dup := state.subs[rec.ID]; dup {
				continue
			}
			state.subs[rec.ID] = struct{}{}
			state.countries[rec.Country] = struct{}{}
			state.mrr += rec.MonthlyAmount

			seen[rec.ID] = struct{}{}
			allCountries[rec.Country] = struct{}{}
		}
	}

	out := &domain.MonthlyBreakdown{
		Months:    make([]domain.MonthBucket, 0, len(months)),
		Total:     len(seen),
		Countries: sortedSet(allCountries),
	}
	for key, state := range months {
		out.Months = append(out.Months, domain.MonthBucket{
			Year:          key.year,
			Month:         int(key.month),
			Label:         fmt.Sprintf("%s %d", key.month, key.year),
			Subscriptions: len(state.subs),
			Countries:     sortedSet(state.countries),
			MRR:           round2(state.mrr),
			ARR:           round2(state.mrr * 12),
		})
	}
	sort.Slice(out.Months, func(i, j int) bool {
		if out.Months[i].Year != out.Months[j].Year {
			return out.Months[i].Year > out.Months[j].Year
		}
		return out.Months[i].Month > out.Months[j].Month
	})
	return out
}

// activationMonths lists the distinct months of the candidate
// timestamps at or before now. Empty when none are usable.
func activationMonths(rec domain.SubscriptionRecord, now time.Time) []monthKey {
	set := map[monthKey]struct{}{}
	var keys []monthKey
	for _, t := range []time.Time{rec.Created, rec.StartDate, rec.CurrentPeriodStart} {
		if t.IsZero() || t.After(now) {
			continue
		}
		t = t.UTC()
		key := monthKey{year: t.Year(), month: t.Month()}
		if _, ok := set[key]; ok {
			continue
		}
		set[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
