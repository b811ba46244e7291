package normalize

import (
	"testing"

	"github.com/stripe/stripe-go/v79"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/subsight/internal/analytics/country"
)

func sub(price *stripe.Price, qty int64) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       "sub_123",
		Status:   stripe.SubscriptionStatusActive,
		Created:  1717200000,
		Customer: &stripe.Customer{ID: "cus_123"},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{Price: price, Quantity: qty}},
		},
	}
}

func monthlyPrice(cents int64) *stripe.Price {
	return &stripe.Price{
		ID:         "price_basic_xyz",
		UnitAmount: cents,
		Currency:   stripe.CurrencyUSD,
		Recurring: &stripe.PriceRecurring{
			Interval:      stripe.PriceRecurringIntervalMonth,
			IntervalCount: 1,
		},
	}
}

func TestRecordMonthlyAmountByInterval(t *testing.T) {
	cases := []struct {
		name     string
		interval stripe.PriceRecurringInterval
		count    int64
		cents    int64
		want     float64
	}{
		{"monthly", stripe.PriceRecurringIntervalMonth, 1, 2900, 29},
		{"quarterly", stripe.PriceRecurringIntervalMonth, 3, 9000, 30},
		{"yearly", stripe.PriceRecurringIntervalYear, 1, 12000, 10},
		{"biennial", stripe.PriceRecurringIntervalYear, 2, 48000, 20},
		{"weekly", stripe.PriceRecurringIntervalWeek, 1, 1200, 52},
		{"daily", stripe.PriceRecurringIntervalDay, 1, 120, 36.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price := monthlyPrice(tc.cents)
			price.Recurring.Interval = tc.interval
			price.Recurring.IntervalCount = tc.count

			rec := Record(sub(price, 1), country.Unknown, nil)
			require.InDelta(t, tc.want, rec.MonthlyAmount, 0.001)
		})
	}
}

func TestRecordAppliesQuantity(t *testing.T) {
	rec := Record(sub(monthlyPrice(2900), 5), "United States", nil)
	require.InDelta(t, 145, rec.MonthlyAmount, 0.001)
	require.Equal(t, int64(5), rec.Quantity)
	require.Equal(t, "United States", rec.Country)
	require.Equal(t, "USD", rec.Currency)
}

func TestRecordFixedDiscountBeatsPercent(t *testing.T) {
	s := sub(monthlyPrice(2900), 2)
	s.Discount = &stripe.Discount{
		Coupon: &stripe.Coupon{AmountOff: 500, PercentOff: 50},
	}

	rec := Record(s, country.Unknown, nil)
	// 29 - 5 per unit, twice.
	require.InDelta(t, 48, rec.MonthlyAmount, 0.001)
}

func TestRecordFixedDiscountAppliesPerCycle(t *testing.T) {
	yearly := monthlyPrice(120000)
	yearly.Recurring.Interval = stripe.PriceRecurringIntervalYear
	s := sub(yearly, 1)
	s.Discount = &stripe.Discount{Coupon: &stripe.Coupon{AmountOff: 12000}}

	rec := Record(s, country.Unknown, nil)
	// (1200 - 120) per year is 90 per month.
	require.InDelta(t, 90, rec.MonthlyAmount, 0.001)

	quarterly := monthlyPrice(9000)
	quarterly.Recurring.IntervalCount = 3
	s = sub(quarterly, 1)
	s.Discount = &stripe.Discount{Coupon: &stripe.Coupon{AmountOff: 3000}}

	rec = Record(s, country.Unknown, nil)
	// (90 - 30) per quarter is 20 per month.
	require.InDelta(t, 20, rec.MonthlyAmount, 0.001)
}

func TestRecordPercentDiscount(t *testing.T) {
	s := sub(monthlyPrice(2900), 1)
	s.Discount = &stripe.Discount{Coupon: &stripe.Coupon{PercentOff: 25}}

	rec := Record(s, country.Unknown, nil)
	require.InDelta(t, 21.75, rec.MonthlyAmount, 0.001)
}

func TestRecordDiscountNeverGoesNegative(t *testing.T) {
	s := sub(monthlyPrice(500), 3)
	s.Discount = &stripe.Discount{Coupon: &stripe.Coupon{AmountOff: 2000}}

	rec := Record(s, country.Unknown, nil)
	require.Zero(t, rec.MonthlyAmount)
}

func TestRecordWithoutItems(t *testing.T) {
	s := &stripe.Subscription{ID: "sub_empty", Status: stripe.SubscriptionStatusCanceled}

	rec := Record(s, country.Unknown, nil)
	require.Equal(t, "Unknown plan", rec.PlanLabel)
	require.True(t, rec.MissingPrice)
	require.Zero(t, rec.MonthlyAmount)
	require.False(t, rec.Billable())
}

func TestPlanLabelPrefersNickname(t *testing.T) {
	price := monthlyPrice(2900)
	price.Nickname = "Pro"
	require.Equal(t, "Pro", PlanLabel(price))
}

func TestPlanLabelFromProduct(t *testing.T) {
	price := monthlyPrice(2900)
	price.Product = &stripe.Product{Name: "Starter"}
	require.Equal(t, "Starter - USD 29.00/month", PlanLabel(price))

	price.Recurring.IntervalCount = 3
	require.Equal(t, "Starter - USD 29.00 every 3 months", PlanLabel(price))
}

func TestPlanLabelFallsBackToPriceID(t *testing.T) {
	require.Equal(t, "Plan asic_xyz", PlanLabel(monthlyPrice(2900)))
}

func TestRecordEnrichesFromPriceMap(t *testing.T) {
	bare := monthlyPrice(2900)
	full := monthlyPrice(2900)
	full.Product = &stripe.Product{Name: "Starter"}

	rec := Record(sub(bare, 1), country.Unknown, map[string]*stripe.Price{full.ID: full})
	require.Equal(t, "Starter - USD 29.00/month", rec.PlanLabel)
}
