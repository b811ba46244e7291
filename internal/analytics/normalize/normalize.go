// Package normalize reduces Stripe subscriptions to the flat records
// the aggregation math runs on. All amounts leave this package in
// major currency units, normalized to a monthly cadence.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/smallbiznis/subsight/internal/analytics/domain"
)

// Record flattens one subscription. country is the already-resolved
// customer country name. prices supplies product detail for plan
// labels when the subscription item carries only a bare price.
func Record(sub *stripe.Subscription, country string, prices map[string]*stripe.Price) domain.SubscriptionRecord {
	rec := domain.SubscriptionRecord{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		Country:            country,
		Created:            unixTime(sub.Created),
		StartDate:          unixTime(sub.StartDate),
		CurrentPeriodStart: unixTime(sub.CurrentPeriodStart),
		Quantity:           1,
	}
	if sub.Customer != nil {
		rec.CustomerID = sub.Customer.ID
	}

	price := itemPrice(sub)
	if price == nil {
		rec.PlanLabel = "Unknown plan"
		rec.MissingPrice = true
		return rec
	}
	if enriched, ok := prices[price.ID]; ok {
		price = enriched
	}

	if qty := itemQuantity(sub); qty > 0 {
		rec.Quantity = qty
	}
	rec.Currency = strings.ToUpper(string(price.Currency))
	rec.PlanLabel = PlanLabel(price)

	// Discount applies to the billed cycle amount, so it must come off
	// before the interval conversion. A yearly $1200 price with $120
	// off is $1080/year, not $100/month minus $120.
	perCycle := float64(price.UnitAmount) / 100
	perCycle -= discountAmount(sub, perCycle)
	if perCycle < 0 {
		perCycle = 0
	}
	rec.MonthlyAmount = toMonthly(price, perCycle) * float64(rec.Quantity)
	return rec
}

// unixTime keeps unset Stripe timestamps as the zero time instead of
// the epoch.
func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func itemPrice(sub *stripe.Subscription) *stripe.Price {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0].Price
}

func itemQuantity(sub *stripe.Subscription) int64 {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return 0
	}
	return sub.Items.Data[0].Quantity
}

// toMonthly converts a per-cycle amount in major units to a per-month
// figure. Intervals other than month, year, week and day are treated
// as monthly.
func toMonthly(price *stripe.Price, amount float64) float64 {
	interval := stripe.PriceRecurringIntervalMonth
	count := float64(1)
	if price.Recurring != nil {
		interval = price.Recurring.Interval
		if price.Recurring.IntervalCount > 0 {
			count = float64(price.Recurring.IntervalCount)
		}
	}

	switch interval {
	case stripe.PriceRecurringIntervalYear:
		return amount / 12 / count
	case stripe.PriceRecurringIntervalWeek:
		return amount * 52 / 12 / count
	case stripe.PriceRecurringIntervalDay:
		return amount * 365 / 12 / count
	default:
		return amount / count
	}
}

// discountAmount returns the per-cycle discount in major units. A
// fixed amount_off wins over percent_off when a coupon carries both.
func discountAmount(sub *stripe.Subscription, perCycle float64) float64 {
	if sub.Discount == nil || sub.Discount.Coupon == nil {
		return 0
	}
	coupon := sub.Discount.Coupon
	if coupon.AmountOff > 0 {
		return float64(coupon.AmountOff) / 100
	}
	if coupon.PercentOff > 0 {
		return perCycle * coupon.PercentOff / 100
	}
	return 0
}

// PlanLabel names a price for segment values. Preference order is the
// operator-set nickname, then a "Product - USD 29.00/month" style
// description ("Product - USD 29.00 every 3 months" for multi-cycle
// intervals), then a suffix of the price ID.
func PlanLabel(price *stripe.Price) string {
	if price.Nickname != "" {
		return price.Nickname
	}
	if price.Product != nil && price.Product.Name != "" {
		currency := strings.ToUpper(string(price.Currency))
		amount := float64(price.UnitAmount) / 100
		if r := price.Recurring; r != nil && r.IntervalCount > 1 {
			return fmt.Sprintf("%s - %s %.2f every %d %ss",
				price.Product.Name, currency, amount, r.IntervalCount, r.Interval)
		}
		return fmt.Sprintf("%s - %s %.2f/%s",
			price.Product.Name, currency, amount, intervalLabel(price))
	}
	id := price.ID
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return "Plan " + id
}

func intervalLabel(price *stripe.Price) string {
	if price.Recurring == nil {
		return "one_time"
	}
	return string(price.Recurring.Interval)
}
