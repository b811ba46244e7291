package stripedata

import (
	"context"

	"github.com/smallbiznis/subsight/internal/config"
	"github.com/smallbiznis/subsight/internal/observability/metrics"
	"github.com/smallbiznis/subsight/internal/ratelimit"
	stripe "github.com/stripe/stripe-go/v79"
	stripec "github.com/stripe/stripe-go/v79/client"
)

// Fetcher reads billing data for one connected account. Every list is
// a single page; Single keeps the iterators from paginating past the
// configured limit behind our back.
type Fetcher struct {
	api       *stripec.API
	limiter   *ratelimit.StripeLimiter
	metrics   *metrics.SyncMetrics
	accountID string
	cfg       config.AnalyticsConfig
}

func NewFetcher(api *stripec.API, limiter *ratelimit.StripeLimiter, m *metrics.SyncMetrics, accountID string, cfg config.AnalyticsConfig) *Fetcher {
	return &Fetcher{
		api:       api,
		limiter:   limiter,
		metrics:   m,
		accountID: accountID,
		cfg:       cfg,
	}
}

func (f *Fetcher) listParams(ctx context.Context, limit int) stripe.ListParams {
	if limit <= 0 || limit > f.cfg.PageSize {
		limit = f.cfg.PageSize
	}
	return stripe.ListParams{
		Context: ctx,
		Limit:   stripe.Int64(int64(limit)),
		Single:  true,
	}
}

func (f *Fetcher) throttle(ctx context.Context, resource string) error {
	if f.limiter == nil {
		return nil
	}
	waited, err := f.limiter.Wait(ctx, f.accountID)
	f.metrics.ObserveThrottleWait(waited)
	if err != nil {
		f.metrics.RecordStripeRequest(resource, metrics.StripeOutcomeOther)
	}
	return err
}

func (f *Fetcher) observe(resource string, err error) error {
	if err == nil {
		f.metrics.RecordStripeRequest(resource, metrics.StripeOutcomeOK)
		return nil
	}
	classified := Classify(err)
	switch {
	case IsAuthorization(classified):
		f.metrics.RecordStripeRequest(resource, metrics.StripeOutcomeAuth)
	case IsTransient(classified):
		f.metrics.RecordStripeRequest(resource, metrics.StripeOutcomeTransient)
	default:
		f.metrics.RecordStripeRequest(resource, metrics.StripeOutcomeOther)
	}
	return classified
}

// Subscriptions returns one page of subscriptions in any status.
func (f *Fetcher) Subscriptions(ctx context.Context) ([]*stripe.Subscription, error) {
	if err := f.throttle(ctx, "subscriptions"); err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionListParams{
		Status: stripe.String("all"),
	}
	params.ListParams = f.listParams(ctx, 0)

	var subs []*stripe.Subscription
	iter := f.api.Subscriptions.List(params)
	for iter.Next() {
		subs = append(subs, iter.Subscription())
	}
	if err := f.observe("subscriptions", iter.Err()); err != nil {
		return nil, err
	}
	return subs, nil
}

// Customers returns one page of customers.
func (f *Fetcher) Customers(ctx context.Context) ([]*stripe.Customer, error) {
	if err := f.throttle(ctx, "customers"); err != nil {
		return nil, err
	}

	params := &stripe.CustomerListParams{}
	params.ListParams = f.listParams(ctx, 0)

	var customers []*stripe.Customer
	iter := f.api.Customers.List(params)
	for iter.Next() {
		customers = append(customers, iter.Customer())
	}
	if err := f.observe("customers", iter.Err()); err != nil {
		return nil, err
	}
	return customers, nil
}

// Prices returns one page of prices, used as a fallback when a
// subscription item does not embed its price.
func (f *Fetcher) Prices(ctx context.Context) ([]*stripe.Price, error) {
	if err := f.throttle(ctx, "prices"); err != nil {
		return nil, err
	}

	params := &stripe.PriceListParams{}
	params.ListParams = f.listParams(ctx, 0)
	params.AddExpand("data.product")

	var prices []*stripe.Price
	iter := f.api.Prices.List(params)
	for iter.Next() {
		prices = append(prices, iter.Price())
	}
	if err := f.observe("prices", iter.Err()); err != nil {
		return nil, err
	}
	return prices, nil
}

// CardPaymentMethods returns a customer's card payment methods.
func (f *Fetcher) CardPaymentMethods(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error) {
	if err := f.throttle(ctx, "payment_methods"); err != nil {
		return nil, err
	}

	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String("card"),
	}
	params.ListParams = f.listParams(ctx, f.cfg.PaymentMethodLookback)

	var methods []*stripe.PaymentMethod
	iter := f.api.PaymentMethods.List(params)
	for iter.Next() {
		methods = append(methods, iter.PaymentMethod())
	}
	if err := f.observe("payment_methods", iter.Err()); err != nil {
		return nil, err
	}
	return methods, nil
}

// SetupIntentPaymentMethods returns payment methods attached through
// recent setup intents, expanded inline.
func (f *Fetcher) SetupIntentPaymentMethods(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error) {
	if err := f.throttle(ctx, "setup_intents"); err != nil {
		return nil, err
	}

	params := &stripe.SetupIntentListParams{
		Customer: stripe.String(customerID),
	}
	params.ListParams = f.listParams(ctx, f.cfg.SetupIntentLookback)
	params.AddExpand("data.payment_method")

	var methods []*stripe.PaymentMethod
	iter := f.api.SetupIntents.List(params)
	for iter.Next() {
		if pm := iter.SetupIntent().PaymentMethod; pm != nil {
			methods = append(methods, pm)
		}
	}
	if err := f.observe("setup_intents", iter.Err()); err != nil {
		return nil, err
	}
	return methods, nil
}

// PaymentMethod fetches a single payment method by id.
func (f *Fetcher) PaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error) {
	if err := f.throttle(ctx, "payment_methods"); err != nil {
		return nil, err
	}

	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := f.api.PaymentMethods.Get(id, params)
	if err := f.observe("payment_methods", err); err != nil {
		return nil, err
	}
	return pm, nil
}

// Invoices returns a customer's most recent invoices.
func (f *Fetcher) Invoices(ctx context.Context, customerID string) ([]*stripe.Invoice, error) {
	if err := f.throttle(ctx, "invoices"); err != nil {
		return nil, err
	}

	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
	}
	params.ListParams = f.listParams(ctx, f.cfg.InvoiceLookback)

	var invoices []*stripe.Invoice
	iter := f.api.Invoices.List(params)
	for iter.Next() {
		invoices = append(invoices, iter.Invoice())
	}
	if err := f.observe("invoices", iter.Err()); err != nil {
		return nil, err
	}
	return invoices, nil
}

// Charges returns a customer's most recent charges.
func (f *Fetcher) Charges(ctx context.Context, customerID string) ([]*stripe.Charge, error) {
	if err := f.throttle(ctx, "charges"); err != nil {
		return nil, err
	}

	params := &stripe.ChargeListParams{
		Customer: stripe.String(customerID),
	}
	params.ListParams = f.listParams(ctx, f.cfg.ChargeLookback)

	var charges []*stripe.Charge
	iter := f.api.Charges.List(params)
	for iter.Next() {
		charges = append(charges, iter.Charge())
	}
	if err := f.observe("charges", iter.Err()); err != nil {
		return nil, err
	}
	return charges, nil
}
