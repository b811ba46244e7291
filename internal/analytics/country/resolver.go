package country

import (
	"context"
	"strings"

	stripe "github.com/stripe/stripe-go/v79"
)

// Resolution sources, in probe order. Reported as a metric label.
const (
	SourceBillingAddress       = "billing_address"
	SourceShippingAddress      = "shipping_address"
	SourcePaymentMethod        = "payment_method"
	SourceDefaultPaymentMethod = "default_payment_method"
	SourceTaxLocation          = "tax_location"
	SourceMetadata             = "metadata"
	SourceInvoice              = "invoice"
	SourceCharge               = "charge"
	SourceUnknown              = "unknown"
)

// Prober looks up secondary Stripe resources for a customer. The
// stripedata fetcher satisfies it.
type Prober interface {
	CardPaymentMethods(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error)
	SetupIntentPaymentMethods(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error)
	PaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error)
	Invoices(ctx context.Context, customerID string) ([]*stripe.Invoice, error)
	Charges(ctx context.Context, customerID string) ([]*stripe.Charge, error)
}

// Resolver walks a fixed chain of sources until one yields a country.
// Probe failures are swallowed; a missing country must never fail a
// sync run, it only degrades the segment to Unknown.
type Resolver struct {
	prober Prober
}

func NewResolver(prober Prober) *Resolver {
	return &Resolver{prober: prober}
}

// Resolve returns the display name of the customer's country and the
// source that produced it. The first non-empty source wins.
func (r *Resolver) Resolve(ctx context.Context, customer *stripe.Customer) (string, string) {
	if customer == nil {
		return Unknown, SourceUnknown
	}

	if code := billingAddressCountry(customer); code != "" {
		return Name(code), SourceBillingAddress
	}
	if code := shippingAddressCountry(customer); code != "" {
		return Name(code), SourceShippingAddress
	}
	if code := r.cardCountry(ctx, customer.ID); code != "" {
		return Name(code), SourcePaymentMethod
	}
	if code := r.defaultPaymentMethodCountry(ctx, customer); code != "" {
		return Name(code), SourceDefaultPaymentMethod
	}
	if code := taxLocationCountry(customer); code != "" {
		return Name(code), SourceTaxLocation
	}
	if code := metadataCountry(customer); code != "" {
		return Name(code), SourceMetadata
	}
	if code := r.invoiceCountry(ctx, customer.ID); code != "" {
		return Name(code), SourceInvoice
	}
	if code := r.chargeCountry(ctx, customer.ID); code != "" {
		return Name(code), SourceCharge
	}
	return Unknown, SourceUnknown
}

func billingAddressCountry(customer *stripe.Customer) string {
	if customer.Address == nil {
		return ""
	}
	return strings.TrimSpace(customer.Address.Country)
}

func shippingAddressCountry(customer *stripe.Customer) string {
	if customer.Shipping == nil || customer.Shipping.Address == nil {
		return ""
	}
	return strings.TrimSpace(customer.Shipping.Address.Country)
}

func (r *Resolver) cardCountry(ctx context.Context, customerID string) string {
	if r.prober == nil {
		return ""
	}
	methods, err := r.prober.CardPaymentMethods(ctx, customerID)
	if err == nil {
		if code := firstPaymentMethodCountry(methods); code != "" {
			return code
		}
	}

	// Cards attached through setup intents do not always show up in
	// the payment method list.
	methods, err = r.prober.SetupIntentPaymentMethods(ctx, customerID)
	if err != nil {
		return ""
	}
	return firstPaymentMethodCountry(methods)
}

func (r *Resolver) defaultPaymentMethodCountry(ctx context.Context, customer *stripe.Customer) string {
	if customer.InvoiceSettings == nil || customer.InvoiceSettings.DefaultPaymentMethod == nil {
		return ""
	}
	pm := customer.InvoiceSettings.DefaultPaymentMethod
	if code := paymentMethodCountry(pm); code != "" {
		return code
	}
	if r.prober == nil || pm.ID == "" {
		return ""
	}
	fetched, err := r.prober.PaymentMethod(ctx, pm.ID)
	if err != nil {
		return ""
	}
	return paymentMethodCountry(fetched)
}

func taxLocationCountry(customer *stripe.Customer) string {
	if customer.Tax == nil || customer.Tax.Location == nil {
		return ""
	}
	return strings.TrimSpace(customer.Tax.Location.Country)
}

func metadataCountry(customer *stripe.Customer) string {
	for _, key := range []string{"country", "Country", "COUNTRY"} {
		if value, ok := customer.Metadata[key]; ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func (r *Resolver) invoiceCountry(ctx context.Context, customerID string) string {
	if r.prober == nil {
		return ""
	}
	invoices, err := r.prober.Invoices(ctx, customerID)
	if err != nil {
		return ""
	}
	for _, invoice := range invoices {
		if invoice.CustomerAddress != nil && invoice.CustomerAddress.Country != "" {
			return strings.TrimSpace(invoice.CustomerAddress.Country)
		}
	}
	return ""
}

func (r *Resolver) chargeCountry(ctx context.Context, customerID string) string {
	if r.prober == nil {
		return ""
	}
	charges, err := r.prober.Charges(ctx, customerID)
	if err != nil {
		return ""
	}
	for _, charge := range charges {
		if charge == nil {
			continue
		}
		if charge.BillingDetails != nil && charge.BillingDetails.Address != nil {
			if code := strings.TrimSpace(charge.BillingDetails.Address.Country); code != "" {
				return code
			}
		}
		if charge.PaymentMethodDetails == nil || charge.PaymentMethodDetails.Card == nil {
			continue
		}
		if code := strings.TrimSpace(charge.PaymentMethodDetails.Card.Country); code != "" {
			return code
		}
	}
	return ""
}

func firstPaymentMethodCountry(methods []*stripe.PaymentMethod) string {
	for _, pm := range methods {
		if code := paymentMethodCountry(pm); code != "" {
			return code
		}
	}
	return ""
}

// paymentMethodCountry prefers the cardholder's billing address over
// the card-issuing country, which is only a hint.
func paymentMethodCountry(pm *stripe.PaymentMethod) string {
	if pm == nil {
		return ""
	}
	if pm.BillingDetails != nil && pm.BillingDetails.Address != nil {
		if code := strings.TrimSpace(pm.BillingDetails.Address.Country); code != "" {
			return code
		}
	}
	if pm.Card != nil {
		return strings.TrimSpace(pm.Card.Country)
	}
	return ""
}
