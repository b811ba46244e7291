package country

import (
	"context"
	"errors"
	"testing"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	cards       []*stripe.PaymentMethod
	cardsErr    error
	setupCards  []*stripe.PaymentMethod
	byID        map[string]*stripe.PaymentMethod
	invoices    []*stripe.Invoice
	charges     []*stripe.Charge
	chargesErr  error
	invoicesErr error
}

func (f *fakeProber) CardPaymentMethods(context.Context, string) ([]*stripe.PaymentMethod, error) {
	return f.cards, f.cardsErr
}

func (f *fakeProber) SetupIntentPaymentMethods(context.Context, string) ([]*stripe.PaymentMethod, error) {
	return f.setupCards, nil
}

func (f *fakeProber) PaymentMethod(_ context.Context, id string) (*stripe.PaymentMethod, error) {
	if pm, ok := f.byID[id]; ok {
		return pm, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeProber) Invoices(context.Context, string) ([]*stripe.Invoice, error) {
	return f.invoices, f.invoicesErr
}

func (f *fakeProber) Charges(context.Context, string) ([]*stripe.Charge, error) {
	return f.charges, f.chargesErr
}

func cardPM(countryCode string) *stripe.PaymentMethod {
	return &stripe.PaymentMethod{Card: &stripe.PaymentMethodCard{Country: countryCode}}
}

func billingPM(countryCode string) *stripe.PaymentMethod {
	return &stripe.PaymentMethod{
		BillingDetails: &stripe.PaymentMethodBillingDetails{
			Address: &stripe.Address{Country: countryCode},
		},
	}
}

func TestResolveBillingAddressWins(t *testing.T) {
	resolver := NewResolver(&fakeProber{cards: []*stripe.PaymentMethod{cardPM("DE")}})
	customer := &stripe.Customer{
		ID:      "cus_1",
		Address: &stripe.Address{Country: "US"},
	}

	name, source := resolver.Resolve(context.Background(), customer)
	require.Equal(t, "United States", name)
	require.Equal(t, SourceBillingAddress, source)
}

func TestResolveShippingBeforeCards(t *testing.T) {
	resolver := NewResolver(&fakeProber{cards: []*stripe.PaymentMethod{cardPM("DE")}})
	customer := &stripe.Customer{
		ID: "cus_1",
		Shipping: &stripe.ShippingDetails{
			Address: &stripe.Address{Country: "GB"},
		},
	}

	name, source := resolver.Resolve(context.Background(), customer)
	require.Equal(t, "United Kingdom", name)
	require.Equal(t, SourceShippingAddress, source)
}

func TestResolvePaymentMethodBillingAddress(t *testing.T) {
	resolver := NewResolver(&fakeProber{cards: []*stripe.PaymentMethod{billingPM("DE")}})

	name, source := resolver.Resolve(context.Background(), &stripe.Customer{ID: "cus_1"})
	require.Equal(t, "Germany", name)
	require.Equal(t, SourcePaymentMethod, source)
}

func TestResolvePaymentMethodBillingAddressBeatsCardCountry(t *testing.T) {
	pm := billingPM("DE")
	pm.Card = &stripe.PaymentMethodCard{Country: "US"}
	resolver := NewResolver(&fakeProber{cards: []*stripe.PaymentMethod{pm}})

	name, _ := resolver.Resolve(context.Background(), &stripe.Customer{ID: "cus_1"})
	require.Equal(t, "Germany", name)
}

func TestResolveCardCountry(t *testing.T) {
	resolver := NewResolver(&fakeProber{cards: []*stripe.PaymentMethod{cardPM("FR")}})

	name, source := resolver.Resolve(context.Background(), &stripe.Customer{ID: "cus_1"})
	require.Equal(t, "France", name)
	require.Equal(t, SourcePaymentMethod, source)
}

func TestResolveFallsBackToSetupIntentCards(t *testing.T) {
	resolver := NewResolver(&fakeProber{
		cardsErr:   errors.New("boom"),
		setupCards: []*stripe.PaymentMethod{cardPM("CA")},
	})

	name, source := resolver.Resolve(context.Background(), &stripe.Customer{ID: "cus_1"})
	require.Equal(t, "Canada", name)
	require.Equal(t, SourcePaymentMethod, source)
}

func TestResolveDefaultPaymentMethodByFetch(t *testing.T) {
	resolver := NewResolver(&fakeProber{
		byID: map[string]*stripe.PaymentMethod{"pm_1": cardPM("AU")},
	})
	customer := &stripe.Customer{
		ID: "cus_1",
		InvoiceSettings: &stripe.CustomerInvoiceSettings{
			DefaultPaymentMethod: &stripe.PaymentMethod{ID: "pm_1"},
		},
	}

	name, source := resolver.Resolve(context.Background(), customer)
	require.Equal(t, "Australia", name)
	require.Equal(t, SourceDefaultPaymentMethod, source)
}

func TestResolveTaxLocation(t *testing.T) {
	resolver := NewResolver(&fakeProber{})
	customer := &stripe.Customer{
		ID: "cus_1",
		Tax: &stripe.CustomerTax{
			Location: &stripe.CustomerTaxLocation{Country: "NL"},
		},
	}

	name, source := resolver.Resolve(context.Background(), customer)
	require.Equal(t, "Netherlands", name)
	require.Equal(t, SourceTaxLocation, source)
}

func TestResolveMetadata(t *testing.T) {
	resolver := NewResolver(&fakeProber{})
	customer := &stripe.Customer{
		ID:       "cus_1",
		Metadata: map[string]string{"country": "SE"},
	}

	name, source := resolver.Resolve(context.Background(), customer)
	require.Equal(t, "Sweden", name)
	require.Equal(t, SourceMetadata, source)
}

func TestResolveInvoiceThenCharge(t *testing.T) {
	resolver := NewResolver(&fakeProber{
		invoices: []*stripe.Invoice{
			{CustomerAddress: &stripe.Address{Country: "IT"}},
		},
	})
	name, source := resolver.Resolve(context.Background(), &stripe.Customer{ID: "cus_1"})
	require.Equal(t, "Italy", name)
	require.Equal(t, SourceInvoice, source)

	resolver = NewResolver(&fakeProber{
		invoicesErr: errors.New("boom"),
		charges: []*stripe.Charge{
			{BillingDetails: &stripe.ChargeBillingDetails{
				Address: &stripe.Address{Country: "ES"},
			}},
		},
	})
	name, source = resolver.Resolve(context.Background(), &stripe.Customer{ID: "cus_1"})
	require.Equal(t, "Spain", name)
	require.Equal(t, SourceCharge, source)

	resolver = NewResolver(&fakeProber{
		invoicesErr: errors.New("boom"),
		charges: []*stripe.Charge{
			{PaymentMethodDetails: &stripe.ChargePaymentMethodDetails{
				Card: &stripe.ChargePaymentMethodDetailsCard{Country: "PT"},
			}},
		},
	})
	name, _ = resolver.Resolve(context.Background(), &stripe.Customer{ID: "cus_1"})
	require.Equal(t, "Portugal", name)
}

func TestResolveUnknown(t *testing.T) {
	resolver := NewResolver(&fakeProber{
		cardsErr:    errors.New("boom"),
		invoicesErr: errors.New("boom"),
		chargesErr:  errors.New("boom"),
	})

	name, source := resolver.Resolve(context.Background(), &stripe.Customer{ID: "cus_1"})
	require.Equal(t, Unknown, name)
	require.Equal(t, SourceUnknown, source)
}

func TestNameMapping(t *testing.T) {
	require.Equal(t, "United States", Name("us"))
	require.Equal(t, "United States", Name("USA"))
	require.Equal(t, "United Kingdom", Name("UK"))
	require.Equal(t, "Brazil", Name("br"))
	require.Equal(t, "Japan", Name("JPN"))
	require.Equal(t, "Vatican City", Name("VA"))
	require.Equal(t, "Andorra", Name("AND"))
	require.Equal(t, Unknown, Name(""))
	// Unmapped codes pass through as given.
	require.Equal(t, "zz", Name("zz"))
}
