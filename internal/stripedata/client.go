package stripedata

import (
	"context"
	"net/http"
	"time"

	"github.com/smallbiznis/subsight/internal/config"
	connectiondomain "github.com/smallbiznis/subsight/internal/connection/domain"
	stripe "github.com/stripe/stripe-go/v79"
	stripec "github.com/stripe/stripe-go/v79/client"
	"go.uber.org/fx"
)

// Factory builds per-tenant Stripe clients. Every tenant brings its
// own API key, so clients cannot be shared.
type Factory struct {
	apiBase string
	holder  *config.AnalyticsConfigHolder
}

type FactoryParams struct {
	fx.In

	Config config.Config
	Holder *config.AnalyticsConfigHolder
}

func NewFactory(p FactoryParams) *Factory {
	return &Factory{
		apiBase: p.Config.StripeAPIBase,
		holder:  p.Holder,
	}
}

// NewClient builds a client bound to one API key.
func (f *Factory) NewClient(apiKey string) *stripec.API {
	backendCfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		LeveledLogger:     stripe.DefaultLeveledLogger,
		MaxNetworkRetries: stripe.Int64(int64(f.holder.Get().MaxNetworkRetries)),
	}
	if f.apiBase != "" {
		backendCfg.URL = stripe.String(f.apiBase)
	}

	api := &stripec.API{}
	api.Init(apiKey, &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
	})
	return api
}

// ValidateKey confirms the key can reach Stripe and returns the
// account it belongs to.
func (f *Factory) ValidateKey(ctx context.Context, apiKey string) (string, error) {
	_ = ctx
	api := f.NewClient(apiKey)
	account, err := api.Accounts.Get()
	if err != nil {
		return "", Classify(err)
	}
	return account.ID, nil
}

var _ connectiondomain.KeyValidator = (*Factory)(nil)

var Module = fx.Module("stripedata",
	fx.Provide(
		NewFactory,
		func(f *Factory) connectiondomain.KeyValidator { return f },
	),
)
