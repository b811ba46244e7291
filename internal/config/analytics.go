package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AnalyticsConfig tunes the sync pipeline. Values are operator-adjustable
// without a redeploy; the holder reloads them on file change.
type AnalyticsConfig struct {
	// CustomerLifespanMonths is the assumed customer lifetime used for LTV.
	CustomerLifespanMonths int `mapstructure:"customerLifespanMonths"`
	// PageSize caps every Stripe list call.
	PageSize int `mapstructure:"pageSize"`
	// Country resolution probes secondary Stripe resources. These bound
	// how many records each probe inspects per customer.
	PaymentMethodLookback int `mapstructure:"paymentMethodLookback"`
	SetupIntentLookback   int `mapstructure:"setupIntentLookback"`
	InvoiceLookback       int `mapstructure:"invoiceLookback"`
	ChargeLookback        int `mapstructure:"chargeLookback"`
	// ResolverWorkers bounds concurrent per-customer country resolution.
	ResolverWorkers int `mapstructure:"resolverWorkers"`
	// StripeRatePerSec / StripeBurst throttle outbound Stripe calls.
	StripeRatePerSec float64 `mapstructure:"stripeRatePerSec"`
	StripeBurst      int     `mapstructure:"stripeBurst"`
	// MaxNetworkRetries is handed to the Stripe SDK backend.
	MaxNetworkRetries int `mapstructure:"maxNetworkRetries"`
}

func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		CustomerLifespanMonths: 24,
		PageSize:               100,
		PaymentMethodLookback:  20,
		SetupIntentLookback:    10,
		InvoiceLookback:        5,
		ChargeLookback:         5,
		ResolverWorkers:        4,
		StripeRatePerSec:       25,
		StripeBurst:            50,
		MaxNetworkRetries:      2,
	}
}

type AnalyticsConfigHolder struct {
	current atomic.Value // holds AnalyticsConfig
}

func NewAnalyticsConfigHolder() (*AnalyticsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("analytics")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/subsight/config") // Volume-mounted config
	v.AddConfigPath("/etc/subsight")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("SUBSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	defaults := DefaultAnalyticsConfig()
	v.SetDefault("analytics.customerLifespanMonths", defaults.CustomerLifespanMonths)
	v.SetDefault("analytics.pageSize", defaults.PageSize)
	v.SetDefault("analytics.paymentMethodLookback", defaults.PaymentMethodLookback)
	v.SetDefault("analytics.setupIntentLookback", defaults.SetupIntentLookback)
	v.SetDefault("analytics.invoiceLookback", defaults.InvoiceLookback)
	v.SetDefault("analytics.chargeLookback", defaults.ChargeLookback)
	v.SetDefault("analytics.resolverWorkers", defaults.ResolverWorkers)
	v.SetDefault("analytics.stripeRatePerSec", defaults.StripeRatePerSec)
	v.SetDefault("analytics.stripeBurst", defaults.StripeBurst)
	v.SetDefault("analytics.maxNetworkRetries", defaults.MaxNetworkRetries)

	var cfg AnalyticsConfig
	if err := v.UnmarshalKey("analytics", &cfg); err != nil {
		return nil, err
	}
	if err := validateAnalyticsConfig(cfg); err != nil {
		return nil, err
	}

	holder := &AnalyticsConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AnalyticsConfig
		if err := v.UnmarshalKey("analytics", &updated); err != nil {
			log.Printf("[analytics-config] reload failed: %v", err)
			return
		}
		if err := validateAnalyticsConfig(updated); err != nil {
			log.Printf("[analytics-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[analytics-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *AnalyticsConfigHolder) Get() AnalyticsConfig {
	return h.current.Load().(AnalyticsConfig)
}

// NewStaticAnalyticsConfigHolder wraps a fixed config, used by tests.
func NewStaticAnalyticsConfigHolder(cfg AnalyticsConfig) *AnalyticsConfigHolder {
	holder := &AnalyticsConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateAnalyticsConfig(cfg AnalyticsConfig) error {
	if cfg.CustomerLifespanMonths <= 0 {
		return errors.New("analytics.customerLifespanMonths must be positive")
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		return errors.New("analytics.pageSize must be between 1 and 100")
	}
	if cfg.ResolverWorkers <= 0 {
		return errors.New("analytics.resolverWorkers must be positive")
	}
	if cfg.StripeRatePerSec <= 0 || cfg.StripeBurst <= 0 {
		return errors.New("analytics stripe rate limits must be positive")
	}
	return nil
}
