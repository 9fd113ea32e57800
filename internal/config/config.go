package config

import (
	"os"

	"github.com/shopspring/decimal"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   string
	JaegerEndpoint string

	MaxPaymentAmount decimal.Decimal
	DefaultProvider  string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string

	PayPalClientID      string
	PayPalClientSecret  string
	PayPalWebhookSecret string
	PayPalBaseURL       string

	Providers []models.ProviderConfig
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	maxAmount := decimal.NewFromInt(10000)
	if raw := os.Getenv("MAX_PAYMENT_AMOUNT"); raw != "" {
		if parsed, err := decimal.NewFromString(raw); err == nil && parsed.IsPositive() {
			maxAmount = parsed
		}
	}

	defaultProvider := os.Getenv("DEFAULT_PROVIDER")
	if defaultProvider == "" {
		defaultProvider = "stripe"
	}

	stripeBaseURL := os.Getenv("STRIPE_BASE_URL")
	if stripeBaseURL == "" {
		stripeBaseURL = "https://api.stripe.com"
	}

	paypalBaseURL := os.Getenv("PAYPAL_BASE_URL")
	if paypalBaseURL == "" {
		paypalBaseURL = "https://api-m.paypal.com"
	}

	return &Config{
		Port:           port,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),

		MaxPaymentAmount: maxAmount,
		DefaultProvider:  defaultProvider,

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:       stripeBaseURL,

		PayPalClientID:      os.Getenv("PAYPAL_CLIENT_ID"),
		PayPalClientSecret:  os.Getenv("PAYPAL_CLIENT_SECRET"),
		PayPalWebhookSecret: os.Getenv("PAYPAL_WEBHOOK_SECRET"),
		PayPalBaseURL:       paypalBaseURL,

		Providers: DefaultProviders(),
	}
}

// DefaultProviders returns the built-in provider catalogue. Fee schedules
// are frozen into each transaction at processing time, so changing these
// never rewrites history.
func DefaultProviders() []models.ProviderConfig {
	return []models.ProviderConfig{
		{
			Name:                "stripe",
			Active:              true,
			SupportedCurrencies: []string{"USD", "EUR", "GBP", "CAD", "AUD", "JPY"},
			SupportedCountries:  []string{"US", "CA", "GB", "DE", "FR", "AU", "JP"},
			Fees: models.FeeSchedule{
				Percentage: decimal.NewFromFloat(2.9),
				Fixed:      decimal.NewFromFloat(0.30),
				Currency:   "USD",
			},
		},
		{
			Name:                "paypal",
			Active:              true,
			SupportedCurrencies: []string{"USD", "EUR", "GBP", "MXN", "BRL"},
			SupportedCountries:  []string{},
			Fees: models.FeeSchedule{
				Percentage: decimal.NewFromFloat(3.49),
				Fixed:      decimal.NewFromFloat(0.49),
				Currency:   "USD",
			},
		},
	}
}
