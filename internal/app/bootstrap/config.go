// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for Townboard.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, stripe_secret_key, etc.
//   - Environment variables: TOWNBOARD_MONGO_URI, TOWNBOARD_STRIPE_SECRET_KEY, etc.
//   - Command-line flags: --mongo_uri, --stripe_secret_key, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "townboard", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size"},

	// Billing provider
	{Name: "stripe_secret_key", Default: "", Desc: "Billing provider API secret key"},
	{Name: "stripe_webhook_secret", Default: "", Desc: "Webhook signature verification secret"},

	// Price identifiers per (service, billing cycle)
	{Name: "price_advertiser_monthly", Default: "", Desc: "Price id for advertiser/monthly"},
	{Name: "price_advertiser_annual", Default: "", Desc: "Price id for advertiser/annual"},
	{Name: "price_recruiter_monthly", Default: "", Desc: "Price id for recruiter/monthly"},
	{Name: "price_recruiter_annual", Default: "", Desc: "Price id for recruiter/annual"},

	// Invoice onboarding
	{Name: "invoice_days_until_due", Default: 30, Desc: "Payment terms for bank-transfer invoices"},

	// Checkout redirect targets
	{Name: "checkout_success_url", Default: "http://localhost:3000/onboard/checkout/return", Desc: "URL the provider redirects to after successful checkout"},
	{Name: "checkout_cancel_url", Default: "http://localhost:3000/onboard/checkout/return", Desc: "URL the provider redirects to after canceled checkout"},

	// Identity provider
	{Name: "firebase_credentials_file", Default: "", Desc: "Path to the identity provider service-account credentials file"},

	// Referral payouts
	{Name: "payout_minimum", Default: 3000, Desc: "Minimum aggregate payout per beneficiary (smallest currency unit)"},
	{Name: "payout_currency", Default: "usd", Desc: "Payout currency code"},
	{Name: "payout_interval", Default: "24h", Desc: "Scheduled payout batch interval"},
	{Name: "payout_on_schedule", Default: true, Desc: "Run the payout batch on a schedule (admin trigger always works)"},

	// Admin endpoints
	{Name: "admin_api_key_hash", Default: "", Desc: "bcrypt hash of the admin bearer key"},

	// Signed checkout-state cookie
	{Name: "state_cookie_key", Default: "dev-only-change-me-please-0123456789AB", Desc: "Signing key for the checkout state cookie (must be strong in production)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "TOWNBOARD", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		StripeSecretKey:     appValues.String("stripe_secret_key"),
		StripeWebhookSecret: appValues.String("stripe_webhook_secret"),

		PriceAdvertiserMonthly: appValues.String("price_advertiser_monthly"),
		PriceAdvertiserAnnual:  appValues.String("price_advertiser_annual"),
		PriceRecruiterMonthly:  appValues.String("price_recruiter_monthly"),
		PriceRecruiterAnnual:   appValues.String("price_recruiter_annual"),

		InvoiceDaysUntilDue: appValues.Int("invoice_days_until_due"),

		CheckoutSuccessURL: appValues.String("checkout_success_url"),
		CheckoutCancelURL:  appValues.String("checkout_cancel_url"),

		FirebaseCredentialsFile: appValues.String("firebase_credentials_file"),

		PayoutMinimum:    int64(appValues.Int("payout_minimum")),
		PayoutCurrency:   appValues.String("payout_currency"),
		PayoutInterval:   appValues.Duration("payout_interval", 24*time.Hour),
		PayoutOnSchedule: appValues.Bool("payout_on_schedule"),

		AdminAPIKeyHash: appValues.String("admin_api_key_hash"),

		StateCookieKey: appValues.String("state_cookie_key"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Configuration errors are fatal and fail fast here, before any backend
// is touched: a missing billing secret or webhook secret can never be
// repaired by retrying requests against it.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.StripeSecretKey == "" {
		return fmt.Errorf("stripe_secret_key is required")
	}
	if appCfg.StripeWebhookSecret == "" {
		return fmt.Errorf("stripe_webhook_secret is required")
	}
	if appCfg.AdminAPIKeyHash == "" {
		return fmt.Errorf("admin_api_key_hash is required")
	}
	if appCfg.PayoutMinimum < 0 {
		return fmt.Errorf("payout_minimum must not be negative")
	}
	if len(appCfg.StateCookieKey) < 32 {
		return fmt.Errorf("state_cookie_key must be at least 32 bytes")
	}

	if appCfg.PriceAdvertiserMonthly == "" && appCfg.PriceAdvertiserAnnual == "" &&
		appCfg.PriceRecruiterMonthly == "" && appCfg.PriceRecruiterAnnual == "" {
		logger.Warn("no prices configured; every onboarding attempt will fail")
	}

	return nil
}
