// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig handles
// framework-level settings (ports, TLS, logging); AppConfig is everything
// specific to Townboard.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Billing provider configuration
	StripeSecretKey     string // API secret key
	StripeWebhookSecret string // webhook signature verification secret

	// Per-(service, cycle) price identifiers. Empty means the pair is not
	// offered; the onboarding flow fails with a configuration error.
	PriceAdvertiserMonthly string
	PriceAdvertiserAnnual  string
	PriceRecruiterMonthly  string
	PriceRecruiterAnnual   string

	// Invoice onboarding
	InvoiceDaysUntilDue int

	// Checkout redirect targets
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	// Identity provider
	FirebaseCredentialsFile string

	// Referral payouts
	PayoutMinimum    int64  // smallest currency unit
	PayoutCurrency   string // ISO currency code, lowercase
	PayoutInterval   time.Duration
	PayoutOnSchedule bool

	// Admin endpoints: bcrypt hash of the bearer key
	AdminAPIKeyHash string

	// Signed checkout-state cookie key (32+ bytes)
	StateCookieKey string
}
