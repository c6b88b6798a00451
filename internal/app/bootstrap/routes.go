// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	healthfeature "github.com/dalemusser/townboard/internal/app/features/health"
	onboardfeature "github.com/dalemusser/townboard/internal/app/features/onboard"
	payoutadminfeature "github.com/dalemusser/townboard/internal/app/features/payoutadmin"
	webhooksfeature "github.com/dalemusser/townboard/internal/app/features/webhooks"
	"github.com/dalemusser/townboard/internal/app/billing"
	"github.com/dalemusser/townboard/internal/app/onboarding"
	"github.com/dalemusser/townboard/internal/app/payoutbatch"
	payoutstore "github.com/dalemusser/townboard/internal/app/store/payouts"
	userstore "github.com/dalemusser/townboard/internal/app/store/users"
	"github.com/dalemusser/townboard/internal/app/subscription"
	"github.com/dalemusser/townboard/internal/app/system/adminauth"
	"github.com/dalemusser/townboard/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed. The three cores (onboarding flow, subscription
// event processor, payout batch runner) are wired here over the shared
// stores and provider adapters.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	users := userstore.New(deps.MongoDatabase)
	payouts := payoutstore.New(deps.MongoDatabase)

	flow := onboarding.NewFlow(users, deps.Identity, deps.Billing, onboarding.Config{
		Prices:              priceTable(appCfg),
		InvoiceDaysUntilDue: int64(appCfg.InvoiceDaysUntilDue),
		CheckoutSuccessURL:  appCfg.CheckoutSuccessURL,
		CheckoutCancelURL:   appCfg.CheckoutCancelURL,
	}, logger)

	processor := subscription.NewProcessor(users, deps.Billing, deps.Identity, logger)
	runner := payoutbatch.NewRunner(payouts, users, deps.Billing, appCfg.PayoutCurrency, logger)

	state := securecookie.New([]byte(appCfg.StateCookieKey), nil)

	r := chi.NewRouter()

	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	webhookHandler := webhooksfeature.NewHandler(deps.Verifier, processor, logger)
	r.Mount("/webhooks", webhooksfeature.Routes(webhookHandler))

	onboardHandler := onboardfeature.NewHandler(flow, state, logger)
	r.Mount("/onboard", onboardfeature.Routes(onboardHandler))

	requireAdmin := adminauth.Middleware(appCfg.AdminAPIKeyHash, logger)
	payoutHandler := payoutadminfeature.NewHandler(runner, appCfg.PayoutMinimum, logger)
	r.Mount("/admin/payouts", payoutadminfeature.Routes(payoutHandler, requireAdmin))

	return r, nil
}

// priceTable folds the configured price ids into the billing lookup table,
// skipping pairs that are not offered.
func priceTable(appCfg AppConfig) billing.PriceTable {
	t := billing.PriceTable{}
	add := func(svc models.Service, cycle models.BillingCycle, id string) {
		if id != "" {
			t[billing.PriceKey{Service: svc, Cycle: cycle}] = id
		}
	}
	add(models.ServiceAdvertiser, models.CycleMonthly, appCfg.PriceAdvertiserMonthly)
	add(models.ServiceAdvertiser, models.CycleAnnual, appCfg.PriceAdvertiserAnnual)
	add(models.ServiceRecruiter, models.CycleMonthly, appCfg.PriceRecruiterMonthly)
	add(models.ServiceRecruiter, models.CycleAnnual, appCfg.PriceRecruiterAnnual)
	return t
}
