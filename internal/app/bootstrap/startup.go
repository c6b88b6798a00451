// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/townboard/internal/app/payoutbatch"
	payoutstore "github.com/dalemusser/townboard/internal/app/store/payouts"
	userstore "github.com/dalemusser/townboard/internal/app/store/users"
	"github.com/dalemusser/townboard/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// payoutWorker is started here and stopped in Shutdown.
var payoutWorker *workers.PayoutRun

// Startup runs one-time application initialization after DB connections
// and schema setup are complete, but before the HTTP handler is built.
// The scheduled payout batch worker is started here; the admin trigger
// endpoint works regardless.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if !appCfg.PayoutOnSchedule {
		logger.Info("scheduled payout batch disabled")
		return nil
	}

	runner := payoutbatch.NewRunner(
		payoutstore.New(deps.MongoDatabase),
		userstore.New(deps.MongoDatabase),
		deps.Billing,
		appCfg.PayoutCurrency,
		logger,
	)
	payoutWorker = workers.NewPayoutRun(runner, appCfg.PayoutMinimum, appCfg.PayoutInterval, logger)
	payoutWorker.Start()
	return nil
}
