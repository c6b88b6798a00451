// internal/app/system/workers/payoutrun.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/townboard/internal/app/payoutbatch"
	"go.uber.org/zap"
)

// runTimeout bounds one scheduled batch run.
const runTimeout = 5 * time.Minute

// Runner executes one payout batch run.
type Runner interface {
	Run(ctx context.Context, minimum int64) (*payoutbatch.Summary, error)
}

// PayoutRun is a background worker that executes the payout batch on a
// schedule with the configured minimum threshold.
type PayoutRun struct {
	runner   Runner
	minimum  int64
	interval time.Duration
	log      *zap.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewPayoutRun(runner Runner, minimum int64, interval time.Duration, logger *zap.Logger) *PayoutRun {
	return &PayoutRun{
		runner:   runner,
		minimum:  minimum,
		interval: interval,
		log:      logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the scheduled run loop.
func (w *PayoutRun) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("payout run worker started",
		zap.Duration("interval", w.interval),
		zap.Int64("minimum", w.minimum))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *PayoutRun) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("payout run worker stopped")
}

func (w *PayoutRun) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.execute()
		}
	}
}

func (w *PayoutRun) execute() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	summary, err := w.runner.Run(ctx, w.minimum)
	if err != nil {
		w.log.Error("scheduled payout run failed", zap.Error(err))
		return
	}
	if summary.Beneficiaries > 0 {
		w.log.Info("scheduled payout run finished",
			zap.String("run_id", summary.RunID),
			zap.Int("paid", summary.Paid),
			zap.Int("held", summary.Held),
			zap.Int("failed", len(summary.Failures)),
			zap.Int64("amount_paid", summary.AmountPaid))
	}
}
