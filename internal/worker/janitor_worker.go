package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/ayo6706/trade-escrow/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultJanitorSchedule runs the sweep every five minutes.
const DefaultJanitorSchedule = "*/5 * * * *"

// JanitorWorker runs the janitor sweep on a cron schedule.
type JanitorWorker struct {
	svc      *service.JanitorService
	schedule string
	timeout  time.Duration
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewJanitorWorker parses schedule as a standard five-field cron expression.
func NewJanitorWorker(svc *service.JanitorService, schedule string) (*JanitorWorker, error) {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return &JanitorWorker{
		svc:      svc,
		schedule: schedule,
		timeout:  time.Minute,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}, nil
}

// Run registers the sweep, starts the scheduler and returns a stop function that waits
// for a running sweep to finish.
func (w *JanitorWorker) Run(ctx context.Context) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil, fmt.Errorf("janitor worker already running")
	}
	if _, err := w.cron.AddFunc(w.schedule, func() { w.RunOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule janitor: %w", err)
	}
	w.running = true
	zap.L().Info("janitor worker starting", zap.String("schedule", w.schedule))
	w.cron.Start()
	return w.stop, nil
}

func (w *JanitorWorker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	<-w.cron.Stop().Done()
	w.running = false
	zap.L().Info("janitor worker stopped")
}

// RunOnce performs a single sweep bounded by the worker timeout.
func (w *JanitorWorker) RunOnce(ctx context.Context) service.JanitorReport {
	if ctx.Err() != nil {
		return service.JanitorReport{}
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	report, err := w.svc.Sweep(ctx)
	if err != nil {
		observability.IncrementWorkerRun("janitor", "failed")
		zap.L().Error("janitor sweep failed", zap.Error(err))
		return report
	}
	observability.IncrementWorkerRun("janitor", "success")
	zap.L().Debug("janitor sweep finished",
		zap.Int64("quotes_deleted", report.QuotesDeleted),
		zap.Int64("payments_failed", report.PaymentsFailed),
	)
	return report
}
