package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Ticker drives the periodic trigger (§4.6): every CLEANUP_INTERVAL_HOURS,
// run a full cycle across all known codebases. The interval is expressed as
// a cron expression and evaluated with gronx, following the teacher's
// cron-job-as-data approach for its own periodic jobs.
type Ticker struct {
	scheduler *Scheduler
	cronExpr  string
	interval  time.Duration
	stop      chan struct{}
}

// NewTicker builds the periodic trigger for intervalHours (default 6 when
// <= 0), checking every minute whether the derived cron expression is due.
func NewTicker(scheduler *Scheduler, intervalHours int) *Ticker {
	if intervalHours <= 0 {
		intervalHours = 6
	}
	return &Ticker{
		scheduler: scheduler,
		cronExpr:  fmt.Sprintf("0 */%d * * *", intervalHours),
		interval:  time.Minute,
		stop:      make(chan struct{}),
	}
}

// Start runs the check loop until ctx is cancelled or Stop is called.
func (t *Ticker) Start(ctx context.Context) {
	gron := gronx.New()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			due, err := gron.IsDue(t.cronExpr)
			if err != nil {
				slog.Error("cleanup cron expression evaluation failed", "expr", t.cronExpr, "error", err)
				continue
			}
			if !due {
				continue
			}
			report, err := t.scheduler.RunFullCycle(ctx)
			if err != nil {
				slog.Error("periodic cleanup cycle failed", "error", err)
				continue
			}
			slog.Info("periodic cleanup cycle complete",
				"removed", len(report.Removed), "skipped", len(report.Skipped), "errors", len(report.Errors))
		}
	}
}

// Stop signals the check loop to exit.
func (t *Ticker) Stop() {
	close(t.stop)
}
