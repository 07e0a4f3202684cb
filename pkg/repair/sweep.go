package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"messengerdb/pkg/logger"
	"messengerdb/pkg/telemetry"
)

// Sweeper periodically replays persisted repair tasks that never reached a
// worker (full channel, crash before the repair ran) and reports queue
// depth. It bounds the divergence window even when the fast path loses a
// task.
type Sweeper struct {
	queue      *Reconciler
	cron       string
	onSweepEnd func(ctx context.Context)
}

// Start launches the queue worker and the cron sweep, returning a cancel
// func that stops both. cronExpr "" selects every 5 minutes. onSweepEnd,
// when non-nil, runs after each sweep (used to reap expired idempotency
// records in the same pass).
func Start(ctx context.Context, rec *Reconciler, cronExpr string, onSweepEnd func(ctx context.Context)) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid repair sweep cron expression: %s", cronExpr)
	}

	ctx2, cancel := context.WithCancel(ctx)
	stop := make(chan struct{})
	go func() {
		<-ctx2.Done()
		close(stop)
	}()
	go rec.queue.RunWorker(stop, rec.Handle)

	s := &Sweeper{queue: rec, cron: cronExpr, onSweepEnd: onSweepEnd}
	go s.run(ctx2)
	logger.Info("repair_sweeper_started", "cron", cronExpr)
	return cancel, nil
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(s.cron, now, false)
		if err != nil {
			logger.Error("repair_sweep_nexttick_failed", "cron", s.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("repair_sweeper_stopping")
			return
		}
		s.sweepOnce(ctx)
	}
}

// SweepOnce replays all persisted tasks immediately. Exposed for tests and
// admin triggers.
func (s *Sweeper) SweepOnce(ctx context.Context) { s.sweepOnce(ctx) }

func (s *Sweeper) sweepOnce(ctx context.Context) {
	tasks, err := s.queue.queue.Pending(ctx)
	if err != nil {
		logger.Error("repair_sweep_list_failed", "error", err)
		return
	}
	telemetry.RepairPending.Set(float64(len(tasks)))
	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		if err := s.queue.Handle(t); err != nil {
			logger.Error("repair_sweep_task_failed", "conversation", t.ConversationID, "seq", t.Seq, "error", err)
		}
	}
	if len(tasks) > 0 {
		logger.Info("repair_sweep_done", "replayed", len(tasks))
	}
	if left, err := s.queue.queue.Pending(ctx); err == nil {
		telemetry.RepairPending.Set(float64(len(left)))
	}
	if s.onSweepEnd != nil {
		s.onSweepEnd(ctx)
	}
}
