package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"messengerdb/pkg/config"
	"messengerdb/pkg/fanout"
	"messengerdb/pkg/idempotency"
	"messengerdb/pkg/logger"
	"messengerdb/pkg/reader"
	"messengerdb/pkg/repair"
	"messengerdb/pkg/store"
	"messengerdb/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	db         *store.Pebble
	writer     *fanout.Writer
	reader     *reader.Reader
	queue      *repair.Queue
	reconciler *repair.Reconciler
	guard      *idempotency.Guard

	srv *http.Server
}

// New opens the store and builds the write/read/repair components. It
// does not start the HTTP server or the reconciler; call Run for that.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	cfg := eff.Config
	validation.SetRules(validation.Rules{
		MaxTextLen:      cfg.Validation.MaxTextLen,
		MaxParticipants: cfg.Validation.MaxParticipants,
	})

	db, err := store.Open(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	guard := idempotency.New(db, cfg.Fanout.IdempotencyTTL.Std())
	queue := repair.NewQueue(db, cfg.Fanout.Repair.QueueSize)
	if err := queue.RestoreSeq(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to restore repair queue: %w", err)
	}

	a := &App{
		eff:        eff,
		version:    version,
		commit:     commit,
		buildDate:  buildDate,
		db:         db,
		guard:      guard,
		queue:      queue,
		writer:     fanout.NewWriter(db, guard, queue),
		reader:     reader.New(db, cfg.Pagination.DefaultLimit, cfg.Pagination.MaxLimit),
		reconciler: repair.NewReconciler(db, queue),
	}
	return a, nil
}

// Run starts the reconciler and the HTTP server and blocks until ctx is
// cancelled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	stopRepair, err := repair.Start(ctx, a.reconciler, a.eff.Config.Fanout.Repair.SweepCron, func(ctx context.Context) {
		if _, serr := a.guard.SweepExpired(ctx); serr != nil && ctx.Err() == nil {
			logger.Warn("idempotency_sweep_failed", "error", serr.Error())
		}
	})
	if err != nil {
		return err
	}
	defer stopRepair()

	a.printBanner()
	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return a.db.Close()
	case err := <-errCh:
		_ = a.db.Close()
		return err
	}
}
