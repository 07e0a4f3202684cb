// Package idempotency deduplicates retried sends. Every send carries a
// client token; the guard records the message assigned to that token so a
// retry returns the original message instead of applying a second fanout.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"messengerdb/pkg/logger"
	"messengerdb/pkg/models"
	"messengerdb/pkg/store"
	"messengerdb/pkg/utils"
)

const (
	stateReserved = "reserved"
	stateApplied  = "applied"
)

// record is the persisted idempotency row for one token. It carries the
// full message assigned at reservation time so that a retry of an
// incomplete fanout re-executes with the original id and timestamp.
type record struct {
	Token     string         `json:"token"`
	State     string         `json:"state"`
	Message   models.Message `json:"message"`
	ExpiresAt int64          `json:"expires_at"`
}

// Result reports the outcome of CheckAndReserve. Fresh means the caller
// must execute (or re-execute) the fanout for Message; AlreadyApplied
// means the fanout completed earlier and Message is the recorded effect.
type Result struct {
	Fresh   bool
	Message models.Message
}

// Guard persists one record per operation token with a bounded TTL. The
// TTL must exceed the longest plausible client retry window; records are
// reaped lazily on read and by SweepExpired.
type Guard struct {
	store store.Client
	ttl   time.Duration
	// locks serializes the read-then-reserve sequence per token. Without
	// it, a retry racing the still-in-flight original (the mandated
	// recovery after an ambiguous timeout) can both observe "no record"
	// and each reserve its own message.
	locks utils.KeyedMutex
}

// New creates a Guard. ttl <= 0 selects the 24h default.
func New(st store.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{store: st, ttl: ttl}
}

// CheckAndReserve records proposed as the message for token unless an
// unexpired record already exists, in which case the recorded message
// wins. An existing "reserved" record means an earlier attempt crashed
// mid-fanout: the caller gets Fresh=true with the original message so the
// retry converges on the same rows.
func (g *Guard) CheckAndReserve(ctx context.Context, token string, proposed models.Message) (Result, error) {
	if token == "" {
		return Result{}, fmt.Errorf("%w: empty token", store.ErrInvalidArgument)
	}
	part := store.IdemPartition(token)
	now := time.Now().UTC().UnixNano()

	g.locks.Lock(token)
	defer g.locks.Unlock(token)

	if v, err := g.store.Get(ctx, part, ""); err == nil {
		var rec record
		if jerr := json.Unmarshal(v, &rec); jerr == nil && rec.ExpiresAt > now {
			if rec.State == stateApplied {
				logger.Debug("idempotent_replay", "token", token, "msg", rec.Message.ID)
				return Result{Fresh: false, Message: rec.Message}, nil
			}
			logger.Debug("idempotent_resume", "token", token, "msg", rec.Message.ID)
			return Result{Fresh: true, Message: rec.Message}, nil
		}
		// corrupt or expired record: fall through and reserve anew
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, err
	}

	rec := record{
		Token:     token,
		State:     stateReserved,
		Message:   proposed,
		ExpiresAt: now + g.ttl.Nanoseconds(),
	}
	b, _ := json.Marshal(rec)
	if err := g.store.Put(ctx, part, "", b); err != nil {
		return Result{}, err
	}
	return Result{Fresh: true, Message: proposed}, nil
}

// MarkComplete flips the token's record to applied. Subsequent retries
// short-circuit without touching the log or summary partitions.
func (g *Guard) MarkComplete(ctx context.Context, token string, msg models.Message) error {
	g.locks.Lock(token)
	defer g.locks.Unlock(token)
	rec := record{
		Token:     token,
		State:     stateApplied,
		Message:   msg,
		ExpiresAt: time.Now().UTC().UnixNano() + g.ttl.Nanoseconds(),
	}
	b, _ := json.Marshal(rec)
	return g.store.Put(ctx, store.IdemPartition(token), "", b)
}

// SweepExpired deletes expired records under the idem: namespace and
// returns how many were removed. Safe to run concurrently with sends.
func (g *Guard) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC().UnixNano()
	removed := 0
	// idem rows are one-per-partition; enumerate them via the shared
	// prefix and reap in place.
	rows, err := g.store.Scan(ctx, "idem", "", 0)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		var rec record
		if json.Unmarshal(row.Value, &rec) != nil {
			continue
		}
		if rec.ExpiresAt > now {
			continue
		}
		if err := g.store.Delete(ctx, store.IdemPartition(rec.Token), ""); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		logger.Info("idempotency_sweep", "removed", removed)
	}
	return removed, nil
}
