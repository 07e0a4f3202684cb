package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"messengerdb/pkg/logger"
	"messengerdb/pkg/models"
	"messengerdb/pkg/store"
	"messengerdb/pkg/telemetry"
	"messengerdb/pkg/utils"
)

// summaryLocks serializes pointer read-then-write sequences per
// (user, conversation). Two unserialized supersedes can both read the
// same stale pointer and each insert its own ordering-key row, leaving
// two "current" rows with nothing flagged for repair.
var summaryLocks utils.KeyedMutex

func summaryLockKey(userID, conversationID string) string {
	return userID + "\x00" + conversationID
}

// SupersedeSummary installs summary as the single current row for
// (summary.UserID, summary.ConversationID): delete the old ordering-key
// row located through the pointer, insert the new one, advance the
// pointer. It is a no-op when the pointer already reflects an equal or
// newer message, which makes redundant replays safe.
func SupersedeSummary(ctx context.Context, st store.Client, summary models.ConversationSummary) error {
	ptrPart := store.UserPtrPartition(summary.UserID)
	convPart := store.UserConvPartition(summary.UserID)

	key := summaryLockKey(summary.UserID, summary.ConversationID)
	summaryLocks.Lock(key)
	defer summaryLocks.Unlock(key)

	oldTS := int64(-1)
	if v, err := st.Get(ctx, ptrPart, summary.ConversationID); err == nil {
		if ts, perr := strconv.ParseInt(string(v), 10, 64); perr == nil {
			oldTS = ts
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if oldTS >= summary.LastMessageTS {
		// a newer message already superseded this one
		return nil
	}
	if oldTS >= 0 {
		if err := st.Delete(ctx, convPart, store.SummaryClustering(oldTS, summary.ConversationID)); err != nil {
			return err
		}
	}
	b, _ := json.Marshal(summary)
	if err := st.Put(ctx, convPart, store.SummaryClustering(summary.LastMessageTS, summary.ConversationID), b); err != nil {
		return err
	}
	return st.Put(ctx, ptrPart, summary.ConversationID, []byte(strconv.FormatInt(summary.LastMessageTS, 10)))
}

// Reconciler consumes repair tasks and re-derives the correct summary
// state for flagged conversations from the message log (the source of
// truth). Running it redundantly is harmless: the rewrite always targets
// the same state the log implies.
type Reconciler struct {
	store store.Client
	queue *Queue
}

// NewReconciler wires a Reconciler to its queue and store.
func NewReconciler(st store.Client, q *Queue) *Reconciler {
	return &Reconciler{store: st, queue: q}
}

// Reconcile re-issues the supersede write for every participant of the
// conversation based on its latest logged message, and clears any stale
// summary rows left behind by interrupted fanouts.
func (r *Reconciler) Reconcile(ctx context.Context, conversationID string) error {
	mv, err := r.store.Get(ctx, store.ConvMetaPartition(conversationID), "")
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("reconcile_unknown_conversation", "conversation", conversationID)
			return nil
		}
		return err
	}
	var conv models.Conversation
	if err := json.Unmarshal(mv, &conv); err != nil {
		return fmt.Errorf("invalid conversation metadata: %w", err)
	}

	// newest-first log order: the first row is the latest message
	rows, err := r.store.Scan(ctx, store.MsgPartition(conversationID), "", 1)
	if err != nil {
		return err
	}
	lastTS := conv.CreatedAt
	lastText := ""
	if len(rows) > 0 {
		var msg models.Message
		if err := json.Unmarshal(rows[0].Value, &msg); err != nil {
			return fmt.Errorf("invalid message row: %w", err)
		}
		lastTS = msg.CreatedAt
		lastText = msg.Text
	}

	for _, uid := range conv.ParticipantIDs {
		summary := models.ConversationSummary{
			UserID:          uid,
			ConversationID:  conversationID,
			ParticipantIDs:  conv.ParticipantIDs,
			LastMessageTS:   lastTS,
			LastMessageText: lastText,
		}
		if err := r.forceSummary(ctx, summary); err != nil {
			return fmt.Errorf("repair summary for user %s: %w", uid, err)
		}
	}
	telemetry.RepairRuns.Inc()
	logger.Info("conversation_reconciled", "conversation", conversationID, "last_ts", lastTS)
	return nil
}

// forceSummary writes the derived current row and removes every other row
// for the same conversation from the user's summary partition. Unlike the
// fast-path supersede it does not trust the pointer: an interrupted
// pointer update may have left rows the pointer no longer names.
func (r *Reconciler) forceSummary(ctx context.Context, summary models.ConversationSummary) error {
	convPart := store.UserConvPartition(summary.UserID)
	want := store.SummaryClustering(summary.LastMessageTS, summary.ConversationID)

	key := summaryLockKey(summary.UserID, summary.ConversationID)
	summaryLocks.Lock(key)
	defer summaryLocks.Unlock(key)

	after := ""
	for {
		rows, err := r.store.Scan(ctx, convPart, after, 256)
		if err != nil {
			return err
		}
		for _, row := range rows {
			var s models.ConversationSummary
			if json.Unmarshal(row.Value, &s) != nil || s.ConversationID != summary.ConversationID {
				continue
			}
			if row.Clustering != want {
				if err := r.store.Delete(ctx, convPart, row.Clustering); err != nil {
					return err
				}
			}
		}
		if len(rows) < 256 {
			break
		}
		after = rows[len(rows)-1].Clustering
	}

	b, _ := json.Marshal(summary)
	if err := r.store.Put(ctx, convPart, want, b); err != nil {
		return err
	}
	return r.store.Put(ctx, store.UserPtrPartition(summary.UserID), summary.ConversationID,
		[]byte(strconv.FormatInt(summary.LastMessageTS, 10)))
}

// Handle processes one queued task and acks its durable row on success.
func (r *Reconciler) Handle(t Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.Reconcile(ctx, t.ConversationID); err != nil {
		return err
	}
	return r.queue.Ack(ctx, t)
}
