// Package fanout implements the write path: one logical send becomes an
// ordered multi-partition write sequence (message log row, then one
// summary row per participant) with idempotent retries and repair-queue
// recovery instead of cross-partition transactions.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"messengerdb/pkg/idempotency"
	"messengerdb/pkg/logger"
	"messengerdb/pkg/models"
	"messengerdb/pkg/repair"
	"messengerdb/pkg/store"
	"messengerdb/pkg/telemetry"
	"messengerdb/pkg/utils"
	"messengerdb/pkg/validation"
)

// ErrNotFound is returned when the addressed conversation or user does not
// exist.
var ErrNotFound = errors.New("fanout: not found")

// ErrInvalidRequest wraps validation failures; callers surface these
// immediately and never retry them.
var ErrInvalidRequest = errors.New("fanout: invalid request")

// Writer coordinates sends and conversation/user creation. It holds no
// locks across store calls: concurrent sends to one conversation are
// ordered purely by the (created_at, message_id) clustering key.
type Writer struct {
	store store.Client
	guard *idempotency.Guard
	queue *repair.Queue
	clock Clock
}

// NewWriter wires a Writer to its collaborators.
func NewWriter(st store.Client, guard *idempotency.Guard, q *repair.Queue) *Writer {
	return &Writer{store: st, guard: guard, queue: q}
}

// SendMessage appends a message to the conversation log and fans the new
// last-message state out to every participant's summary partition.
//
// The log write is the source of truth: once it succeeds the send is
// reported successful even if summary writes fail, in which case the
// conversation is flagged for repair and summaries converge later. A
// retry with the same clientToken returns the original message without
// duplicating rows.
func (w *Writer) SendMessage(ctx context.Context, conversationID, senderID, text, clientToken string) (models.Message, error) {
	if err := validation.ValidateSend(senderID, text, clientToken); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	conv, err := w.getConversation(ctx, conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if !contains(conv.ParticipantIDs, senderID) {
		return models.Message{}, fmt.Errorf("%w: sender %s is not a participant", ErrInvalidRequest, senderID)
	}

	proposed := models.Message{
		ID:             utils.GenMessageID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      w.clock.Next(),
	}
	res, err := w.guard.CheckAndReserve(ctx, clientToken, proposed)
	if err != nil {
		return models.Message{}, err
	}
	msg := res.Message
	if !res.Fresh {
		telemetry.IdempotentReplays.Inc()
		logger.Info("send_replayed", "conversation", conversationID, "msg", msg.ID, "token", clientToken)
		return msg, nil
	}

	// step 1: the durable log write; failure here fails the send
	clustering, err := store.MsgClustering(msg.CreatedAt, msg.ID)
	if err != nil {
		return models.Message{}, err
	}
	b, _ := json.Marshal(msg)
	if err := w.store.Put(ctx, store.MsgPartition(conversationID), clustering, b); err != nil {
		logger.Error("log_write_failed", "conversation", conversationID, "msg", msg.ID, "error", err)
		return models.Message{}, err
	}
	telemetry.MessagesSent.Inc()
	logger.Info("message_logged", "conversation", conversationID, "msg", msg.ID, "ts", msg.CreatedAt)

	// step 2: per-participant summary supersede; failure is not rolled
	// back (the store has no cross-partition rollback) but flagged for
	// repair, and the send still succeeds
	for _, uid := range conv.ParticipantIDs {
		summary := models.ConversationSummary{
			UserID:          uid,
			ConversationID:  conversationID,
			ParticipantIDs:  conv.ParticipantIDs,
			LastMessageTS:   msg.CreatedAt,
			LastMessageText: msg.Text,
		}
		if err := repair.SupersedeSummary(ctx, w.store, summary); err != nil {
			telemetry.PartialFanouts.Inc()
			logger.Warn("partial_fanout", "conversation", conversationID, "msg", msg.ID, "user", uid, "error", err)
			if qerr := w.queue.Enqueue(ctx, repair.Task{
				ConversationID: conversationID,
				MessageID:      msg.ID,
				Reason:         "summary write failed for user " + uid,
			}); qerr != nil {
				logger.Error("repair_enqueue_failed", "conversation", conversationID, "error", qerr)
			}
			// one task re-derives all participants; skip the rest
			return msg, nil
		}
	}

	if err := w.guard.MarkComplete(ctx, clientToken, msg); err != nil {
		// the reservation still holds the message; a retry resumes and
		// converges on the same rows
		logger.Warn("mark_complete_failed", "token", clientToken, "msg", msg.ID, "error", err)
	}
	return msg, nil
}

// CreateConversation creates a conversation with a fixed participant set
// and seeds each participant's summary view so the conversation is
// listable before its first message. Two-party conversations are deduped
// through the pair index: creating again with the same pair returns the
// existing conversation.
func (w *Writer) CreateConversation(ctx context.Context, participantIDs []string) (models.Conversation, error) {
	if err := validation.ValidateParticipants(participantIDs); err != nil {
		return models.Conversation{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if len(participantIDs) == 2 {
		pair := store.PairPartition(participantIDs[0], participantIDs[1])
		if v, err := w.store.Get(ctx, pair, ""); err == nil {
			return w.getConversation(ctx, string(v))
		} else if !errors.Is(err, store.ErrNotFound) {
			return models.Conversation{}, err
		}
	}

	conv := models.Conversation{
		ID:             utils.GenConversationID(),
		ParticipantIDs: append([]string(nil), participantIDs...),
		CreatedAt:      w.clock.Next(),
	}
	b, _ := json.Marshal(conv)
	if err := w.store.Put(ctx, store.ConvMetaPartition(conv.ID), "", b); err != nil {
		return models.Conversation{}, err
	}
	if len(participantIDs) == 2 {
		pair := store.PairPartition(participantIDs[0], participantIDs[1])
		if err := w.store.Put(ctx, pair, "", []byte(conv.ID)); err != nil {
			logger.Warn("pair_index_write_failed", "conversation", conv.ID, "error", err)
		}
	}

	// seed summaries at creation time; a failed seed is repairable like
	// any other fanout miss
	for _, uid := range conv.ParticipantIDs {
		summary := models.ConversationSummary{
			UserID:         uid,
			ConversationID: conv.ID,
			ParticipantIDs: conv.ParticipantIDs,
			LastMessageTS:  conv.CreatedAt,
		}
		if err := repair.SupersedeSummary(ctx, w.store, summary); err != nil {
			telemetry.PartialFanouts.Inc()
			logger.Warn("conversation_seed_partial", "conversation", conv.ID, "user", uid, "error", err)
			if qerr := w.queue.Enqueue(ctx, repair.Task{
				ConversationID: conv.ID,
				Reason:         "summary seed failed for user " + uid,
			}); qerr != nil {
				logger.Error("repair_enqueue_failed", "conversation", conv.ID, "error", qerr)
			}
			break
		}
	}
	telemetry.ConversationsCreated.Inc()
	logger.Info("conversation_created", "conversation", conv.ID, "participants", len(conv.ParticipantIDs))
	return conv, nil
}

// CreateUser stores a user record.
func (w *Writer) CreateUser(ctx context.Context, username string) (models.User, error) {
	if username == "" {
		return models.User{}, fmt.Errorf("%w: missing username", ErrInvalidRequest)
	}
	u := models.User{
		ID:        utils.GenUserID(),
		Username:  username,
		CreatedAt: time.Now().UTC().UnixNano(),
	}
	b, _ := json.Marshal(u)
	if err := w.store.Put(ctx, store.UserMetaPartition(u.ID), "", b); err != nil {
		return models.User{}, err
	}
	logger.Info("user_created", "user", u.ID)
	return u, nil
}

func (w *Writer) getConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	if conversationID == "" {
		return models.Conversation{}, fmt.Errorf("%w: missing conversation id", ErrInvalidRequest)
	}
	v, err := w.store.Get(ctx, store.ConvMetaPartition(conversationID), "")
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Conversation{}, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
		}
		return models.Conversation{}, err
	}
	var conv models.Conversation
	if err := json.Unmarshal(v, &conv); err != nil {
		return models.Conversation{}, fmt.Errorf("invalid conversation metadata: %w", err)
	}
	return conv, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
