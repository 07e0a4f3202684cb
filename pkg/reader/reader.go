// Package reader serves the cursor-paginated read views. Reads go straight
// to the store and never touch the write path.
package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"messengerdb/pkg/models"
	"messengerdb/pkg/store"
)

// ErrNotFound is returned for lookups of absent users or conversations.
var ErrNotFound = errors.New("reader: not found")

// ErrBadCursor wraps malformed continuation cursors (a caller bug).
var ErrBadCursor = errors.New("reader: bad cursor")

// MessagePage is one page of conversation scrollback, newest first.
// NextCursor is empty at end of sequence.
type MessagePage struct {
	Messages   []models.Message `json:"messages"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// SummaryPage is one page of a user's conversation list, most recently
// active first.
type SummaryPage struct {
	Conversations []models.ConversationSummary `json:"conversations"`
	NextCursor    string                       `json:"next_cursor,omitempty"`
}

// Reader answers paginated queries over the denormalized views.
type Reader struct {
	store        store.Client
	defaultLimit int
	maxLimit     int
}

// New creates a Reader; non-positive limits select 20/100 defaults.
func New(st store.Client, defaultLimit, maxLimit int) *Reader {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Reader{store: st, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

func (r *Reader) clampLimit(limit int) int {
	if limit <= 0 {
		return r.defaultLimit
	}
	if limit > r.maxLimit {
		return r.maxLimit
	}
	return limit
}

// Messages returns one page of the conversation log ordered by
// (created_at DESC, message_id DESC), starting strictly before the cursor
// position (or at the newest row when cursor is empty). A positive
// beforeTS restricts the page to messages with created_at strictly below
// it; the cursor wins when both are supplied. An empty page is valid and
// means the conversation has no (further) messages.
func (r *Reader) Messages(ctx context.Context, conversationID, cursorStr string, beforeTS int64, limit int) (MessagePage, error) {
	limit = r.clampLimit(limit)
	after := ""
	switch {
	case cursorStr != "":
		c, err := decodeCursor(cursorStr)
		if err != nil {
			return MessagePage{}, fmt.Errorf("%w: %v", ErrBadCursor, err)
		}
		after, err = store.MsgClustering(c.TS, c.ID)
		if err != nil {
			return MessagePage{}, fmt.Errorf("%w: %v", ErrBadCursor, err)
		}
	case beforeTS > 0:
		after = store.MsgScanBefore(beforeTS)
	}
	rows, err := r.store.Scan(ctx, store.MsgPartition(conversationID), after, limit)
	if err != nil {
		return MessagePage{}, err
	}
	page := MessagePage{Messages: make([]models.Message, 0, len(rows))}
	for _, row := range rows {
		var m models.Message
		if err := json.Unmarshal(row.Value, &m); err != nil {
			return MessagePage{}, fmt.Errorf("invalid message row: %w", err)
		}
		page.Messages = append(page.Messages, m)
	}
	if len(page.Messages) == limit {
		last := page.Messages[len(page.Messages)-1]
		page.NextCursor = encodeCursor(cursor{TS: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// ConversationsForUser returns one page of the user's conversation list
// ordered by (last_message_timestamp DESC, conversation_id ASC).
func (r *Reader) ConversationsForUser(ctx context.Context, userID, cursorStr string, limit int) (SummaryPage, error) {
	limit = r.clampLimit(limit)
	after := ""
	if cursorStr != "" {
		c, err := decodeCursor(cursorStr)
		if err != nil {
			return SummaryPage{}, fmt.Errorf("%w: %v", ErrBadCursor, err)
		}
		after = store.SummaryClustering(c.TS, c.ID)
	}
	rows, err := r.store.Scan(ctx, store.UserConvPartition(userID), after, limit)
	if err != nil {
		return SummaryPage{}, err
	}
	page := SummaryPage{Conversations: make([]models.ConversationSummary, 0, len(rows))}
	for _, row := range rows {
		var s models.ConversationSummary
		if err := json.Unmarshal(row.Value, &s); err != nil {
			return SummaryPage{}, fmt.Errorf("invalid summary row: %w", err)
		}
		page.Conversations = append(page.Conversations, s)
	}
	if len(page.Conversations) == limit {
		last := page.Conversations[len(page.Conversations)-1]
		page.NextCursor = encodeCursor(cursor{TS: last.LastMessageTS, ID: last.ConversationID})
	}
	return page, nil
}

// Conversation returns conversation metadata.
func (r *Reader) Conversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	v, err := r.store.Get(ctx, store.ConvMetaPartition(conversationID), "")
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

// User returns a user record.
func (r *Reader) User(ctx context.Context, userID string) (models.User, error) {
	v, err := r.store.Get(ctx, store.UserMetaPartition(userID), "")
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return models.User{}, err
	}
	var u models.User
	if err := json.Unmarshal(v, &u); err != nil {
		return models.User{}, fmt.Errorf("invalid user record: %w", err)
	}
	return u, nil
}
