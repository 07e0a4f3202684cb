package models

// Conversation metadata. ParticipantIDs is fixed at creation; membership
// changes are out of scope for this design.
type Conversation struct {
	ID             string   `json:"id"`
	ParticipantIDs []string `json:"participant_ids"`
	CreatedAt      int64    `json:"created_at"`
}

// ConversationSummary is the per-participant projection of a conversation,
// one current row per (user, conversation). The row is superseded, not
// appended, whenever a newer message arrives: its ordering key contains
// LastMessageTS, so the write path deletes the old key and inserts the new
// one.
type ConversationSummary struct {
	UserID          string   `json:"user_id"`
	ConversationID  string   `json:"conversation_id"`
	ParticipantIDs  []string `json:"participant_ids"`
	LastMessageTS   int64    `json:"last_message_timestamp"`
	LastMessageText string   `json:"last_message_text,omitempty"`
}
