package models

// Message is a single immutable entry in a conversation log. CreatedAt is a
// server-assigned logical-clock timestamp (ns); together with ID it forms
// the total ordering key (created_at DESC, id DESC) for the conversation.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Text           string `json:"text"`
	CreatedAt      int64  `json:"created_at"`
}
