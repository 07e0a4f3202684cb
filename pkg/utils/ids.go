package utils

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenMessageID returns a new ULID. ULIDs are globally unique and
// lexicographically sortable, which makes them a usable final tie-break in
// the message ordering key.
func GenMessageID() string {
	return ulid.Make().String()
}

// GenConversationID returns a new opaque conversation id.
func GenConversationID() string {
	return uuid.NewString()
}

// GenUserID returns a new opaque user id.
func GenUserID() string {
	return uuid.NewString()
}
