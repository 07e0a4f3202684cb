package reader

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// cursor is the decoded continuation token: the ordering-key position of
// the last row a client saw. Pagination resumes strictly after it, which
// stays correct under concurrent inserts (unlike row offsets). The wire
// form is base64 JSON and opaque to clients.
type cursor struct {
	TS int64  `json:"ts"`
	ID string `json:"id"`
}

func encodeCursor(c cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (cursor, error) {
	var c cursor
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("malformed cursor: %w", err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("malformed cursor: %w", err)
	}
	return c, nil
}
