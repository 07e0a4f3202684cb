package store

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Partition and clustering-key layout. Clustering keys embed timestamps
// inverted against MaxInt64 so that lexicographically ascending iteration
// yields logically descending (newest-first) order, which is what both
// read views want.

// MsgPartition holds the message log for one conversation.
func MsgPartition(conversationID string) string {
	return "conv:" + conversationID + ":msg"
}

// ConvMetaPartition holds the single Conversation metadata row.
func ConvMetaPartition(conversationID string) string {
	return "conv:" + conversationID + ":meta"
}

// UserConvPartition holds the per-user conversation summaries, ordered by
// (last_message_timestamp DESC, conversation_id ASC).
func UserConvPartition(userID string) string {
	return "user:" + userID + ":conv"
}

// UserPtrPartition maps conversation id -> current summary ordering key,
// so a supersede write can locate the row it replaces.
func UserPtrPartition(userID string) string {
	return "user:" + userID + ":ptr"
}

// UserMetaPartition holds the single User record row.
func UserMetaPartition(userID string) string {
	return "user:" + userID + ":meta"
}

// PairPartition indexes two-party conversations by their participant pair
// (ids sorted) so repeated sends between the same users reuse one
// conversation.
func PairPartition(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "pair:" + a + ":" + b
}

// IdemPartition holds one idempotency record per operation token.
func IdemPartition(token string) string {
	return "idem:" + token
}

// RepairPartition holds persisted repair tasks, ordered by enqueue sequence.
const RepairPartition = "repair"

// InvertTS renders ts so that newer timestamps sort first under ascending
// lexicographic iteration. Width is fixed so ordering holds across
// magnitudes.
func InvertTS(ts int64) string {
	return fmt.Sprintf("%020d", math.MaxInt64-ts)
}

// MsgClustering builds the message ordering key (created_at DESC,
// message_id DESC). The ULID bytes are complemented so that larger ids
// sort first among same-timestamp rows, completing the total order.
func MsgClustering(ts int64, messageID string) (string, error) {
	id, err := ulid.Parse(messageID)
	if err != nil {
		return "", fmt.Errorf("%w: bad message id %q: %v", ErrInvalidArgument, messageID, err)
	}
	inv := make([]byte, len(id))
	for i, c := range id[:] {
		inv[i] = ^c
	}
	return InvertTS(ts) + "-" + hex.EncodeToString(inv), nil
}

// MsgScanBefore returns the scan position that excludes every message
// with created_at >= ts, so iteration resumes at the newest strictly
// older message. The "f" run sorts after any complemented-id hex suffix
// at the same timestamp.
func MsgScanBefore(ts int64) string {
	return InvertTS(ts) + "-" + strings.Repeat("f", 32)
}

// SummaryClustering builds the summary ordering key
// (last_message_timestamp DESC, conversation_id ASC).
func SummaryClustering(ts int64, conversationID string) string {
	return InvertTS(ts) + "-" + conversationID
}

// RepairClustering orders persisted repair tasks by enqueue sequence.
func RepairClustering(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}
