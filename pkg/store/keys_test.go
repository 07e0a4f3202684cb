package store

import (
	"errors"
	"sort"
	"testing"

	"messengerdb/pkg/utils"
)

func TestInvertTS_NewerSortsFirst(t *testing.T) {
	older := InvertTS(1000)
	newer := InvertTS(2000)
	if !(newer < older) {
		t.Fatalf("newer timestamp must sort before older: %s vs %s", newer, older)
	}
	// fixed width keeps ordering across magnitudes
	small := InvertTS(9)
	big := InvertTS(10)
	if len(small) != len(big) {
		t.Fatalf("inverted timestamps must be fixed width: %d vs %d", len(small), len(big))
	}
	if !(big < small) {
		t.Fatalf("ts=10 must sort before ts=9")
	}
}

func TestMsgClustering_TotalOrder(t *testing.T) {
	// newer timestamp wins regardless of id
	a, err := MsgClustering(2000, utils.GenMessageID())
	if err != nil {
		t.Fatalf("clustering: %v", err)
	}
	b, err := MsgClustering(1000, utils.GenMessageID())
	if err != nil {
		t.Fatalf("clustering: %v", err)
	}
	if !(a < b) {
		t.Fatalf("newer message must sort first: %s vs %s", a, b)
	}

	// same timestamp: the lexicographically larger id sorts first
	lo := "01ARZ3NDEKTSV4RRFFQ69G5FAA"
	hi := "01ARZ3NDEKTSV4RRFFQ69G5FAV"
	kLo, err := MsgClustering(1000, lo)
	if err != nil {
		t.Fatalf("clustering: %v", err)
	}
	kHi, err := MsgClustering(1000, hi)
	if err != nil {
		t.Fatalf("clustering: %v", err)
	}
	if !(kHi < kLo) {
		t.Fatalf("larger id must sort first at equal ts: %s vs %s", kHi, kLo)
	}
}

func TestMsgClustering_RejectsBadID(t *testing.T) {
	if _, err := MsgClustering(1000, "not-a-ulid"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSummaryClustering_RecentFirstThenConvID(t *testing.T) {
	keys := []string{
		SummaryClustering(100, "conv-b"),
		SummaryClustering(300, "conv-a"),
		SummaryClustering(200, "conv-c"),
		SummaryClustering(200, "conv-a"),
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	want := []string{
		SummaryClustering(300, "conv-a"),
		SummaryClustering(200, "conv-a"),
		SummaryClustering(200, "conv-c"),
		SummaryClustering(100, "conv-b"),
	}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("position %d: expected %s got %s", i, want[i], sorted[i])
		}
	}
}

func TestPairPartition_Symmetric(t *testing.T) {
	if PairPartition("u1", "u2") != PairPartition("u2", "u1") {
		t.Fatal("pair partition must not depend on argument order")
	}
}
