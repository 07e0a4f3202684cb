package fanout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"messengerdb/pkg/idempotency"
	"messengerdb/pkg/reader"
	"messengerdb/pkg/repair"
	"messengerdb/pkg/store"
)

// faultStore wraps a real store and fails Puts on selected partitions, to
// exercise the partial-fanout path without a real outage.
type faultStore struct {
	store.Client
	failPrefix string
	failures   int
}

func (f *faultStore) Put(ctx context.Context, partition, clustering string, value []byte) error {
	if f.failPrefix != "" && strings.HasPrefix(partition, f.failPrefix) {
		f.failures++
		return store.ErrUnavailable
	}
	return f.Client.Put(ctx, partition, clustering, value)
}

func testStore(t *testing.T) *store.Pebble {
	t.Helper()
	p, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newTestWriter(st store.Client) (*Writer, *repair.Queue) {
	guard := idempotency.New(st, 0)
	q := repair.NewQueue(st, 16)
	return NewWriter(st, guard, q), q
}

func TestSendMessage_NewestFirstOrder(t *testing.T) {
	st := testStore(t)
	w, _ := newTestWriter(st)
	ctx := context.Background()

	conv, err := w.CreateConversation(ctx, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	var sent []string
	for _, text := range []string{"one", "two", "three"} {
		msg, err := w.SendMessage(ctx, conv.ID, "alice", text, "tok-"+text)
		if err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
		sent = append(sent, msg.ID)
	}

	rd := reader.New(st, 20, 100)
	page, err := rd.Messages(ctx, conv.ID, "", 0, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(page.Messages))
	}
	// newest first: reverse of send order
	for i, want := range []string{sent[2], sent[1], sent[0]} {
		if page.Messages[i].ID != want {
			t.Fatalf("position %d: expected %s got %s", i, want, page.Messages[i].ID)
		}
	}
	if !(page.Messages[0].CreatedAt > page.Messages[1].CreatedAt &&
		page.Messages[1].CreatedAt > page.Messages[2].CreatedAt) {
		t.Fatalf("timestamps must strictly decrease: %+v", page.Messages)
	}
}

func TestSendMessage_IdempotentRetry(t *testing.T) {
	st := testStore(t)
	w, _ := newTestWriter(st)
	ctx := context.Background()

	conv, err := w.CreateConversation(ctx, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	first, err := w.SendMessage(ctx, conv.ID, "alice", "hello", "tok-1")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	retry, err := w.SendMessage(ctx, conv.ID, "alice", "hello", "tok-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.ID != first.ID || retry.CreatedAt != first.CreatedAt {
		t.Fatalf("retry must return the original message: %+v vs %+v", retry, first)
	}

	rows, err := st.Scan(ctx, store.MsgPartition(conv.ID), "", 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("retry must not duplicate the log row, got %d rows", len(rows))
	}
}

// slowIdemStore stalls idempotency reads so two in-flight sends for the
// same token overlap inside the reserve sequence.
type slowIdemStore struct {
	store.Client
	delay time.Duration
}

func (s *slowIdemStore) Get(ctx context.Context, partition, clustering string) ([]byte, error) {
	if strings.HasPrefix(partition, "idem:") {
		time.Sleep(s.delay)
	}
	return s.Client.Get(ctx, partition, clustering)
}

func TestSendMessage_ConcurrentSameTokenWritesOnce(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	setup, _ := newTestWriter(st)
	conv, err := setup.CreateConversation(ctx, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	slow := &slowIdemStore{Client: st, delay: 20 * time.Millisecond}
	w, _ := newTestWriter(slow)

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := w.SendMessage(ctx, conv.ID, "alice", "hello", "tok-race")
			errs[i] = err
			ids[i] = msg.ID
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if ids[0] != ids[1] {
		t.Fatalf("racing sends with one token must converge on one id: %v", ids)
	}
	rows, err := st.Scan(ctx, store.MsgPartition(conv.ID), "", 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single log row, got %d", len(rows))
	}
}

func TestSendMessage_PartialFanoutSucceedsAndRepairs(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	// healthy writer for setup
	setup, _ := newTestWriter(st)
	conv, err := setup.CreateConversation(ctx, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	// bob's summary partition goes down after the log write
	faulty := &faultStore{Client: st, failPrefix: "user:bob:"}
	guard := idempotency.New(st, 0)
	q := repair.NewQueue(st, 16)
	w := NewWriter(faulty, guard, q)

	msg, err := w.SendMessage(ctx, conv.ID, "alice", "hello bob", "tok-1")
	if err != nil {
		t.Fatalf("partial fanout must still report success, got %v", err)
	}
	if faulty.failures == 0 {
		t.Fatal("fault was never exercised")
	}

	// the log row exists
	rows, err := st.Scan(ctx, store.MsgPartition(conv.ID), "", 0)
	if err != nil {
		t.Fatalf("scan log: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the log write to have landed, got %d rows", len(rows))
	}

	// a repair task was flagged
	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ConversationID != conv.ID {
		t.Fatalf("expected one repair task for %s, got %+v", conv.ID, pending)
	}

	// once the partition is back, the reconciler converges bob's view
	rec := repair.NewReconciler(st, q)
	if err := rec.Handle(pending[0]); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	rd := reader.New(st, 20, 100)
	page, err := rd.ConversationsForUser(ctx, "bob", "", 0)
	if err != nil {
		t.Fatalf("read bob: %v", err)
	}
	if len(page.Conversations) != 1 || page.Conversations[0].LastMessageTS != msg.CreatedAt {
		t.Fatalf("bob's summary not converged: %+v", page.Conversations)
	}
}

func TestSendMessage_SenderMustBeParticipant(t *testing.T) {
	st := testStore(t)
	w, _ := newTestWriter(st)
	ctx := context.Background()

	conv, err := w.CreateConversation(ctx, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if _, err := w.SendMessage(ctx, conv.ID, "mallory", "hi", "tok-1"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestSendMessage_UnknownConversation(t *testing.T) {
	st := testStore(t)
	w, _ := newTestWriter(st)
	if _, err := w.SendMessage(context.Background(), "ghost", "alice", "hi", "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSendMessage_ValidationErrors(t *testing.T) {
	st := testStore(t)
	w, _ := newTestWriter(st)
	ctx := context.Background()

	conv, err := w.CreateConversation(ctx, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	cases := []struct {
		name                string
		sender, text, token string
	}{
		{"missing sender", "", "hi", "tok"},
		{"missing text", "alice", "", "tok"},
		{"missing token", "alice", "hi", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := w.SendMessage(ctx, conv.ID, tc.sender, tc.text, tc.token); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestCreateConversation_SeedsSummaries(t *testing.T) {
	st := testStore(t)
	w, _ := newTestWriter(st)
	ctx := context.Background()

	conv, err := w.CreateConversation(ctx, []string{"alice", "bob", "carol"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	rd := reader.New(st, 20, 100)
	for _, uid := range conv.ParticipantIDs {
		page, err := rd.ConversationsForUser(ctx, uid, "", 0)
		if err != nil {
			t.Fatalf("read %s: %v", uid, err)
		}
		if len(page.Conversations) != 1 || page.Conversations[0].ConversationID != conv.ID {
			t.Fatalf("user %s must see the new conversation before any message: %+v", uid, page.Conversations)
		}
	}
}

func TestCreateConversation_PairDedup(t *testing.T) {
	st := testStore(t)
	w, _ := newTestWriter(st)
	ctx := context.Background()

	first, err := w.CreateConversation(ctx, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// same pair in the other order resolves to the same conversation
	second, err := w.CreateConversation(ctx, []string{"bob", "alice"})
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("two-party conversation must dedup: %s vs %s", second.ID, first.ID)
	}

	// group conversations are never deduped
	third, err := w.CreateConversation(ctx, []string{"alice", "bob", "carol"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("group conversation must be distinct")
	}
}

func TestCreateConversation_InvalidParticipants(t *testing.T) {
	st := testStore(t)
	w, _ := newTestWriter(st)
	ctx := context.Background()

	for _, ids := range [][]string{
		{"alice"},
		{"alice", "alice"},
		{"alice", ""},
		nil,
	} {
		if _, err := w.CreateConversation(ctx, ids); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("participants %v: expected ErrInvalidRequest, got %v", ids, err)
		}
	}
}

func TestClock_StrictlyIncreasing(t *testing.T) {
	var c Clock
	prev := c.Next()
	for i := 0; i < 1000; i++ {
		next := c.Next()
		if next <= prev {
			t.Fatalf("timestamps must strictly increase: %d then %d", prev, next)
		}
		prev = next
	}
}
