package repair

import (
	"context"
	"testing"
	"time"

	"messengerdb/pkg/store"
)

func testStore(t *testing.T) *store.Pebble {
	t.Helper()
	p, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestQueue_EnqueuePersistsAndDelivers(t *testing.T) {
	st := testStore(t)
	q := NewQueue(st, 8)
	ctx := context.Background()

	task := Task{ConversationID: "conv-1", MessageID: "m1", Reason: "summary write failed"}
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ConversationID != "conv-1" {
		t.Fatalf("unexpected pending set: %+v", pending)
	}

	select {
	case it := <-q.Out():
		if it.Task.ConversationID != "conv-1" {
			t.Fatalf("unexpected task: %+v", it.Task)
		}
		it.Done()
	case <-time.After(time.Second):
		t.Fatal("task never reached the channel")
	}

	if err := q.Ack(ctx, pending[0]); err != nil {
		t.Fatalf("ack: %v", err)
	}
	pending, err = q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending after ack: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("acked task must be gone, got %+v", pending)
	}
}

func TestQueue_FullChannelStillPersists(t *testing.T) {
	st := testStore(t)
	q := NewQueue(st, 1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Task{ConversationID: "conv-1"}); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	// channel is now full; the second enqueue must not fail
	if err := q.Enqueue(ctx, Task{ConversationID: "conv-2"}); err != nil {
		t.Fatalf("enqueue 2: %v", err)
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", q.Dropped())
	}
	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("both tasks must be durable, got %d", len(pending))
	}
	// enqueue order preserved by the clustering key
	if pending[0].ConversationID != "conv-1" || pending[1].ConversationID != "conv-2" {
		t.Fatalf("unexpected order: %+v", pending)
	}
}

// repairFaultStore fails writes to the repair partition so the durable
// half of Enqueue can be exercised independently of the channel half.
type repairFaultStore struct {
	store.Client
}

func (f *repairFaultStore) Put(ctx context.Context, partition, clustering string, value []byte) error {
	if partition == store.RepairPartition {
		return store.ErrUnavailable
	}
	return f.Client.Put(ctx, partition, clustering, value)
}

func TestQueue_UnwritableRepairPartitionStillDelivers(t *testing.T) {
	st := testStore(t)
	q := NewQueue(&repairFaultStore{Client: st}, 8)
	ctx := context.Background()

	task := Task{ConversationID: "conv-1", MessageID: "m1", Reason: "summary write failed"}
	if err := q.Enqueue(ctx, task); err == nil {
		t.Fatal("enqueue must report the lost durability")
	}

	// the task bypasses the dead partition and reaches the worker anyway
	select {
	case it := <-q.Out():
		if it.Task.ConversationID != "conv-1" {
			t.Fatalf("unexpected task: %+v", it.Task)
		}
		it.Done()
	case <-time.After(time.Second):
		t.Fatal("task never reached the channel")
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("nothing should have been persisted, got %+v", pending)
	}
}

func TestQueue_RestoreSeq(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	q1 := NewQueue(st, 4)
	for i := 0; i < 3; i++ {
		if err := q1.Enqueue(ctx, Task{ConversationID: "conv-1"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	// a restarted queue must not reuse clustering keys of persisted rows
	q2 := NewQueue(st, 4)
	if err := q2.RestoreSeq(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := q2.Enqueue(ctx, Task{ConversationID: "conv-2"}); err != nil {
		t.Fatalf("enqueue after restore: %v", err)
	}
	pending, err := q2.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 4 {
		t.Fatalf("expected 4 durable tasks, got %d", len(pending))
	}
	if pending[3].Seq != 4 {
		t.Fatalf("expected restarted seq to continue at 4, got %d", pending[3].Seq)
	}
}

func TestQueue_RunWorker(t *testing.T) {
	st := testStore(t)
	q := NewQueue(st, 4)
	ctx := context.Background()

	done := make(chan Task, 1)
	stop := make(chan struct{})
	defer close(stop)
	go q.RunWorker(stop, func(task Task) error {
		done <- task
		return nil
	})

	if err := q.Enqueue(ctx, Task{ConversationID: "conv-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case task := <-done:
		if task.ConversationID != "conv-1" {
			t.Fatalf("unexpected task: %+v", task)
		}
	case <-time.After(time.Second):
		t.Fatal("worker never received the task")
	}
}
