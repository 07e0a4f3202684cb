// Package repair holds the divergence-repair machinery: a bounded task
// queue fed by the write path on partial fanout, and the reconciler that
// re-derives summary state from the message log.
package repair

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"messengerdb/pkg/logger"
	"messengerdb/pkg/store"
)

// Task flags a conversation as possibly-diverged: one or more participant
// summaries may not reflect the latest logged message.
type Task struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	// Seq is the persistence sequence assigned at enqueue; it names the
	// durable row removed after a successful repair.
	Seq uint64 `json:"seq"`
}

// ErrQueueFull is returned by the in-memory channel when at capacity. The
// task is still persisted, so the sweep picks it up later.
var ErrQueueFull = errors.New("repair queue full")

// Item wraps a Task with its pooled payload buffer. Consumers must call
// Done() exactly once after processing.
type Item struct {
	Task Task

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

// Done releases pooled resources.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			if cap(it.buf.B) <= maxPooledBuffer {
				bytebufferpool.Put(it.buf)
			}
			it.buf = nil
		}
		itemPool.Put(it)
	})
}

var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer bounds what goes back into the buffer pool so a burst of
// large tasks cannot pin memory.
const maxPooledBuffer = 64 * 1024

// Queue is the bounded repair-task queue. Every enqueue first persists the
// task under the repair: partition, so a crash between the failed fanout
// write and the repair run cannot lose the divergence flag; the channel is
// only the fast path to the worker.
type Queue struct {
	ch       chan *Item
	capacity int
	store    store.Client
	seq      uint64
	dropped  uint64
}

// NewQueue creates a Queue with the provided capacity (<=0 selects 1024).
func NewQueue(st store.Client, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity, store: st}
}

// Enqueue persists the task and offers it to the worker channel. A full
// channel is not an error for the caller: the durable row remains and the
// periodic sweep will replay it. When the durable write itself fails the
// channel offer still happens, so the in-process worker can repair even
// while the repair partition is unwritable; the persistence error is
// returned so callers can log the lost durability.
func (q *Queue) Enqueue(ctx context.Context, t Task) error {
	t.Seq = atomic.AddUint64(&q.seq, 1)
	b, _ := json.Marshal(t)
	perr := q.store.Put(ctx, store.RepairPartition, store.RepairClustering(t.Seq), b)
	if perr != nil {
		logger.Warn("repair_task_not_durable", "conversation", t.ConversationID, "seq", t.Seq, "error", perr)
	}

	it := itemPool.Get().(*Item)
	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], b...)
	it.Task = t
	it.buf = bb
	it.once = sync.Once{}

	select {
	case q.ch <- it:
		logger.Debug("repair_enqueued", "conversation", t.ConversationID, "reason", t.Reason, "seq", t.Seq)
		return perr
	default:
		it.Done()
		atomic.AddUint64(&q.dropped, 1)
		if perr != nil {
			// neither durable nor queued: the task is lost until the
			// next send for this conversation flags it again
			logger.Error("repair_task_lost", "conversation", t.ConversationID, "seq", t.Seq, "error", perr)
		} else {
			logger.Warn("repair_queue_full", "conversation", t.ConversationID, "seq", t.Seq)
		}
		return perr
	}
}

// Ack removes the durable row for a completed task.
func (q *Queue) Ack(ctx context.Context, t Task) error {
	return q.store.Delete(ctx, store.RepairPartition, store.RepairClustering(t.Seq))
}

// Pending returns the persisted, not-yet-acked tasks in enqueue order.
func (q *Queue) Pending(ctx context.Context) ([]Task, error) {
	rows, err := q.store.Scan(ctx, store.RepairPartition, "", 0)
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(rows))
	for _, row := range rows {
		var t Task
		if json.Unmarshal(row.Value, &t) == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

// RestoreSeq advances the enqueue sequence past existing persisted rows so
// restarts do not reuse clustering keys.
func (q *Queue) RestoreSeq(ctx context.Context) error {
	tasks, err := q.Pending(ctx)
	if err != nil {
		return err
	}
	var max uint64
	for _, t := range tasks {
		if t.Seq > max {
			max = t.Seq
		}
	}
	for {
		cur := atomic.LoadUint64(&q.seq)
		if cur >= max || atomic.CompareAndSwapUint64(&q.seq, cur, max) {
			return nil
		}
	}
}

// Out returns the consumer side of the queue.
func (q *Queue) Out() <-chan *Item { return q.ch }

// RunWorker invokes handler for each dequeued task until stop is closed.
// Item.Done() is guaranteed even when the handler errors.
func (q *Queue) RunWorker(stop <-chan struct{}, handler func(Task) error) {
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return
			}
			func(it *Item) {
				defer it.Done()
				if err := handler(it.Task); err != nil {
					logger.Error("repair_task_failed", "conversation", it.Task.ConversationID, "seq", it.Task.Seq, "error", err)
				}
			}(it)
		case <-stop:
			return
		}
	}
}

// Len returns the number of queued (in-memory) tasks.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured channel capacity.
func (q *Queue) Cap() int { return q.capacity }

// Dropped counts tasks that skipped the channel because it was full.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
