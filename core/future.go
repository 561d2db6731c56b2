package core

import "github.com/viewlock/pbft/message"

// futureQueue buffers messages addressed to views ahead of the current
// one (§7). A single queue serves every future view of the height; it
// holds at most N*4 entries and evicts the oldest when full. It is
// drained on every round change, and messages still ahead of the new
// view are buffered again.
type futureQueue struct {
	capacity int
	items    []*message.Message
}

func newFutureQueue(capacity int) *futureQueue {
	return &futureQueue{capacity: capacity}
}

// push buffers msg, evicting the oldest entry if the queue is full.
func (q *futureQueue) push(msg *message.Message) {
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
	}

	q.items = append(q.items, msg)
}

// drain removes and returns every buffered message, oldest first.
func (q *futureQueue) drain() []*message.Message {
	items := q.items
	q.items = nil

	return items
}

func (q *futureQueue) len() int {
	return len(q.items)
}
