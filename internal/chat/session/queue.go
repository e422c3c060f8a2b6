package session

import (
	"sync"

	"github.com/lk2023060901/garden-chat-go/internal/chat/protocol"
	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

// Queue is an unbounded multi-producer single-consumer message queue.
// Push never blocks; Pop blocks until an item arrives or the queue is closed
// and fully drained. Items enqueued before Close remain poppable after it,
// so a consumer can flush pending deliveries during shutdown.
type Queue struct {
	mu     sync.Mutex
	items  []protocol.Message
	closed bool

	// wake is a capacity-1 signal channel. Pop re-checks state after every
	// wakeup, so a coalesced signal cannot lose items.
	wake chan struct{}
}

// NewQueue creates an empty open queue.
func NewQueue() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
	}
}

// Push appends a message. It returns ErrSessionClosed once Close was called
// and never blocks the producer.
func (q *Queue) Push(msg protocol.Message) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return merr.WrapErrSessionClosed("queue")
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Pop removes the oldest message, blocking while the queue is open and
// empty. The second return is false only when the queue is closed and
// drained.
func (q *Queue) Pop() (protocol.Message, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return msg, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, false
		}
		<-q.wake
	}
}

// Close marks the queue closed. Pending items stay readable via Pop;
// subsequent Push calls fail. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
