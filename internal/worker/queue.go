package worker

import (
	"sync"

	"github.com/rbright/hubdrive/internal/protocol"
)

// queue is the only structure shared between front ends and the worker
// goroutine. signal holds at most one pending wakeup.
type queue struct {
	mu       sync.Mutex
	items    []protocol.Command
	coalesce bool
	signal   chan struct{}
}

func newQueue(coalesce bool) *queue {
	return &queue{coalesce: coalesce, signal: make(chan struct{}, 1)}
}

// push appends cmd. With coalescing, a pending command of the same category
// is removed first so only the newest intent per category is sent.
func (q *queue) push(cmd protocol.Command) (replaced bool) {
	q.mu.Lock()
	if q.coalesce {
		category := cmd.Category()
		kept := q.items[:0]
		for _, pending := range q.items {
			if pending.Category() == category {
				replaced = true
				continue
			}
			kept = append(kept, pending)
		}
		q.items = kept
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return replaced
}

func (q *queue) pop() (protocol.Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return protocol.Command{}, false
	}
	cmd := q.items[0]
	q.items = q.items[1:]
	return cmd, true
}

func (q *queue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
