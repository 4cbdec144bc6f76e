// Package scheduler implements the daemon tick of spec section 4.2: a
// serial, deterministic pass over every non-terminal task producing a set
// of actions, re-entrant after a crash via the store and journal.
// Grounded on the teacher lineage's container/heap-based scheduler
// (internal/orchestrator/scheduler.go), kept for its creation-time
// fairness ordering and dependency-satisfaction check, generalized from a
// single completed/failed outcome model to the full 6-phase tick.
package scheduler

import (
	"container/heap"
	"time"
)

// readyItem is one task eligible for dispatch, ordered by creation time
// ascending so fairness (spec section 5) holds: older tasks are always
// popped before newer ones.
type readyItem struct {
	taskID    string
	createdAt time.Time
	index     int
}

// readyQueue is a container/heap.Interface min-heap on createdAt.
type readyQueue []*readyItem

func (q readyQueue) Len() int { return len(q) }
func (q readyQueue) Less(i, j int) bool { return q[i].createdAt.Before(q[j].createdAt) }
func (q readyQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}

func (q *readyQueue) Push(x any) {
	item := x.(*readyItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// newReadyQueue builds a heap from the given task ids/creation times.
func newReadyQueue(tasks map[string]time.Time) *readyQueue {
	q := make(readyQueue, 0, len(tasks))
	for id, created := range tasks {
		q = append(q, &readyItem{taskID: id, createdAt: created})
	}
	heap.Init(&q)
	return &q
}

func (q *readyQueue) popAll() []string {
	var out []string
	for q.Len() > 0 {
		out = append(out, heap.Pop(q).(*readyItem).taskID)
	}
	return out
}
