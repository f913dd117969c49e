package scheduler

import (
	"container/heap"
	"time"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
)

// queueItem is one entry in the trigger queue.
type queueItem struct {
	trigger *domain.Trigger
	index   int
}

// triggerHeap orders items by (next_fire_at, job_id) ascending, which is also
// the dispatch order for triggers due in the same tick.
type triggerHeap []*queueItem

func (h triggerHeap) Len() int { return len(h) }

func (h triggerHeap) Less(i, j int) bool {
	if !h[i].trigger.NextFireAt.Equal(h[j].trigger.NextFireAt) {
		return h[i].trigger.NextFireAt.Before(h[j].trigger.NextFireAt)
	}
	return h[i].trigger.JobID < h[j].trigger.JobID
}

func (h triggerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *triggerHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *triggerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// triggerQueue is the in-memory priority queue of pending triggers. It is a
// cache of the durable trigger rows; callers must hold the engine mutex.
type triggerQueue struct {
	heap  triggerHeap
	byJob map[string]*queueItem
}

func newTriggerQueue() *triggerQueue {
	return &triggerQueue{
		heap:  triggerHeap{},
		byJob: make(map[string]*queueItem),
	}
}

// push inserts or replaces the queue entry for the trigger's job.
func (q *triggerQueue) push(trigger *domain.Trigger) {
	if existing, ok := q.byJob[trigger.JobID]; ok {
		existing.trigger = trigger
		heap.Fix(&q.heap, existing.index)
		return
	}

	item := &queueItem{trigger: trigger}
	heap.Push(&q.heap, item)
	q.byJob[trigger.JobID] = item
}

// remove drops the queue entry for a job, if present.
func (q *triggerQueue) remove(jobID string) {
	item, ok := q.byJob[jobID]
	if !ok {
		return
	}
	heap.Remove(&q.heap, item.index)
	delete(q.byJob, jobID)
}

// peek returns the earliest trigger without removing it.
func (q *triggerQueue) peek() *domain.Trigger {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0].trigger
}

// popDue removes and returns the earliest trigger if it is due at or before
// the deadline.
func (q *triggerQueue) popDue(deadline time.Time) *domain.Trigger {
	if len(q.heap) == 0 {
		return nil
	}
	head := q.heap[0].trigger
	if head.NextFireAt.After(deadline) {
		return nil
	}
	item := heap.Pop(&q.heap).(*queueItem)
	delete(q.byJob, item.trigger.JobID)
	return item.trigger
}

func (q *triggerQueue) len() int {
	return len(q.heap)
}
