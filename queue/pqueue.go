package queue

import "container/heap"

// priorityQueue orders Tasks by (Priority.Weight() asc, CreatedAt asc) --
// spec.md §4.4/§5: higher priority first, ties broken FIFO. It backs one
// per-streamer queue; container/heap keeps push/pop at O(log n).
type priorityQueue []*Task

func (q priorityQueue) Len() int { return len(q) }

func (q priorityQueue) Less(i, j int) bool {
	wi, wj := q[i].Priority.Weight(), q[j].Priority.Weight()
	if wi != wj {
		return wi < wj
	}
	return q[i].CreatedAt.Before(q[j].CreatedAt)
}

func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *priorityQueue) Push(x interface{}) {
	*q = append(*q, x.(*Task))
}

func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

func newPriorityQueue() *priorityQueue {
	pq := priorityQueue{}
	heap.Init(&pq)
	return &pq
}
