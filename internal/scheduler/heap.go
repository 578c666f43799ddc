package scheduler

import "container/heap"

// eventHeap implements container/heap.Interface for armed events,
// ordered by (at, seq): earliest first, then first armed.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	e := x.(*Event)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// heapArm inserts e, or moves it if it is already armed.
func heapArm(h *eventHeap, e *Event) {
	if e.index >= 0 {
		heap.Fix(h, e.index)
		return
	}
	heap.Push(h, e)
}

// heapPop removes and returns the earliest event.
// Panics if the heap is empty.
func heapPop(h *eventHeap) *Event {
	return heap.Pop(h).(*Event)
}
