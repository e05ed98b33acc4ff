package delay

import "container/heap"

// taskHeap implements container/heap.Interface, earliest due time first.
type taskHeap []request

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(request))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *taskHeap, r request) {
	heap.Push(h, r)
}

// heapPop removes and returns the earliest task. Panics if the heap is empty.
func heapPop(h *taskHeap) request {
	return heap.Pop(h).(request)
}

// heapRemoveByKey removes the task armed under key.
// Returns true if the task was found and removed.
func heapRemoveByKey(h *taskHeap, key string) bool {
	for i, r := range *h {
		if r.key == key {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
