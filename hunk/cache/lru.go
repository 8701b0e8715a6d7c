package cache

// lruHeap is a min-heap of unpinned entries keyed on rank, so the least
// recently touched entry sits at the root.
type lruHeap []*slot

func (h *lruHeap) Len() int { return len(*h) }

func (h *lruHeap) Less(i, j int) bool {
	return (*h)[i].rank < (*h)[j].rank
}

func (h *lruHeap) Swap(i, j int) {
	(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
	(*h)[i].heapIndex = i
	(*h)[j].heapIndex = j
}

func (h *lruHeap) Push(x any) {
	s := x.(*slot) //nolint:errcheck // heap.Interface contract guarantees type
	s.heapIndex = len(*h)
	*h = append(*h, s)
}

func (h *lruHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.heapIndex = -1
	*h = old[:n-1]
	return s
}
