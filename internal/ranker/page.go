package ranker

import "container/heap"

// Page returns hits[offset:offset+limit] of the fully ranked list. With a
// positive limit only the best offset+limit hits are kept on a bounded heap;
// limit <= 0 returns everything from offset. hits is reordered in place.
func Page(hits []Hit, offset, limit int) []Hit {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		Sort(hits)
		if offset >= len(hits) {
			return []Hit{}
		}
		return hits[offset:]
	}

	keep := offset + limit
	h := &hitHeap{}
	heap.Init(h)
	for _, hit := range hits {
		heap.Push(h, hit)
		if h.Len() > keep {
			heap.Pop(h)
		}
	}
	ranked := make([]Hit, h.Len())
	for i := len(ranked) - 1; i >= 0; i-- {
		ranked[i] = heap.Pop(h).(Hit)
	}
	if offset >= len(ranked) {
		return []Hit{}
	}
	return ranked[offset:]
}

// hitHeap keeps the worst retained hit at the root.
type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }

func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x interface{}) {
	*h = append(*h, x.(Hit))
}

func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
