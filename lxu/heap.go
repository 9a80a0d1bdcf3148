package lxu

import (
	"container/heap"
	"sort"
)

// victimEntry is one candidate in the bounded top-k victim selection:
// a (global_id, record) pair plus the order it was observed in, used
// only to break ties stably.
type victimEntry struct {
	global int64
	rec    Record
	seq    int
}

// entryLess reports whether a is a colder (more evictable) candidate
// than b: lower frequency power first, then older time, then earlier
// observation order so that ties resolve stably.
func entryLess(a, b victimEntry) bool {
	if a.rec.FreqPower() != b.rec.FreqPower() {
		return a.rec.FreqPower() < b.rec.FreqPower()
	}
	if a.rec.Time() != b.rec.Time() {
		return a.rec.Time() < b.rec.Time()
	}
	return a.seq < b.seq
}

// victimHeap is a bounded max-heap (by entryLess) of the k coldest
// entries seen so far. Its root is the hottest entry currently held,
// i.e. the first to be displaced when a colder candidate arrives.
type victimHeap []victimEntry

func (h victimHeap) Len() int { return len(h) }

func (h victimHeap) Less(i, j int) bool {
	// container/heap's root is the minimum by Less; we want the root
	// to be the hottest held entry, so invert entryLess.
	return entryLess(h[j], h[i])
}

func (h victimHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *victimHeap) Push(x interface{}) {
	*h = append(*h, x.(victimEntry))
}

func (h *victimHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// selectColdest performs a single pass over iter, retaining only the k
// coldest entries seen via a bounded heap, then returns their global
// IDs sorted coldest-first. Full sort of the whole stream is never
// required.
func selectColdest(iter RecordIter, k int) []int64 {
	h := make(victimHeap, 0, k)
	var seq int

	for {
		global, rec, ok := iter()
		if !ok {
			break
		}
		e := victimEntry{global: global, rec: rec, seq: seq}
		seq++

		if len(h) < k {
			heap.Push(&h, e)
			continue
		}
		if entryLess(e, h[0]) {
			heap.Pop(&h)
			heap.Push(&h, e)
		}
	}

	sort.Slice(h, func(i, j int) bool { return entryLess(h[i], h[j]) })

	out := make([]int64, len(h))
	for i, e := range h {
		out[i] = e.global
	}
	return out
}
