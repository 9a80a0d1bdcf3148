package table

import (
	"github.com/jamiealquiza/lxucache/bitmap"
	"github.com/jamiealquiza/lxucache/lxu"
)

// naiveEntry is the open-map entry: a local slot (pre-offset) and its
// usage record.
type naiveEntry struct {
	slot int64
	rec  lxu.Record
}

// Naive is the open hash-map single-shard layout: a flat
// global_id -> (slot, record) map, slots drawn from a Bitmap, every
// reported slot shifted by a fixed offset.
type Naive struct {
	offset int64
	bm     *bitmap.Bitmap
	m      map[int64]naiveEntry
}

// NewNaive returns a Naive table with capacity n slots reported in
// [offset, offset+n).
func NewNaive(n int64, offset int64) *Naive {
	return &Naive{
		offset: offset,
		bm:     bitmap.New(int(n)),
		m:      make(map[int64]naiveEntry, n),
	}
}

// Transform implements Table.Transform: hit updates the existing
// record in place, miss allocates a free slot and fires fetch, a full
// table stops the call and returns the count processed so far.
func (t *Naive) Transform(globals []int64, slotsOut []int64, filter FilterFunc, update UpdateFunc, fetch FetchFunc) int {
	var count int

	for i, g := range globals {
		if !filter(g) {
			continue
		}

		if e, ok := t.m[g]; ok {
			reported := e.slot + t.offset
			e.rec = update(&e.rec, g, reported)
			t.m[g] = e
			slotsOut[i] = reported
			count++
			continue
		}

		if t.bm.Full() {
			return count
		}

		s := t.bm.NextFree()
		reported := int64(s) + t.offset
		rec := update(nil, g, reported)
		t.m[g] = naiveEntry{slot: int64(s), rec: rec}
		fetch(g, reported)
		slotsOut[i] = reported
		count++
	}

	return count
}

// Evict removes each present global ID and frees its slot.
func (t *Naive) Evict(globals []int64) {
	for _, g := range globals {
		e, ok := t.m[g]
		if !ok {
			continue
		}
		delete(t.m, g)
		t.bm.FreeSlot(int(e.slot))
	}
}

// ForEach yields every live entry exactly once, in map order.
func (t *Naive) ForEach(cb func(global, slot int64, rec lxu.Record)) {
	for g, e := range t.m {
		cb(g, e.slot+t.offset, e.rec)
	}
}

// Offset returns the slot offset added to every reported slot.
func (t *Naive) Offset() int64 {
	return t.offset
}

// Cap returns the slot capacity n.
func (t *Naive) Cap() int64 {
	return int64(t.bm.Len())
}
