// Package table implements the two single-shard global-ID-to-slot map
// layouts: Naive (open hash map) and Cacheline (bucketed, linear
// probing within a group). Both satisfy Table and are interchangeable
// behind the sharded composite and the façade.
package table

import "github.com/jamiealquiza/lxucache/lxu"

// UpdateFunc computes the replacement usage record for a touch of
// (global, slot). prev is nil on a miss.
type UpdateFunc func(prev *lxu.Record, global, slot int64) lxu.Record

// FilterFunc reports whether a shard should process a given global ID.
// Injected by the sharded composite; the identity filter is used in
// single-shard tests.
type FilterFunc func(global int64) bool

// FetchFunc is called exactly once for each newly admitted global ID,
// with the slot it was assigned (already offset-adjusted).
type FetchFunc func(global, slot int64)

// Table is the shared contract between the naive (open) and cacheline
// (bucketed) single-shard map layouts.
type Table interface {
	// Transform processes globals in order, writing slotsOut[i] for
	// every index that passes filter. It stops early and returns the
	// count successfully processed if the table fills up mid-batch.
	Transform(globals []int64, slotsOut []int64, filter FilterFunc, update UpdateFunc, fetch FetchFunc) int

	// Evict removes each of globals that is present, freeing its slot.
	Evict(globals []int64)

	// ForEach yields every live (global, slot, record) triple exactly
	// once, in unspecified order. Must not be called concurrently with
	// a mutating call on the same Table.
	ForEach(func(global, slot int64, rec lxu.Record))

	// Offset is the slot offset b added to every slot this table
	// reports, so slots stay globally unique across shards.
	Offset() int64

	// Cap is the size of this table's slot space: every reported slot
	// lies in [Offset(), Offset()+Cap()). For the bucketed layout this
	// is the rounded-up table capacity, not the requested count.
	Cap() int64
}
