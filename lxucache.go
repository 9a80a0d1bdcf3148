// Package lxucache is the dynamic embedding ID transformer: a bounded,
// in-memory map from 64-bit global IDs to compact cache slots [0, N),
// fronted by a batched Transform/Evict façade and backed by one of two
// single-shard layouts (table.Naive, table.Cacheline), optionally
// sharded across a worker pool (sharded.Sharded).
package lxucache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jamiealquiza/lxucache/lxu"
)

// IDTransformer is the batch façade: a configured strategy plus one
// variant (direct or sharded), a reusable fetch-list buffer, and an
// atomic fetch counter.
type IDTransformer struct {
	strategy   lxu.Strategy
	v          variant
	numEmbed   int64
	fetchList  []int64 // flattened (global, slot) pairs, length 2*numel at most
	fetchCount uint64  // atomic
}

// New constructs a transformer with numEmbeddings total slot capacity,
// per the hierarchical Config document.
func New(numEmbeddings int64, cfg Config) (*IDTransformer, error) {
	if numEmbeddings <= 0 {
		return nil, newError(ConfigInvalid, "num_embeddings must be positive", nil)
	}
	if int64(int(numEmbeddings)) != numEmbeddings {
		return nil, newError(OutOfMemory, fmt.Sprintf("cannot size %d slots on this platform", numEmbeddings), nil)
	}

	strategy, err := newStrategy(cfg.LXUStrategy, time.Now().UnixNano())
	if err != nil {
		return nil, err
	}

	v, err := newVariant(cfg.IDTransformer, numEmbeddings)
	if err != nil {
		return nil, err
	}

	return &IDTransformer{
		strategy: strategy,
		v:        v,
		numEmbed: numEmbeddings,
	}, nil
}

// Transform advances the logical clock once, dispatches every batch
// pair against the configured variant, and returns the concatenated
// list of (global, slot) pairs newly admitted during the call.
//
// globalBatches and slotBatchesOut must have equal outer length, and
// each inner pair must have equal length; slotBatchesOut[i] is written
// in place.
func (t *IDTransformer) Transform(globalBatches, slotBatchesOut [][]int64, logicalTime int64) (ok bool, idsToFetch [][2]int64, err error) {
	if logicalTime < 0 {
		return false, nil, newError(PreconditionViolated, "logical_time must be non-negative", nil)
	}
	if len(globalBatches) != len(slotBatchesOut) {
		return false, nil, newError(PreconditionViolated, "global_batches and slot_batches_out must have equal outer length", nil)
	}

	var totalNumel int
	for i := range globalBatches {
		if len(globalBatches[i]) != len(slotBatchesOut[i]) {
			return false, nil, newError(PreconditionViolated, "each batch pair must have equal length", nil)
		}
		totalNumel += len(globalBatches[i])
	}

	t.strategy.UpdateTime(uint32(logicalTime))

	// The fetch list is grown once and reused across calls.
	if need := 2 * totalNumel; cap(t.fetchList) < need {
		t.fetchList = make([]int64, need)
	} else {
		t.fetchList = t.fetchList[:need]
	}
	atomic.StoreUint64(&t.fetchCount, 0)

	fetch := func(g, s int64) {
		i := atomic.AddUint64(&t.fetchCount, 1) - 1
		t.fetchList[2*i] = g
		t.fetchList[2*i+1] = s
	}

	var processed int
	for i := range globalBatches {
		processed += t.v.Transform(globalBatches[i], slotBatchesOut[i], t.strategy.Update, fetch)
	}

	n := atomic.LoadUint64(&t.fetchCount)
	idsToFetch = make([][2]int64, n)
	for i := range idsToFetch {
		idsToFetch[i] = [2]int64{t.fetchList[2*i], t.fetchList[2*i+1]}
	}

	return processed == totalNumel, idsToFetch, nil
}

// Evict drives the strategy's victim ranking over every live entry and
// removes the k coldest global IDs, returning their (global, slot)
// pairs with the slot reported before the entry is freed. Candidates
// reach the strategy in Go map order, so among entries that tie on the
// strategy's ordering, which ones are evicted is not defined.
func (t *IDTransformer) Evict(k int64) ([][2]int64, error) {
	if k < 0 {
		return nil, newError(PreconditionViolated, "k must be non-negative", nil)
	}
	if k == 0 {
		return nil, nil
	}

	type liveEntry struct {
		slot int64
		rec  lxu.Record
	}
	live := make(map[int64]liveEntry)
	t.v.ForEach(func(global, slot int64, rec lxu.Record) {
		live[global] = liveEntry{slot: slot, rec: rec}
	})

	globals := make([]int64, 0, len(live))
	for g := range live {
		globals = append(globals, g)
	}

	idx := 0
	iter := func() (int64, lxu.Record, bool) {
		if idx >= len(globals) {
			return 0, 0, false
		}
		g := globals[idx]
		idx++
		return g, live[g].rec, true
	}

	victims := t.strategy.Evict(iter, int(k))

	pairs := make([][2]int64, 0, len(victims))
	evictGlobals := make([]int64, 0, len(victims))
	for _, g := range victims {
		pairs = append(pairs, [2]int64{g, live[g].slot})
		evictGlobals = append(evictGlobals, g)
	}

	t.v.Evict(evictGlobals)

	return pairs, nil
}

// ForEachSlot enumerates every live (global, slot) pair, in
// unspecified order. Must not be called concurrently with Transform or
// Evict.
func (t *IDTransformer) ForEachSlot(cb func(global, slot int64)) {
	t.v.ForEach(func(global, slot int64, _ lxu.Record) {
		cb(global, slot)
	})
}

// Stats is a point-in-time snapshot of transformer occupancy.
type Stats struct {
	NumEmbeddings int64   // total slot capacity N.
	Live          int     // number of currently live entries.
	UsedP         float64 // Live / NumEmbeddings, as a percentage.
}

// Stats walks every live entry once and reports current occupancy.
func (t *IDTransformer) Stats() Stats {
	var live int
	t.v.ForEach(func(int64, int64, lxu.Record) { live++ })

	var usedP float64
	if t.numEmbed > 0 {
		usedP = float64(live) / float64(t.numEmbed) * 100
	}

	return Stats{NumEmbeddings: t.numEmbed, Live: live, UsedP: usedP}
}

// Close releases the transformer's worker pool, if any. It must be
// called exactly once when the transformer is no longer needed.
func (t *IDTransformer) Close() {
	t.v.Close()
}
