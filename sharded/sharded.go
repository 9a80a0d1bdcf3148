// Package sharded implements the composite that partitions the global
// ID key space across a fixed set of single-shard tables and dispatches
// each batch to a fixed-size worker pool, one persistent goroutine per
// shard, joined with a sync.WaitGroup per call.
package sharded

import (
	"sync"

	"github.com/jamiealquiza/lxucache/lxu"
	"github.com/jamiealquiza/lxucache/table"
)

// NewTableFunc constructs one shard's underlying Table with n slots
// reported starting at offset.
type NewTableFunc func(n, offset int64) table.Table

type transformTask struct {
	globals  []int64
	slotsOut []int64
	update   table.UpdateFunc
	fetch    table.FetchFunc
	result   *int
	wg       *sync.WaitGroup
}

type evictTask struct {
	globals []int64
	wg      *sync.WaitGroup
}

// Sharded partitions N total slots across T shards by global_id mod T,
// each shard owning a contiguous, globally-unique slot range. It owns
// exactly T worker goroutines for the transformer's lifetime; tasks
// submitted to a shard are guaranteed to run on that shard's own
// goroutine and no other, so no intra-shard locking is required.
type Sharded struct {
	shards    []table.Table
	transform []chan transformTask
	evict     []chan evictTask
	closeOnce sync.Once
	done      chan struct{}
}

// New splits n total slots as evenly as possible across shardCount
// shards (the last shard absorbing any remainder) and starts one
// worker goroutine per shard.
func New(newTable NewTableFunc, n int64, shardCount int) *Sharded {
	shards := make([]table.Table, shardCount)
	transformChans := make([]chan transformTask, shardCount)
	evictChans := make([]chan evictTask, shardCount)

	base := n / int64(shardCount)
	var offset int64
	for i := 0; i < shardCount; i++ {
		size := base
		if i == shardCount-1 {
			size = n - base*int64(shardCount-1)
		}
		shards[i] = newTable(size, offset)
		// The next shard starts past this one's actual slot space,
		// which for the bucketed layout exceeds the requested size.
		offset += shards[i].Cap()

		transformChans[i] = make(chan transformTask)
		evictChans[i] = make(chan evictTask)
	}

	s := &Sharded{
		shards:    shards,
		transform: transformChans,
		evict:     evictChans,
		done:      make(chan struct{}),
	}

	for i := range shards {
		go s.worker(i)
	}

	return s
}

func (s *Sharded) worker(idx int) {
	shard := s.shards[idx]
	for {
		select {
		case t := <-s.transform[idx]:
			*t.result = shard.Transform(t.globals, t.slotsOut, shardFilter(idx, len(s.shards)), t.update, t.fetch)
			t.wg.Done()
		case e := <-s.evict[idx]:
			shard.Evict(e.globals)
			e.wg.Done()
		case <-s.done:
			return
		}
	}
}

// shardFilter returns the predicate a shard uses to claim its slice of
// a batch: global IDs whose non-negative residue mod shardCount equals
// idx.
func shardFilter(idx, shardCount int) table.FilterFunc {
	t := int64(shardCount)
	return func(g int64) bool {
		r := g % t
		if r < 0 {
			r += t
		}
		return r == int64(idx)
	}
}

// Transform submits one task per shard over the entire batch, each
// filtered to the shard's own key partition, and joins on their
// completion. Each output index is claimed by exactly one shard, so
// there is no cross-shard race on slotsOut.
func (s *Sharded) Transform(globals []int64, slotsOut []int64, update table.UpdateFunc, fetch table.FetchFunc) int {
	var wg sync.WaitGroup
	counts := make([]int, len(s.shards))
	wg.Add(len(s.shards))

	for i := range s.shards {
		s.transform[i] <- transformTask{
			globals:  globals,
			slotsOut: slotsOut,
			update:   update,
			fetch:    fetch,
			result:   &counts[i],
			wg:       &wg,
		}
	}
	wg.Wait()

	var sum int
	for _, c := range counts {
		sum += c
	}
	return sum
}

// Evict broadcasts globals to every shard; each shard removes only the
// keys it actually holds, since admission already partitioned the key
// space.
func (s *Sharded) Evict(globals []int64) {
	var wg sync.WaitGroup
	wg.Add(len(s.shards))
	for i := range s.shards {
		s.evict[i] <- evictTask{globals: globals, wg: &wg}
	}
	wg.Wait()
}

// ForEach flattens every shard's iterator in shard order.
func (s *Sharded) ForEach(cb func(global, slot int64, rec lxu.Record)) {
	for _, shard := range s.shards {
		shard.ForEach(cb)
	}
}

// Offsets returns each shard's slot offset b_i, in shard order.
func (s *Sharded) Offsets() []int64 {
	offsets := make([]int64, len(s.shards))
	for i, shard := range s.shards {
		offsets[i] = shard.Offset()
	}
	return offsets
}

// Close stops the worker pool. It must be called exactly once, when
// the owning transformer is done with the composite.
func (s *Sharded) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
