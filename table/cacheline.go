package table

import (
	"math"
	"strconv"

	jfnv "github.com/jamiealquiza/fnv"

	"github.com/jamiealquiza/lxucache/lxu"
)

// groupSize is the number of entries linearly probed within one home
// group. 8 entries of clEntry (20 bytes, padded to 24) occupy 192
// bytes, three 64-byte cache lines, so a probe stays within those few
// lines.
const groupSize = 8

const filledBit = math.MinInt64

// clEntry is one bucketed-layout slot: a global ID, a tagged slot
// (top bit is the filled flag, remaining bits are the slot number —
// here, simply the entry's own position in the table), and its usage
// record.
type clEntry struct {
	global int64
	tagged int64
	rec    lxu.Record
}

func (e clEntry) filled() bool { return e.tagged&filledBit != 0 }
func (e clEntry) slot() int64  { return e.tagged &^ filledBit }

// Cacheline is the bucketed single-shard layout: groups of groupSize
// entries, linear-probed within a group only. Unlike Naive, it has no
// separate slot allocator — a filled bucket position is itself the
// slot number (offset-shifted on report), so the rounded-up table
// capacity (not the requested embedding count) is the true slot space.
// It trades load-factor headroom for cache-line-resident, fixed-probe
// lookups.
type Cacheline struct {
	offset int64
	groups int
	tbl    []clEntry
}

// NewCacheline returns a Cacheline table sized so that its groupSize
// groups cover at least 2n entries (rounded up to a whole number of
// groups), giving the hash directory headroom over the nominal n
// embedding count. Slots are reported in [offset, offset+capacity).
func NewCacheline(n int64, offset int64) *Cacheline {
	capacity := int64(groupSize) * ceilDiv(2*n, int64(groupSize))
	return &Cacheline{
		offset: offset,
		groups: int(capacity / groupSize),
		tbl:    make([]clEntry, capacity),
	}
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

func hashGlobal(g int64) uint64 {
	return jfnv.Hash64a(strconv.FormatUint(uint64(g), 10))
}

// probe walks the home group for g. On a hit it returns the entry's
// index and hit=true. On a miss (the first empty slot encountered) it
// returns that slot as insertAt. If all groupSize slots are filled
// with non-matching keys, fullForKey is true: the caller must treat
// this batch the way a full bitmap is treated in the naive layout and
// stop, even if other groups still have room.
func (c *Cacheline) probe(g int64) (idx int, hit bool, insertAt int, fullForKey bool) {
	h := hashGlobal(g)
	home := int(h % uint64(c.groups))
	start := int(h % uint64(groupSize))

	for j := 0; j < groupSize; j++ {
		pos := (start + j) % groupSize
		bidx := home*groupSize + pos
		e := &c.tbl[bidx]

		if !e.filled() {
			return bidx, false, bidx, false
		}
		if e.global == g {
			return bidx, true, 0, false
		}
	}

	return 0, false, 0, true
}

// Transform implements Table.Transform for the bucketed layout:
// lookup and write happen in place, on both hit and miss.
func (c *Cacheline) Transform(globals []int64, slotsOut []int64, filter FilterFunc, update UpdateFunc, fetch FetchFunc) int {
	var count int

	for i, g := range globals {
		if !filter(g) {
			continue
		}

		idx, hit, insertAt, fullForKey := c.probe(g)

		if hit {
			e := &c.tbl[idx]
			reported := e.slot() + c.offset
			e.rec = update(&e.rec, g, reported)
			slotsOut[i] = reported
			count++
			continue
		}

		if fullForKey {
			return count
		}

		reported := int64(insertAt) + c.offset
		rec := update(nil, g, reported)
		c.tbl[insertAt] = clEntry{global: g, tagged: filledBit | int64(insertAt), rec: rec}
		fetch(g, reported)
		slotsOut[i] = reported
		count++
	}

	return count
}

// Evict removes each present global ID, following the same probe
// sequence as Transform. Stopping at the first empty slot (rather than
// shifting later entries back, a tombstone scheme, or a full rescan)
// relies on insertion never skipping over an empty slot within a
// group.
func (c *Cacheline) Evict(globals []int64) {
	for _, g := range globals {
		idx, hit, _, _ := c.probe(g)
		if !hit {
			continue
		}
		c.tbl[idx] = clEntry{}
	}
}

// ForEach yields every filled entry exactly once, in table order.
func (c *Cacheline) ForEach(cb func(global, slot int64, rec lxu.Record)) {
	for _, e := range c.tbl {
		if e.filled() {
			cb(e.global, e.slot()+c.offset, e.rec)
		}
	}
}

// Offset returns the slot offset added to every reported slot.
func (c *Cacheline) Offset() int64 {
	return c.offset
}

// Cap returns the rounded-up table capacity, which is also the size of
// the slot space: a filled position is itself a slot.
func (c *Cacheline) Cap() int64 {
	return int64(len(c.tbl))
}
