package ps

import "fmt"

// baseChunk bounds how many (global_id, slot) pairs go into one
// pipelined backing-store request of a Fetch or Evict call, before the
// chunk size is divided down for wide rows.
const baseChunk = 256

// Glue ties the façade's (global_id, slot) admit/evict lists to a
// TensorStore and a BackingStore: it pipelines reads on fetch, writes
// on evict, and reinitializes cold rows when requested.
type Glue struct {
	table   string
	prefix  string
	store   BackingStore
	tensors TensorStore
}

// NewGlue constructs the glue for one embedding table.
func NewGlue(table, prefix string, store BackingStore, tensors TensorStore) *Glue {
	return &Glue{table: table, prefix: prefix, store: store, tensors: tensors}
}

// chunkSize caps per-task pipeline depth: a base budget divided by the
// row width across columns and optimizer states.
func (g *Glue) chunkSize() int {
	cols := g.tensors.NumColumns()
	if cols < 1 {
		cols = 1
	}
	states := g.tensors.NumOptimizerStates()
	if states < 1 {
		states = 1
	}
	size := baseChunk / (cols * states)
	if size < 1 {
		size = 1
	}
	return size
}

// Fetch pulls embedding rows for every (global_id, slot) pair into the
// tensor store, in pipelined chunks. Absent keys are reinitialized
// with uniform weights when reinit is true; otherwise the slot's
// current contents are left untouched. notify is called exactly once with
// the first error encountered, or nil on full success.
func (g *Glue) Fetch(pairs [][2]int64, reinit bool, weightMin, weightMax float64, notify func(error)) {
	chunk := g.chunkSize()
	states := g.tensors.NumOptimizerStates()

	for start := 0; start < len(pairs); start += chunk {
		end := start + chunk
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]

		keys, coords := g.fetchKeys(batch, states)
		values, err := g.store.GetMulti(keys)
		if err != nil {
			notify(fmt.Errorf("ps: fetch: %w", err))
			return
		}

		for i, v := range values {
			if v == nil {
				if reinit && coords[i].state == 0 {
					g.tensors.FillUniform(coords[i].slot, weightMin, weightMax)
				}
				continue
			}
			g.writeRow(coords[i], v)
		}
	}

	notify(nil)
}

// Evict serializes each (global_id, slot) pair's row and optimizer
// states into the backing store, in pipelined chunks. notify is
// called exactly once with the first error encountered, or nil.
func (g *Glue) Evict(pairs [][2]int64, notify func(error)) {
	chunk := g.chunkSize()
	states := g.tensors.NumOptimizerStates()

	for start := 0; start < len(pairs); start += chunk {
		end := start + chunk
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]

		keys, coords := g.fetchKeys(batch, states)
		values := make([][]byte, len(keys))
		for i, c := range coords {
			values[i] = g.readRow(c)
		}

		if err := g.store.SetMulti(keys, values); err != nil {
			notify(fmt.Errorf("ps: evict: %w", err))
			return
		}
	}

	notify(nil)
}

type coord struct {
	global int64
	slot   int64
	state  int // 0 is the primary row, i+1 is optimizer state i
}

// fetchKeys expands each (global, slot) pair into one key per stored
// tensor: the primary row at osid 0, optimizer state i at osid i+1.
// Rows move through the store whole, so the column coordinate is
// always 0; NumColumns only informs pipeline depth.
func (g *Glue) fetchKeys(pairs [][2]int64, states int) ([]string, []coord) {
	keys := make([]string, 0, len(pairs)*(1+states))
	coords := make([]coord, 0, len(pairs)*(1+states))

	for _, p := range pairs {
		global, slot := p[0], p[1]
		for o := 0; o <= states; o++ {
			keys = append(keys, Key(g.prefix, g.table, global, 0, o))
			coords = append(coords, coord{global: global, slot: slot, state: o})
		}
	}
	return keys, coords
}

func (g *Glue) writeRow(c coord, value []byte) {
	var dst []byte
	if c.state == 0 {
		dst = g.tensors.RowBytes(c.slot)
	} else {
		dst = g.tensors.OptimizerStateBytes(c.slot, c.state-1)
	}
	copy(dst, value)
}

func (g *Glue) readRow(c coord) []byte {
	if c.state == 0 {
		return g.tensors.RowBytes(c.slot)
	}
	return g.tensors.OptimizerStateBytes(c.slot, c.state-1)
}
