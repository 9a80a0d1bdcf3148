package ps

import "fmt"

// BackingStore is the pipelined KV client the glue drives. A
// ValkeyStore is the concrete implementation; tests use a fake.
type BackingStore interface {
	// GetMulti issues a pipelined read for every key, in order,
	// returning each value (nil if absent) and the first error
	// encountered, if any.
	GetMulti(keys []string) ([][]byte, error)

	// SetMulti issues a pipelined write of every (key, value) pair.
	SetMulti(keys []string, values [][]byte) error

	// Close releases the backing connection.
	Close() error
}

// TensorStore is the accelerator-resident embedding table the glue
// reads from and writes into. It is out of scope to implement (owned
// by the host model runtime); only its access surface is specified.
type TensorStore interface {
	// NumColumns reports the row width, excluding optimizer states.
	NumColumns() int

	// NumOptimizerStates reports how many per-row optimizer-state
	// tensors accompany the primary embedding row.
	NumOptimizerStates() int

	// RowBytes returns the live view (not a copy) of slot's primary
	// embedding row, reinterpreted as bytes for storage I/O.
	RowBytes(slot int64) []byte

	// OptimizerStateBytes returns the live view of slot's i-th
	// optimizer-state tensor, reinterpreted as bytes.
	OptimizerStateBytes(slot int64, i int) []byte

	// FillUniform fills slot's primary row with values drawn uniformly
	// from [min, max] and zeroes its optimizer states. Used on a miss
	// when reinit is requested.
	FillUniform(slot int64, min, max float64)
}

// Key builds the backing-store key for one (table, global_id, column,
// optimizer_state_index) coordinate: "{prefix}_table_{table}_gid_{g}_cid_{c}_osid_{o}".
func Key(prefix, table string, global int64, column, optimizerState int) string {
	return fmt.Sprintf("%s_table_%s_gid_%d_cid_%d_osid_%d", prefix, table, global, column, optimizerState)
}
