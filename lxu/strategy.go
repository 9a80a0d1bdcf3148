package lxu

import "sync/atomic"

// DefaultMinUsedFreqPower is the floor applied to a record's frequency
// power when none exists yet, so recently admitted IDs are not evicted
// instantly by a single cold sweep.
const DefaultMinUsedFreqPower uint8 = 5

// RecordIter streams (global_id, record) pairs, returning ok == false
// at the end of the stream. It must not be retained past the call
// that receives it.
type RecordIter func() (globalID int64, rec Record, ok bool)

// Strategy is the eviction-record contract a Table stamps on every
// touch and a Transformer consults to pick victims.
type Strategy interface {
	// UpdateTime sets the logical clock. Called once per batch, before
	// any shard task starts, so every touch in a batch observes the
	// same time.
	UpdateTime(t uint32)

	// Update returns the record that should replace prev (nil on a
	// miss) for a touch of (globalID, slot) at the current logical
	// time.
	Update(prev *Record, globalID, slot int64) Record

	// Evict returns the k global IDs whose records rank lowest under
	// the strategy's victim ordering.
	Evict(iter RecordIter, k int) []int64
}

// MixedLFULRU is the sole Strategy implementation: it evicts
// infrequently used entries first, then least-recently used entries
// among equals. Frequency is tracked as a power of two, approximated
// probabilistically so that counting stays O(1) amortized instead of
// exact.
type MixedLFULRU struct {
	generator    *randomBitsGenerator
	minFreqPower uint8
	time         uint32 // owned atomic cell; single writer (UpdateTime), many readers
}

// NewMixedLFULRU constructs a strategy with the given frequency floor.
// seed fixes the underlying random-bit stream; pass a fixed value in
// tests for reproducibility.
func NewMixedLFULRU(minUsedFreqPower uint8, seed int64) *MixedLFULRU {
	return &MixedLFULRU{
		generator:    newRandomBitsGenerator(seed),
		minFreqPower: minUsedFreqPower,
	}
}

// UpdateTime atomically sets the strategy's 27-bit logical clock.
func (s *MixedLFULRU) UpdateTime(t uint32) {
	atomic.StoreUint32(&s.time, t&timeMask)
}

// Update stamps a touch of (globalID, slot): with probability 2^-p
// the frequency power is promoted by one (capped at 31), realized by
// drawing p random bits and checking they are all zero.
func (s *MixedLFULRU) Update(prev *Record, _, _ int64) Record {
	p := s.minFreqPower
	if prev != nil {
		p = prev.FreqPower()
	}

	next := p
	if s.generator.isNextNBitsAllZero(p) && p < maxFreqPower {
		next = p + 1
	}

	return NewRecord(next, atomic.LoadUint32(&s.time))
}

// Evict returns the k coldest global IDs from iter: lowest frequency
// power first, oldest time breaking ties. A bounded heap-select over
// the stream avoids sorting every live entry.
func (s *MixedLFULRU) Evict(iter RecordIter, k int) []int64 {
	if k <= 0 {
		return nil
	}
	return selectColdest(iter, k)
}
