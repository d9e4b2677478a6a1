// Package engine implements the table-independent card model.
//
// It holds immutable card records with typed, enum-aware properties, the
// value rules for dice, card stack operations, and a small deterministic RNG
// used by the table authority for shuffles and rolls. It has no dependencies
// so the same rules run on the authority and inside tests.
package engine

// ---------------------------------------------------------------------------
// xorshift64 RNG
// ---------------------------------------------------------------------------

// RNG is a xorshift64 generator. The zero value is usable and behaves as if
// seeded with 1.
type RNG struct {
	state uint64
}

// NewRNG seeds a generator. A zero seed is replaced by 1 because xorshift
// never leaves the zero state.
func NewRNG(seed uint64) *RNG {
	if seed == 0 {
		seed = 1
	}
	return &RNG{state: seed}
}

func (r *RNG) next() uint64 {
	if r.state == 0 {
		r.state = 1
	}
	x := r.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	r.state = x
	return x
}

// IntN returns a number in [0, n). n <= 0 returns 0.
func (r *RNG) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.next() % uint64(n))
}

// Between returns a number in [lo, hi]. Reversed bounds are swapped.
func (r *RNG) Between(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + r.IntN(hi-lo+1)
}

// Shuffle performs an in-place Fisher-Yates shuffle.
func Shuffle[T any](r *RNG, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
