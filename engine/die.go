package engine

import "time"

// Die defaults and roll pacing.
const (
	DieDefaultMin = 1
	DieDefaultMax = 6

	DieRollTime  = 1 * time.Second       // total roll duration on the authority
	DieRollDelay = 50 * time.Millisecond // interval between cosmetic faces
)

// WrapDieValue folds v into [lo, hi]: anything past hi becomes lo and anything
// below lo becomes hi. Values already in range are returned unchanged.
func WrapDieValue(v, lo, hi int) int {
	if v > hi {
		return lo
	}
	if v < lo {
		return hi
	}
	return v
}

// NormalizeDieBounds returns bounds with lo <= hi, substituting the defaults
// when both are zero.
func NormalizeDieBounds(lo, hi int) (int, int) {
	if lo == 0 && hi == 0 {
		return DieDefaultMin, DieDefaultMax
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi
}
