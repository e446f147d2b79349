// Package checkpoint decides which block range a cycle scans.
//
// The persisted value is the next block not yet processed. Ranges are inclusive on both
// ends, matching eth_getLogs, so a cycle that scans [From, To] persists To+1.
package checkpoint

import (
	"errors"
	"fmt"
)

// DefaultMaxDrift is how far behind the trusted height a saved cursor may fall before
// the gap is skipped rather than scanned.
const DefaultMaxDrift = 9999

// ErrStaleCheckpoint means every trusted source is behind the persisted cursor.
var ErrStaleCheckpoint = errors.New("trusted height is behind checkpoint")

// Range is an inclusive block range. To < From means there is nothing to scan.
type Range struct {
	From uint64
	To   uint64
	// Skipped counts blocks jumped over because the saved cursor drifted too far.
	Skipped uint64
}

// Empty reports whether the range covers no blocks.
func (r Range) Empty() bool { return r.To < r.From }

// Next is the cursor to persist once the range is fully processed.
func (r Range) Next() uint64 {
	if r.Empty() {
		return r.From
	}
	return r.To + 1
}

// Cap limits To to height, e.g. the head of the endpoint doing the scan.
func (r Range) Cap(height uint64) Range {
	if height < r.To {
		r.To = height
	}
	return r
}

func (r Range) String() string {
	if r.Empty() {
		return fmt.Sprintf("[%d,-]", r.From)
	}
	return fmt.Sprintf("[%d,%d]", r.From, r.To)
}

// Decide returns the range for this cycle given the saved cursor (if any) and the
// trusted height.
//
//	no saved cursor               -> [trusted, trusted]
//	trusted+1 < saved             -> ErrStaleCheckpoint
//	trusted - saved > maxDrift    -> [trusted, trusted], gap skipped
//	otherwise                     -> [saved, trusted]
func Decide(saved uint64, hasSaved bool, trusted uint64, maxDrift uint64) (Range, error) {
	if !hasSaved {
		return Range{From: trusted, To: trusted}, nil
	}
	if trusted+1 < saved {
		return Range{}, fmt.Errorf("%w: trusted %d, next block %d", ErrStaleCheckpoint, trusted, saved)
	}
	if trusted >= saved && trusted-saved > maxDrift {
		return Range{From: trusted, To: trusted, Skipped: trusted - saved}, nil
	}
	return Range{From: saved, To: trusted}, nil
}

// Advance returns the value to persist and whether a write is needed. The cursor never
// moves backwards.
func Advance(saved uint64, hasSaved bool, next uint64) (uint64, bool) {
	if hasSaved && next <= saved {
		return saved, false
	}
	return next, true
}
