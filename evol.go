package asemantic

import (
	"encoding/binary"
	"time"

	"github.com/jonboulle/clockwork"
)

// CounterEvol returns the simplest Mode B evolution: the index as
// an 8-byte big-endian counter.
func CounterEvol() EvolFunc {
	return func(index uint64) []byte {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], index)
		return buf[:]
	}
}

// TimeSlotEvol returns a calendar-style Mode B evolution: index i
// maps to the UTC start of the i-th slot of the given duration
// after origin, encoded as an 8-byte big-endian Unix timestamp.
// Both endpoints must share origin and slot exactly.
func TimeSlotEvol(origin time.Time, slot time.Duration) EvolFunc {
	origin = origin.UTC().Truncate(slot)
	return func(index uint64) []byte {
		at := origin.Add(time.Duration(index) * slot)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(at.Unix()))
		return buf[:]
	}
}

// CurrentSlot returns the slot index the clock currently falls in,
// for receivers aligning an initial anchor to wall time. The clock
// is injected so tests can drive a fake one.
func CurrentSlot(clock clockwork.Clock, origin time.Time, slot time.Duration) uint64 {
	elapsed := clock.Now().UTC().Sub(origin.UTC().Truncate(slot))
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / slot)
}
