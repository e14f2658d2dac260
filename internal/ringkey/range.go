package ringkey

import "fmt"

// Range is a closed interval [Lo, Hi] of the 31-bit hash space. At any
// quiescent instant the union of all live nodes' ranges is exactly
// [0, Max] and no two ranges overlap (spec §3).
type Range struct {
	Lo, Hi int32
}

// Full returns the solo-node range [0, Max].
func Full() Range {
	return Range{Lo: 0, Hi: Max}
}

// Contains reports whether h falls within the closed interval [r.Lo, r.Hi].
func (r Range) Contains(h int32) bool {
	return h >= r.Lo && h <= r.Hi
}

// Split divides r for a node joining between a predecessor (which keeps
// the low half) and the new node (which takes the high half), per the
// join protocol in spec §4.1: mid = (hi-lo)/2; predecessor keeps
// [lo, lo+mid], new node gets [lo+mid+1, hi].
func (r Range) Split() (pred, joined Range) {
	mid := (r.Hi - r.Lo) / 2
	pred = Range{Lo: r.Lo, Hi: r.Lo + mid}
	joined = Range{Lo: r.Lo + mid + 1, Hi: r.Hi}
	return pred, joined
}

// String renders the range as "lo:hi", the wire encoding used by
// DhtPacket's hashRange field.
func (r Range) String() string {
	return fmt.Sprintf("%d:%d", r.Lo, r.Hi)
}
