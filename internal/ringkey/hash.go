// Package ringkey implements the hash space shared by the DHT: a
// deterministic, ASCII-based hash into [0, 2^31) and the closed-interval
// ranges nodes use to partition it.
//
// The hash function must be reproduced bit-for-bit across independent
// implementations for interop (spec §3), so its exact mixing steps are
// pinned here rather than left to a generic library.
package ringkey

import "encoding/binary"

// Max is the largest value in the hash space, 2^31 - 1.
const Max int32 = 1<<31 - 1

// seed is the starting accumulator for HashKey, matching the reference
// implementation's constant.
const seed int32 = 0x37ACE45D

// HashKey computes the 31-bit hash of key.
//
// The key is repeated (by appending the original string) until it is at
// least 16 bytes long, so short and padded inputs collide on purpose
// (HashKey("a") == HashKey(strings.Repeat("a", 16))). The accumulator is
// seeded, then folded 16-bit big-endian pair at a time: h = h * pair,
// then the top half is mixed into the bottom half by XOR (h ^= h>>16,
// unsigned shift) to spread entropy across the full 32 bits before the
// next multiply. A final sign fold maps the result into [0, 2^31).
//
// An input whose repeated length is odd is processed with its last byte
// paired against an implicit zero byte. The empty string can never be
// padded by repetition, so it is pinned to a fixed 16-byte run of zero
// bytes instead (resolves the open question of what HashKey("") means).
func HashKey(key string) int32 {
	var b []byte
	if key == "" {
		b = make([]byte, 16)
	} else {
		padded := key
		for len(padded) < 16 {
			padded += key
		}
		b = []byte(padded)
	}

	h := seed
	for i := 0; i < len(b); i += 2 {
		var pair uint16
		if i+1 < len(b) {
			pair = binary.BigEndian.Uint16(b[i : i+2])
		} else {
			pair = uint16(b[i]) << 8
		}
		h = h * int32(pair)
		h ^= int32(uint32(h) >> 16)
	}

	if h < 0 {
		h = -(h + 1)
	}
	return h
}

// ClockwiseDist returns the clockwise distance from b to a in the 31-bit
// hash space, i.e. (a - b) mod 2^31. It is always in [0, 2^31).
func ClockwiseDist(a, b int32) int32 {
	d := (uint32(a) - uint32(b)) & uint32(Max)
	return int32(d)
}
