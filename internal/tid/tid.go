// Package tid generates AT Protocol TIDs (timestamp identifiers).
//
// A TID packs a 64-bit value — microsecond timestamp shifted left 10 bits,
// OR'd with a random 10-bit clock id — into 13 characters of the
// base32-sortstring alphabet. Lexicographic order matches creation order.
package tid

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Base32-sortstring alphabet used by AT Protocol TIDs.
const alphabet = "234567abcdefghijklmnopqrstuvwxyz"

var (
	mu      sync.Mutex
	lastVal uint64
)

// Generate returns a fresh 13-character TID.
//
// Monotonic within a process: if two calls land on the same microsecond,
// the second value is bumped past the first so TIDs never collide or
// sort out of order.
func Generate() string {
	us := uint64(time.Now().UnixMicro())

	// 10-bit clock id from random UUID bytes.
	u := uuid.New()
	clockID := uint64(u[0])<<8 | uint64(u[1])
	val := (us << 10) | (clockID & 0x3FF)

	mu.Lock()
	if val <= lastVal {
		val = lastVal + 1
	}
	lastVal = val
	mu.Unlock()

	return encode(val)
}

// encode converts a u64 to a 13-character base32-sortstring.
func encode(val uint64) string {
	var buf [13]byte
	for i := 12; i >= 0; i-- {
		buf[i] = alphabet[val&0x1F]
		val >>= 5
	}
	return string(buf[:])
}
