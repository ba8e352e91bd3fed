// Package ids generates short base58 identifiers for naming transient
// work: flush goroutines, write batches, archive cycles. Short ids keep
// log lines scannable where a UUID would drown them.
package ids

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

// defaultLen is the number of random bytes per id. Six bytes gives
// ~2^48 values, plenty for ids that only need to be unique within a
// process lifetime and a day of logs.
const defaultLen = 6

// New returns a short id with the given prefix, e.g. New("fl") → "fl_4PqXzR9d".
func New(prefix string) string {
	return prefix + "_" + randomBase58(defaultLen)
}

// Flush returns an id for a named flush goroutine.
func Flush() string { return New("fl") }

// Batch returns an id for a storage write batch.
func Batch() string { return New("bt") }

// Cycle returns an id for an archive cycle.
func Cycle() string { return New("cy") }

func randomBase58(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process has bigger problems;
		// fall back to a fixed marker rather than propagate an error
		// through every log call site.
		return "00000000"
	}
	return base58.Encode(buf)
}
