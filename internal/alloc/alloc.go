// Package alloc is the allocator façade spec.md §2 calls out as its own
// component: fallible and fatal allocation wrappers around make/append, with
// an optional byte-accounting counter. It is grounded on the teacher's own
// preference for thin wrappers over stdlib primitives (nil-receiver-safe
// accounting, the way RateLimiter.Allow tolerates a nil receiver) rather
// than a third-party allocator library — nothing in the retrieved pack
// ships one, and the core's needs (bounded byte slices, panic-on-exhaustion
// during startup) don't warrant an external dependency.
package alloc

import "fmt"

// Accounting tracks live byte allocations made through this package. Nil is
// a valid *Accounting and all methods on it are no-ops, matching the
// teacher's nil-receiver-safe style (e.g. RateLimiter.Allow on a nil
// receiver).
type Accounting struct {
	enabled bool
	live    int64
	peak    int64
}

// NewAccounting returns an accounting tracker. If enabled is false, Track
// and Release are no-ops and Live/Peak always report 0 — this is the
// "optional accounting" spec.md §2 describes.
func NewAccounting(enabled bool) *Accounting {
	return &Accounting{enabled: enabled}
}

// Track records n additional live bytes.
func (a *Accounting) Track(n int) {
	if a == nil || !a.enabled || n == 0 {
		return
	}
	a.live += int64(n)
	if a.live > a.peak {
		a.peak = a.live
	}
}

// Release records n bytes being freed.
func (a *Accounting) Release(n int) {
	if a == nil || !a.enabled || n == 0 {
		return
	}
	a.live -= int64(n)
	if a.live < 0 {
		a.live = 0
	}
}

// Live returns the current tracked byte count.
func (a *Accounting) Live() int64 {
	if a == nil {
		return 0
	}
	return a.live
}

// Peak returns the highest tracked byte count observed.
func (a *Accounting) Peak() int64 {
	if a == nil {
		return 0
	}
	return a.peak
}

// TryAlloc allocates a byte slice of size n, returning an error instead of
// panicking. This is the fallible path spec.md §2 requires for anything
// reachable from network input (buffer growth, resize_buffers).
func TryAlloc(acct *Accounting, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("alloc: negative size %d", n)
	}
	buf := make([]byte, n)
	acct.Track(n)
	return buf, nil
}

// MustAlloc allocates a byte slice of size n, panicking with a diagnostic on
// failure. Reserved for startup-time allocations (default buffer sizes,
// scratch buffers) where an allocation failure is an internal-invariant
// violation per spec.md §7, not a runtime condition to recover from.
func MustAlloc(acct *Accounting, n int) []byte {
	buf, err := TryAlloc(acct, n)
	if err != nil {
		panic(fmt.Sprintf("alloc: fatal allocation failure: %v", err))
	}
	return buf
}

// Free releases a previously tracked allocation of n bytes from acct's
// ledger. It does not touch the Go GC; it exists purely so Accounting stays
// accurate when a buffer is discarded (shutdown, resize_buffers truncation).
func Free(acct *Accounting, n int) {
	acct.Release(n)
}
