// Package rate implements per-listener connect-frequency tracking and
// per-socket flood accounting (spec.md §4.8).
package rate

import (
	"fmt"
	"sync"
	"time"

	"github.com/serveez-go/serveez/internal/container"
)

// Window is the rolling accept-rate window (spec.md §3 "Rate-limit entry":
// "entries older than 4 seconds are dropped").
const Window = 4 * time.Second

// Tracker retains, per peer address, the timestamps of recent accepts on one
// listener (spec.md §4.8).
type Tracker struct {
	mu   sync.Mutex
	byIP map[string]*container.Vector
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{byIP: make(map[string]*container.Vector)}
}

// Allow records an accept from peer at now and reports whether it stays
// under connectFreq. Older entries are purged first; the remaining count is
// divided by 4 to get a per-second rate (spec.md §4.8: "the remaining count
// is divided by 4 ... and compared against connect_freq"), using integer
// division per the original implementation's throttling style (spec.md §16
// supplement).
func (t *Tracker) Allow(peer string, connectFreq int, now time.Time) bool {
	if connectFreq <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.byIP[peer]
	if !ok {
		v = container.NewVector()
		t.byIP[peer] = v
	}
	v.Prune(now.Add(-Window))
	rate := v.Len() / 4
	if rate >= connectFreq {
		return false
	}
	v.Push(now)
	return true
}

// Forget drops a peer's tracking state, e.g. once its vector is empty for a
// long time; callers may call this periodically to bound memory.
func (t *Tracker) Forget(peer string) {
	t.mu.Lock()
	delete(t.byIP, peer)
	t.mu.Unlock()
}

// ErrFlooding is returned by Account when a socket's running point total has
// exceeded its configured flood limit (spec.md §4.8).
var ErrFlooding = fmt.Errorf("rate: flood limit exceeded")

// Account adds the flood points one readable event of n bytes contributes
// to points, per spec.md §4.8's worked rule ("each readable event adds
// 1 + read_bytes/50 flood points"), and reports ErrFlooding once the total
// exceeds limit. A non-positive limit disables flood protection.
func Account(points *int, limit int, n int) error {
	*points += 1 + n/50
	if limit > 0 && *points > limit {
		return ErrFlooding
	}
	return nil
}

// Decay drains one flood point from points, saturating at zero, per
// spec.md §4.8's periodic-tick rule ("decrements flood_points by 1 per
// second"). Called once per socket per tick by the reactor.
func Decay(points *int) {
	if *points > 0 {
		*points--
	}
}
