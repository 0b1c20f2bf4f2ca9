// Package ratelimit implements the per-subject sliding-window limiter of
// spec.md §4.2: window W seconds, maximum R requests; the rate-limit
// decision happens inside a single critical section per subject, grounded
// on the same single-serializing-mutex shape as internal/filestore
// (itself grounded on storage/memory's tx pattern), since the rate-limit
// entry is exactly the "ordered list of recent timestamps" record of
// spec.md §3, not a filestore.Entry (it never needs to survive a restart).
package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a sliding-window request cap per subject.
type Limiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu     sync.Mutex
	recent map[string][]time.Time
}

// New constructs a Limiter allowing max requests per subject within window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		window: window,
		max:    max,
		now:    time.Now,
		recent: make(map[string][]time.Time),
	}
}

// Allow reports whether subject may proceed. When it returns false,
// retryAfter is the number of seconds (rounded up, at least 1) the caller
// should wait before retrying, per spec.md §4.2.
func (l *Limiter) Allow(subject string) (allowed bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	timestamps := l.recent[subject]

	kept := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.max {
		oldest := kept[0]
		wait := oldest.Add(l.window).Sub(now)
		secs := int(wait.Seconds())
		if wait > time.Duration(secs)*time.Second {
			secs++
		}
		if secs < 1 {
			secs = 1
		}
		l.recent[subject] = kept
		return false, secs
	}

	kept = append(kept, now)
	l.recent[subject] = kept
	return true, 0
}
