package ratelimit

import (
	"testing"
	"time"
)

func TestAllowPermitsUpToMaxWithinWindow(t *testing.T) {
	l := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		if allowed, _ := l.Allow("subject-1"); !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if allowed, retryAfter := l.Allow("subject-1"); allowed {
		t.Error("4th request within the window should be rejected")
	} else if retryAfter < 1 {
		t.Errorf("retryAfter = %d, want >= 1", retryAfter)
	}
}

func TestAllowIsPerSubject(t *testing.T) {
	l := New(1, time.Minute)
	if allowed, _ := l.Allow("subject-1"); !allowed {
		t.Fatal("first request for subject-1 should be allowed")
	}
	if allowed, _ := l.Allow("subject-2"); !allowed {
		t.Error("subject-2's first request should be allowed independently of subject-1's usage")
	}
}

func TestAllowResetsOnceWindowSlides(t *testing.T) {
	fixedNow := time.Now()
	l := New(1, time.Minute)
	l.now = func() time.Time { return fixedNow }

	if allowed, _ := l.Allow("subject-1"); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _ := l.Allow("subject-1"); allowed {
		t.Fatal("second request within the same instant should be rejected")
	}

	l.now = func() time.Time { return fixedNow.Add(time.Minute + time.Second) }
	if allowed, _ := l.Allow("subject-1"); !allowed {
		t.Error("request after the window has slid past should be allowed")
	}
}

func TestAllowRetryAfterRoundsUp(t *testing.T) {
	fixedNow := time.Now()
	l := New(1, 10*time.Second)
	l.now = func() time.Time { return fixedNow }
	l.Allow("subject-1")

	l.now = func() time.Time { return fixedNow.Add(3500 * time.Millisecond) }
	_, retryAfter := l.Allow("subject-1")
	if retryAfter != 7 {
		t.Errorf("retryAfter = %d, want 7 (rounded up from 6.5s remaining)", retryAfter)
	}
}
