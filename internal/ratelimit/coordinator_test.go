package ratelimit

import (
	"testing"
	"time"
)

func TestNewCoordinatorNotRateLimited(t *testing.T) {
	c := New(DefaultConfig())
	if c.IsRateLimited() {
		t.Fatal("expected fresh coordinator to not be rate limited")
	}
	if c.ConsecutiveHits() != 0 {
		t.Fatalf("expected 0 consecutive hits, got %d", c.ConsecutiveHits())
	}
	if _, ok := c.TimeSinceSuccess(); ok {
		t.Fatal("expected no recorded success yet")
	}
}

func TestRecordRateLimitSetsBackoff(t *testing.T) {
	c := New(DefaultConfig())
	c.RecordRateLimit(5 * time.Second)

	if !c.IsRateLimited() {
		t.Fatal("expected coordinator to be rate limited after a hit")
	}
	if c.ConsecutiveHits() != 1 {
		t.Fatalf("expected 1 consecutive hit, got %d", c.ConsecutiveHits())
	}
}

func TestRecordSuccessClearsBackoff(t *testing.T) {
	c := New(DefaultConfig())
	c.RecordRateLimit(5 * time.Second)
	c.RecordSuccess()

	if c.IsRateLimited() {
		t.Fatal("expected success to clear backoff")
	}
	if c.ConsecutiveHits() != 0 {
		t.Fatalf("expected hits reset to 0, got %d", c.ConsecutiveHits())
	}
	if _, ok := c.TimeSinceSuccess(); !ok {
		t.Fatal("expected a recorded success time")
	}
}

func TestExponentialBackoffUsesLargerOfRetryAfterAndExponential(t *testing.T) {
	c := New(DefaultConfig())

	// API says wait 100s but exponential for hit 1 is only 2s: expect 100s.
	c.RecordRateLimit(100 * time.Second)
	remaining, ok := c.RemainingBackoff()
	if !ok {
		t.Fatal("expected an active backoff")
	}
	if remaining < 90*time.Second {
		t.Fatalf("expected backoff to honor the larger retry_after, got %v", remaining)
	}
}

func TestConsecutiveHitsIncrement(t *testing.T) {
	c := New(DefaultConfig())
	c.RecordRateLimit(0)
	if c.ConsecutiveHits() != 1 {
		t.Fatalf("expected 1 hit, got %d", c.ConsecutiveHits())
	}
	c.RecordRateLimit(0)
	if c.ConsecutiveHits() != 2 {
		t.Fatalf("expected 2 hits, got %d", c.ConsecutiveHits())
	}
}

func TestBackoffExpires(t *testing.T) {
	c := New(Config{InitialBackoff: time.Millisecond, MaxBackoff: time.Hour, RecoveryPeriod: time.Second, MaxConcurrentCalls: 1})
	c.mu.Lock()
	c.backoffUntil = time.Now().Add(10 * time.Millisecond)
	c.hasBackoff = true
	c.mu.Unlock()

	if !c.IsRateLimited() {
		t.Fatal("expected active short backoff to be rate limited")
	}
	time.Sleep(20 * time.Millisecond)
	if c.IsRateLimited() {
		t.Fatal("expected expired backoff to clear")
	}
}

func TestResetPreservesLastSuccess(t *testing.T) {
	c := New(DefaultConfig())
	c.RecordRateLimit(60 * time.Second)
	c.RecordSuccess()
	c.RecordRateLimit(60 * time.Second)

	if !c.IsRateLimited() {
		t.Fatal("expected active backoff before reset")
	}

	c.Reset()

	if c.IsRateLimited() {
		t.Fatal("expected reset to clear backoff")
	}
	if c.ConsecutiveHits() != 0 {
		t.Fatalf("expected reset to clear hit count, got %d", c.ConsecutiveHits())
	}
	if _, ok := c.TimeSinceSuccess(); !ok {
		t.Fatal("expected reset to preserve last success time")
	}
}

func TestMaxBackoffCapsDelay(t *testing.T) {
	c := New(Config{InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, RecoveryPeriod: time.Second, MaxConcurrentCalls: 1})
	c.RecordRateLimit(time.Hour)

	remaining, ok := c.RemainingBackoff()
	if !ok {
		t.Fatal("expected active backoff")
	}
	if remaining > 10*time.Second {
		t.Fatalf("expected backoff capped at MaxBackoff, got %v", remaining)
	}
}

func TestAllowFalseWhileRateLimited(t *testing.T) {
	c := New(DefaultConfig())
	if !c.Allow() {
		t.Fatal("expected fresh coordinator to allow admission")
	}
	c.RecordRateLimit(5 * time.Second)
	if c.Allow() {
		t.Fatal("expected Allow to be false during an active backoff")
	}
}
