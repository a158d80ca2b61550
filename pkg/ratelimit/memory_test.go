package ratelimit

import (
	"testing"
	"time"
)

func TestBucketKeyString(t *testing.T) {
	if got := IPKey("1.2.3.4").String(); got != "ip:1.2.3.4" {
		t.Errorf("IPKey.String() = %q", got)
	}
	if got := SubjectKey(42).String(); got != "subject:42" {
		t.Errorf("SubjectKey.String() = %q", got)
	}
}

func TestTryConsumeAllowsUpToCapacity(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.Unix(0, 0)
	s.now = func() time.Time { return fixed }

	params := Params{Capacity: 3, RefillTokensPerSecond: 1, TTLSeconds: 60}
	key := IPKey("10.0.0.1")

	for i := 0; i < 3; i++ {
		d, err := s.TryConsume(key, params)
		if err != nil {
			t.Fatalf("TryConsume error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("consume %d: expected allowed", i)
		}
	}

	d, err := s.TryConsume(key, params)
	if err != nil {
		t.Fatalf("TryConsume error: %v", err)
	}
	if d.Allowed {
		t.Error("4th consume at capacity 3 should be denied")
	}
	if d.RetryAfterSeconds <= 0 {
		t.Errorf("RetryAfterSeconds = %d, want > 0", d.RetryAfterSeconds)
	}
}

func TestTryConsumeRefillsOverTime(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	params := Params{Capacity: 1, RefillTokensPerSecond: 1, TTLSeconds: 60}
	key := IPKey("10.0.0.2")

	d, _ := s.TryConsume(key, params)
	if !d.Allowed {
		t.Fatal("first consume should be allowed")
	}
	d, _ = s.TryConsume(key, params)
	if d.Allowed {
		t.Fatal("second immediate consume should be denied")
	}

	now = now.Add(2 * time.Second)
	d, _ = s.TryConsume(key, params)
	if !d.Allowed {
		t.Error("consume after refill window should be allowed")
	}
}

func TestEvictRemovesExpired(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(0, 0)
	s.now = func() time.Time { return now }

	params := Params{Capacity: 1, RefillTokensPerSecond: 1, TTLSeconds: 1}
	s.TryConsume(IPKey("a"), params)
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}

	evicted := s.Evict(now.Add(2 * time.Second))
	if evicted != 1 {
		t.Errorf("Evict() = %d, want 1", evicted)
	}
	if s.Len() != 0 {
		t.Errorf("Len() after evict = %d, want 0", s.Len())
	}
}
