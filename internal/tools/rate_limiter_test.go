package tools

import (
	"testing"
	"time"
)

func TestNewToolRateLimiter_Disabled(t *testing.T) {
	for _, n := range []int{0, -5} {
		if rl := NewToolRateLimiter(n); rl != nil {
			t.Errorf("NewToolRateLimiter(%d) = %v, want nil", n, rl)
		}
	}
}

func TestToolRateLimiter_BurstThenBlock(t *testing.T) {
	rl := NewToolRateLimiter(3)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := rl.Allow("user1"); err != nil {
			t.Fatalf("action %d should be allowed: %v", i, err)
		}
	}
	if err := rl.Allow("user1"); err == nil {
		t.Error("4th action should be blocked")
	}
	if err := rl.Allow("user2"); err != nil {
		t.Errorf("user2 should have its own bucket: %v", err)
	}
}

func TestToolRateLimiter_Refills(t *testing.T) {
	rl := NewToolRateLimiter(60) // one token per second
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 60; i++ {
		rl.Allow("k")
	}
	if err := rl.Allow("k"); err == nil {
		t.Fatal("bucket should be empty")
	}
	now = now.Add(2 * time.Second)
	if err := rl.Allow("k"); err != nil {
		t.Errorf("bucket should have refilled: %v", err)
	}
}

func TestToolRateLimiter_Cleanup(t *testing.T) {
	rl := NewToolRateLimiter(5)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(20 * time.Minute)
	rl.Allow("fresh")

	if removed := rl.Cleanup(10 * time.Minute); removed != 1 {
		t.Errorf("Cleanup removed %d, want 1", removed)
	}
	if _, ok := rl.entries["fresh"]; !ok {
		t.Error("fresh key was removed")
	}
}
