package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemory_FixedWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory(3, time.Minute)
	m.now = func() time.Time { return now }

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := m.Allow(ctx, "ip:1")
		if err != nil || !d.Allowed {
			t.Fatalf("attempt %d should be allowed: %+v %v", i+1, d, err)
		}
	}

	d, _ := m.Allow(ctx, "ip:1")
	if d.Allowed {
		t.Fatalf("4th attempt should be blocked")
	}
	if d.RetryAfter != time.Minute {
		t.Fatalf("retry after = %v, want 1m", d.RetryAfter)
	}

	if d, _ := m.Allow(ctx, "ip:2"); !d.Allowed {
		t.Fatalf("other keys are independent")
	}

	now = now.Add(61 * time.Second)
	if d, _ := m.Allow(ctx, "ip:1"); !d.Allowed || d.Remaining != 2 {
		t.Fatalf("window should reset, got %+v", d)
	}
}
