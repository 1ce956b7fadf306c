package syncjob

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestItemDelay(t *testing.T) {
	tests := []struct {
		total int
		want  time.Duration
	}{
		{0, 0},
		{-3, 0},
		{1, 50 * time.Millisecond},
		{10, 50 * time.Millisecond},
		{50, 20 * time.Millisecond},
		{199, time.Second / 199},
		{200, 5 * time.Millisecond},
		{1000, time.Millisecond},
	}
	for _, tt := range tests {
		if got := ItemDelay(tt.total); got != tt.want {
			t.Errorf("ItemDelay(%d) = %v, want %v", tt.total, got, tt.want)
		}
	}
}

func TestThrottledEach(t *testing.T) {
	var seen []int
	err := throttledEach(context.Background(), 4, 0, func(j int) error {
		seen = append(seen, j)
		return nil
	})
	if err != nil || len(seen) != 4 || seen[3] != 3 {
		t.Fatalf("seen = %v, err = %v", seen, err)
	}

	boom := errors.New("boom")
	calls := 0
	err = throttledEach(context.Background(), 10, 0, func(j int) error {
		calls++
		if j == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Errorf("err = %v calls = %d, want boom after 3", err, calls)
	}
}

func TestThrottledEachCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	err := throttledEach(ctx, 100, time.Hour, func(j int) error {
		calls++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err = %v calls = %d", err, calls)
	}
	if time.Since(start) > time.Second {
		t.Error("delay was not interrupted")
	}
}

func TestSlots(t *testing.T) {
	s := NewSlots(0)
	if s.Max() != 1 {
		t.Fatalf("Max() = %d, want 1", s.Max())
	}
	if !s.TryAcquire() {
		t.Fatal("TryAcquire on empty slots failed")
	}
	if s.TryAcquire() {
		t.Fatal("TryAcquire should fail when full")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if s.Acquire(ctx) {
		t.Fatal("Acquire should give up when ctx expires")
	}
	s.Release()
	if s.Active() != 0 {
		t.Errorf("Active() = %d after release", s.Active())
	}
	if !s.Acquire(context.Background()) {
		t.Error("Acquire after release failed")
	}
	s.Release()
	s.Release() // unmatched release is logged and ignored
	if s.Active() != 0 {
		t.Errorf("Active() = %d", s.Active())
	}
}

func TestCatalog(t *testing.T) {
	cat := Catalog()
	want := []string{"SIM", "STNK", "SITA", "PENILANGAN", "IMPOUND", "PENGELUARAN"}
	if len(cat) != len(want) {
		t.Fatalf("catalog has %d endpoints", len(cat))
	}
	for i, ep := range cat {
		if ep.Name != want[i] {
			t.Errorf("endpoint %d = %s, want %s", i, ep.Name, want[i])
		}
		if !ep.Mode.Valid() {
			t.Errorf("endpoint %s has invalid mode %q", ep.Name, ep.Mode)
		}
	}
	if keys := ChannelKeys(); len(keys) != 6 || keys[0] != "sim" || keys[5] != "pengeluaran" {
		t.Errorf("ChannelKeys() = %v", keys)
	}
}
