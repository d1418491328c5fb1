package geocode

import (
	"context"
	"testing"
	"time"
)

// fakeClock advances only when slept against.
type fakeClock struct {
	now time.Time
}

func newFakeLimiter(interval time.Duration) (*Limiter, *fakeClock, *[]time.Duration) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	var slept []time.Duration
	l := NewLimiter(interval)
	l.now = func() time.Time { return clock.now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock.now = clock.now.Add(d)
		return nil
	}
	return l, clock, &slept
}

func TestLimiter_FirstRequestImmediate(t *testing.T) {
	l, _, slept := newFakeLimiter(time.Second)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(*slept) != 0 {
		t.Errorf("first request should not sleep, slept %v", *slept)
	}
}

func TestLimiter_EnforcesInterval(t *testing.T) {
	l, _, slept := newFakeLimiter(time.Second)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != time.Second {
		t.Errorf("second immediate request should sleep a full interval, slept %v", *slept)
	}
}

func TestLimiter_NoWaitAfterInterval(t *testing.T) {
	l, clock, slept := newFakeLimiter(time.Second)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	clock.now = clock.now.Add(2 * time.Second)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(*slept) != 0 {
		t.Errorf("request after the interval should not sleep, slept %v", *slept)
	}
}
