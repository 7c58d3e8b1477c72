package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // capped
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNewBackoffDefaults(t *testing.T) {
	b := NewBackoff(time.Millisecond, 0, -1)
	if b.Multiplier != 2.0 {
		t.Errorf("expected default multiplier 2, got %v", b.Multiplier)
	}
	if b.Max != 30*time.Second {
		t.Errorf("expected default max 30s, got %v", b.Max)
	}
}

func TestBackoffRetry(t *testing.T) {
	b := NewBackoff(time.Millisecond, 5*time.Millisecond, 2)
	boom := errors.New("boom")

	calls := 0
	err := b.Retry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return boom
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = b.Retry(context.Background(), 2, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Fatalf("expected last error after 3 calls, got err=%v calls=%d", err, calls)
	}
}

func TestBackoffRetryStopsOnCancel(t *testing.T) {
	b := NewBackoff(time.Hour, time.Hour, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := b.Retry(ctx, 5, func() error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call before cancellation, got %d", calls)
	}
}
