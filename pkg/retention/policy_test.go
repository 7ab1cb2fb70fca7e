package retention

import (
	"testing"
	"time"
)

func TestExpiryAt(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	t.Run("default", func(t *testing.T) {
		p := DefaultPolicy
		if got := p.ExpiryAt(now, false); got != 0 {
			t.Fatalf("ordinary threads should not expire by default, got %d", got)
		}
		want := now.Add(24 * time.Hour).Unix()
		if got := p.ExpiryAt(now, true); got != want {
			t.Fatalf("temporary expiry = %d, want %d", got, want)
		}
	})

	t.Run("standard_window", func(t *testing.T) {
		p := Policy{Temporary: time.Hour, Standard: 90 * 24 * time.Hour}
		want := now.Add(90 * 24 * time.Hour).Unix()
		if got := p.ExpiryAt(now, false); got != want {
			t.Fatalf("standard expiry = %d, want %d", got, want)
		}
	})

	t.Run("zero_windows", func(t *testing.T) {
		p := Policy{}
		if got := p.ExpiryAt(now, true); got != 0 {
			t.Fatalf("zero temporary window should mean no expiry, got %d", got)
		}
	})
}
