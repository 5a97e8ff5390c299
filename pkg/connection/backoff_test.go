package connection

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultIsConstant", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 5; i++ {
			if base := b.Current(); base != DefaultInterval {
				t.Errorf("attempt %d: base = %v, want %v", i, base, DefaultInterval)
			}
			_ = b.Next()
		}
		if b.Attempts() != 5 {
			t.Errorf("Attempts = %d, want 5", b.Attempts())
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second})

		samples := make([]time.Duration, 20)
		for i := range samples {
			samples[i] = b.Next()
		}

		limit := time.Duration(float64(time.Second) * 1.25)
		for i, s := range samples {
			if s < time.Second || s > limit {
				t.Errorf("sample %d: %v out of range [1s, 1.25s]", i, s)
			}
		}

		allSame := true
		for i := 1; i < len(samples); i++ {
			if samples[i] != samples[0] {
				allSame = false
				break
			}
		}
		if allSame {
			t.Error("all samples identical; jitter not applied")
		}
	})

	t.Run("NoJitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Jitter: -1})
		for i := 0; i < 3; i++ {
			if d := b.Next(); d != time.Second {
				t.Errorf("Next() = %v, want 1s", d)
			}
		}
	})

	t.Run("Exponential", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    time.Second,
			Max:        5 * time.Second,
			Multiplier: 2,
			Jitter:     -1,
		})
		want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
		for i, w := range want {
			if got := b.Next(); got != w {
				t.Errorf("attempt %d: got %v, want %v", i, got, w)
			}
		}
		if got, want := b.MaxDelay(), 5*time.Second; got != want {
			t.Errorf("MaxDelay = %v, want %v", got, want)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 3})
		b.Next()
		b.Next()
		b.Reset()
		if b.Current() != time.Second {
			t.Errorf("Current after reset = %v, want 1s", b.Current())
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts after reset = %d, want 0", b.Attempts())
		}
	})

	t.Run("PeekDoesNotAdvance", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Multiplier: 2, Max: time.Minute})
		_ = b.Peek()
		_ = b.Peek()
		if b.Attempts() != 0 || b.Current() != time.Second {
			t.Errorf("Peek advanced backoff: attempts=%d current=%v", b.Attempts(), b.Current())
		}
	})
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}
