package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	failure := errors.New("downstream failed")

	for i := 0; i < 3; i++ {
		if err := cb.Do(func() error { return failure }); !errors.Is(err, failure) {
			t.Fatalf("attempt %d: err = %v, want downstream failure", i, err)
		}
	}

	if err := cb.Do(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen after threshold", err)
	}

	open, failures := cb.State()
	if !open || failures != 3 {
		t.Errorf("State() = (%v, %d), want (true, 3)", open, failures)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	failure := errors.New("downstream failed")

	cb.Do(func() error { return failure })
	cb.Do(func() error { return failure })
	cb.Do(func() error { return nil })
	cb.Do(func() error { return failure })
	cb.Do(func() error { return failure })

	if err := cb.Do(func() error { return nil }); err != nil {
		t.Errorf("err = %v, want nil: two failures after a success should not trip a threshold of 3", err)
	}
}

func TestCircuitBreaker_ProbesAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	failure := errors.New("downstream failed")
	cb.Do(func() error { return failure })

	if err := cb.Do(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen during cooldown", err)
	}

	// After the cooldown the probe runs and its success closes the circuit
	now = now.Add(20 * time.Millisecond)
	if err := cb.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe err = %v, want nil", err)
	}
	if open, _ := cb.State(); open {
		t.Error("circuit should close after a successful probe")
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	failure := errors.New("downstream failed")
	cb.Do(func() error { return failure })

	now = now.Add(20 * time.Millisecond)
	cb.Do(func() error { return failure })

	// The failed probe restarts the cooldown
	if err := cb.Do(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen after failed probe", err)
	}
}
