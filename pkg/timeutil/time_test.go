package timeutil

import (
	"testing"
	"time"
)

func TestNow_AlwaysUTC(t *testing.T) {
	now := Now()

	if now.Location() != time.UTC {
		t.Errorf("Now() returned non-UTC timezone: %v", now.Location())
	}
}

func TestToUTC(t *testing.T) {
	// Create time in EST (UTC-5)
	est, _ := time.LoadLocation("America/New_York")
	estTime := time.Date(2025, 11, 20, 12, 0, 0, 0, est)

	utcTime := ToUTC(estTime)

	if utcTime.Location() != time.UTC {
		t.Errorf("ToUTC() returned non-UTC: %v", utcTime.Location())
	}

	// Verify time value is correct (EST noon = UTC 17:00)
	if utcTime.Hour() != 17 {
		t.Errorf("ToUTC() hour = %d, want 17", utcTime.Hour())
	}
}

func TestSystemClock_UTC(t *testing.T) {
	now := SystemClock().Now()

	if now.Location() != time.UTC {
		t.Errorf("SystemClock().Now() returned non-UTC: %v", now.Location())
	}
}

func TestFixedClock(t *testing.T) {
	frozen := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	clock := FixedClock(frozen)

	if !clock.Now().Equal(frozen) {
		t.Errorf("FixedClock().Now() = %v, want %v", clock.Now(), frozen)
	}

	// Repeated reads must not advance
	if !clock.Now().Equal(clock.Now()) {
		t.Error("FixedClock advanced between reads")
	}
}
