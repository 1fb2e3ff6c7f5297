package timeutil

import "time"

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time.Time to UTC if it isn't already
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// Clock abstracts the current time so batch logic can be tested with a
// frozen or advancing clock instead of the wall clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return Now()
}

// SystemClock returns a Clock backed by the wall clock (UTC)
func SystemClock() Clock {
	return systemClock{}
}

// FixedClock returns a Clock frozen at t (UTC). Intended for tests.
func FixedClock(t time.Time) Clock {
	return fixedClock{t: t.UTC()}
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time {
	return c.t
}
