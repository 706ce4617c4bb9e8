package schedule

import "time"

// Clock supplies the current time so "today" can be pinned in tests.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
