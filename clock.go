package latis

import "time"

// Clock provides time to the sheet engine so created_time/edited_time
// are deterministic in tests: a dependency-injection seam for the time
// source.
type Clock interface {
	Now() time.Time
}

// WallClock is the default Clock, backed by the system time.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }
