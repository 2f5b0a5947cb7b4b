package ports

import "time"

// Clock is the protocol's time source.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
