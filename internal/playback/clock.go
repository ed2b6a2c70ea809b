package playback

import "time"

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Duration
}

// SystemClock reads the runtime's monotonic clock.
type SystemClock struct {
	origin time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

func (c *SystemClock) Now() time.Duration {
	return time.Since(c.origin)
}
