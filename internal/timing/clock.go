package timing

import "time"

// Clock supplies the current time to timers.
//
// Durations are always computed as differences of two Now values, so the
// clock only has to be monotonic. Tests inject a fake clock to get
// deterministic reports.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process clock. time.Now carries a monotonic
// reading, so differences are never negative.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
