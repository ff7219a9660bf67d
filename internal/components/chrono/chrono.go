package chrono

import (
	"time"

	"comebackwatch/lib/timezone"
)

// API is the interface that anything depending on the system clock should use.
type API interface {
	// Now returns the current time in Location().
	Now() time.Time
	Location() *time.Location
}

type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl returns a clock reporting time in the calendar timezone
// of the tracked schedules.
func NewStandardImpl() StandardImpl {
	return StandardImpl{location: timezone.Location}
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl is a clock frozen at a single instant, it can be moved forward
// with Advance.
type FixedImpl struct {
	now *time.Time
}

func NewFixedImpl(now time.Time) FixedImpl {
	t := now.In(timezone.Location)
	return FixedImpl{now: &t}
}

func (f FixedImpl) Now() time.Time {
	return *f.now
}

func (f FixedImpl) Location() *time.Location {
	return timezone.Location
}

func (f FixedImpl) Advance(d time.Duration) {
	*f.now = f.now.Add(d)
}
