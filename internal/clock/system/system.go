// Package system provides the wall clock used to stamp training runs.
package system

import "time"

// Clock reports the current wall-clock time in a fixed location. Run versions
// are derived from local time, so New uses time.Local.
type Clock struct {
	loc *time.Location
}

// New creates a Clock reporting local time.
func New() *Clock {
	return &Clock{loc: time.Local}
}

// NewIn creates a Clock reporting time in loc; nil means UTC.
func NewIn(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	if c == nil || c.loc == nil {
		return time.Now()
	}
	return time.Now().In(c.loc)
}
