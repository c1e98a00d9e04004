// Package run identifies one training run. A Session is derived once per
// process when a sink is constructed and names the on-disk and remote
// namespace for everything the run emits.
package run

import (
	"path/filepath"
	"time"
)

// DefaultName is used when a run is created without a name.
const DefaultName = "trainlog"

// VersionLayout formats run versions: zero-padded year, month, day, hour,
// minute and second joined by hyphens. Versions sort lexically by start time.
const VersionLayout = "2006-01-02-15-04-05"

// Clock supplies the wall-clock start time of a run.
type Clock interface {
	Now() time.Time
}

// Session is the immutable identity of a run.
type Session struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Started time.Time `json:"started"`
}

// NewSession stamps a session with the clock's current time.
func NewSession(name string, clock Clock) Session {
	if name == "" {
		name = DefaultName
	}
	now := clock.Now()
	return Session{
		Name:    name,
		Version: Version(now),
		Started: now,
	}
}

// Version renders t as a run version string.
func Version(t time.Time) string {
	return t.Format(VersionLayout)
}

// LogDir returns the run-scoped directory under saveDir.
func (s Session) LogDir(saveDir string) string {
	return filepath.Join(saveDir, "logs-"+s.Version)
}
