package logward

import (
	"time"
)

// Fields is the optional metadata attached to a log entry.
type Fields map[string]any

// Entry is a single log record. Entries are created once by the Logger
// and treated as read-only by every transport that receives them.
type Entry struct {
	Message string
	Level   Level
	Time    time.Time
	Fields  Fields
}

// UnixMillis returns the entry creation time as milliseconds since the
// epoch, the resolution the wire formats work in.
func (e Entry) UnixMillis() int64 {
	return e.Time.UnixMilli()
}
