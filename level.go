package logward

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Level represents the severity rank of a log entry. Lower numeric
// value means higher severity.
type Level int

const (
	ErrorLevel Level = iota
	WarnLevel
	AuditLevel
	InfoLevel
	HTTPLevel
	VerboseLevel
	DebugLevel
	SillyLevel
)

var levelNames = map[Level]string{
	ErrorLevel:   "error",
	WarnLevel:    "warn",
	AuditLevel:   "audit",
	InfoLevel:    "info",
	HTTPLevel:    "http",
	VerboseLevel: "verbose",
	DebugLevel:   "debug",
	SillyLevel:   "silly",
}

// String returns the lower-case name of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// Enabled reports whether a message at level l passes the given
// threshold (threshold includes everything at or above its severity).
func (l Level) Enabled(threshold Level) bool {
	return l <= threshold
}

// ParseLevel maps a level name to its Level. Matching is
// case-insensitive.
func ParseLevel(name string) (Level, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for lvl, n := range levelNames {
		if n == needle {
			return lvl, nil
		}
	}
	return InfoLevel, errors.Newf("unknown log level %q", name)
}
