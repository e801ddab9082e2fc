// Package console writes log entries straight to a terminal stream,
// as colored text or NDJSON. There is no queue; emission is immediate
// and write errors are swallowed.
package console

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/logward/logward"
	"github.com/logward/logward/internal/diag"
)

// Format selects the display representation.
type Format int

const (
	FormatText Format = iota
	FormatNDJSON
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

var levelColors = map[logward.Level]string{
	logward.ErrorLevel:   "\x1b[31m",
	logward.WarnLevel:    "\x1b[33m",
	logward.AuditLevel:   "\x1b[36m",
	logward.InfoLevel:    "\x1b[32m",
	logward.HTTPLevel:    "\x1b[35m",
	logward.VerboseLevel: "\x1b[34m",
	logward.DebugLevel:   "\x1b[90m",
	logward.SillyLevel:   "\x1b[90m",
}

const colorReset = "\x1b[0m"

// Config holds the transport options. All fields are optional.
type Config struct {
	// Writer defaults to stderr.
	Writer io.Writer
	Format Format
	// Colors wraps the level tag in ANSI colors (text format only).
	Colors bool
	// Debug enables diagnostic output for swallowed write errors.
	Debug bool
}

// Transport writes entries synchronously to the configured stream.
type Transport struct {
	cfg  Config
	diag zerolog.Logger

	mu sync.Mutex
	w  io.Writer
}

var _ logward.Transport = (*Transport)(nil)

// New returns the console transport.
func New(cfg Config) *Transport {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	return &Transport{cfg: cfg, diag: diag.New("console", cfg.Debug), w: w}
}

// Log renders and writes the entry. Failures never propagate.
func (t *Transport) Log(entry logward.Entry) {
	var line []byte
	if t.cfg.Format == FormatNDJSON {
		b, err := logward.NDJSONLine(entry)
		if err != nil {
			t.diag.Warn().Err(err).Msg("dropping unencodable entry")
			return
		}
		line = append(b, '\n')
	} else {
		line = []byte(t.formatText(entry) + "\n")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(line); err != nil {
		t.diag.Warn().Err(err).Msg("console write failed")
	}
}

func (t *Transport) formatText(entry logward.Entry) string {
	tag := entry.Level.String()
	if t.cfg.Colors {
		if c, ok := levelColors[entry.Level]; ok {
			tag = c + tag + colorReset
		}
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format(timeLayout))
	b.WriteString(" [")
	b.WriteString(tag)
	b.WriteString("] ")
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
		}
	}
	return b.String()
}
