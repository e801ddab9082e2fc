package syslog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/logward/logward"
)

// Format selects the wire line format.
type Format int

const (
	// FormatRFC3164 is the legacy single-line BSD format.
	FormatRFC3164 Format = iota
	// FormatRFC5424 is the modern structured format.
	FormatRFC5424
)

// severity maps the facade levels onto the fixed syslog severity ranks.
func severity(level logward.Level) int {
	switch level {
	case logward.ErrorLevel:
		return 3
	case logward.WarnLevel:
		return 4
	case logward.AuditLevel:
		return 5
	case logward.InfoLevel, logward.HTTPLevel:
		return 6
	default:
		return 7
	}
}

func priority(facility int, level logward.Level) int {
	return facility<<3 | severity(level)
}

// formatLine renders one newline-free protocol line for the entry.
func formatLine(format Format, facility int, hostname, appName string, pid int, entry logward.Entry) string {
	msg := sanitize(entry.Message)
	pri := priority(facility, entry.Level)

	if format == FormatRFC5424 {
		return fmt.Sprintf("<%d>1 %s %s %s %d - %s %s",
			pri,
			entry.Time.Format(time.RFC3339),
			hostname,
			appName,
			pid,
			structuredData(entry.Fields),
			msg)
	}

	line := fmt.Sprintf("<%d>%s %s %s[%d]: %s",
		pri,
		entry.Time.Format(time.Stamp),
		hostname,
		appName,
		pid,
		msg)
	if len(entry.Fields) > 0 {
		if meta, err := json.Marshal(entry.Fields); err == nil {
			line += " " + string(meta)
		}
	}
	return line
}

// structuredData renders the metadata as a single bracketed element,
// or a literal dash when there is none.
func structuredData(fields logward.Fields) string {
	if len(fields) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("[meta")
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(escapeParamValue(fmt.Sprint(fields[k])))
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return b.String()
}

func escapeParamValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `]`, `\]`)
	return r.Replace(v)
}

func sanitize(msg string) string {
	msg = strings.ReplaceAll(msg, "\r", " ")
	return strings.ReplaceAll(msg, "\n", " ")
}
