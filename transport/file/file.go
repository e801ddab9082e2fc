// Package file appends log entries as NDJSON lines to a size-rotated
// file.
package file

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/logward/logward"
	"github.com/logward/logward/internal/diag"
)

// Config holds the transport options. Path is required.
type Config struct {
	// Path is the log file location.
	Path string
	// MaxSizeMB triggers rotation; lumberjack's default (100) applies
	// when zero.
	MaxSizeMB int
	// MaxBackups bounds the rotated file count; zero keeps all.
	MaxBackups int
	// MaxAgeDays removes rotated files older than this; zero keeps all.
	MaxAgeDays int
	// Compress gzips rotated files.
	Compress bool
	// Debug enables diagnostic output for swallowed write errors.
	Debug bool
}

// Transport writes NDJSON lines through a rotating writer.
type Transport struct {
	diag zerolog.Logger

	mu sync.Mutex
	w  *lumberjack.Logger
}

var _ logward.Transport = (*Transport)(nil)
var _ logward.Closer = (*Transport)(nil)

// New validates the config and returns the transport.
func New(cfg Config) (*Transport, error) {
	if cfg.Path == "" {
		return nil, errors.New("file: path is required")
	}
	return &Transport{
		diag: diag.New("file", cfg.Debug),
		w: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}, nil
}

// Log appends one NDJSON line. Failures never propagate.
func (t *Transport) Log(entry logward.Entry) {
	line, err := logward.NDJSONLine(entry)
	if err != nil {
		t.diag.Warn().Err(err).Msg("dropping unencodable entry")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(append(line, '\n')); err != nil {
		t.diag.Warn().Err(err).Msg("file write failed")
	}
}

// Close closes the underlying file.
func (t *Transport) Close(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.Close()
}
