// Package config loads the logging configuration from defaults, an
// optional YAML file and environment variables, and builds the Logger
// with its transports from it.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/logward/logward"
	"github.com/logward/logward/transport/console"
	filetransport "github.com/logward/logward/transport/file"
	"github.com/logward/logward/transport/loki"
	"github.com/logward/logward/transport/syslog"
)

// envPrefix namespaces the environment overrides, e.g.
// LOGWARD_LOKI__BATCH_SIZE=50. A double underscore separates key
// segments so single underscores survive inside segment names.
const envPrefix = "LOGWARD_"

// Console configures the terminal transport.
type Console struct {
	Enabled bool   `koanf:"enabled"`
	Format  string `koanf:"format"`
	Colors  bool   `koanf:"colors"`
	Debug   bool   `koanf:"debug"`
}

// File configures the rotated NDJSON file transport.
type File struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
	Debug      bool   `koanf:"debug"`
}

// Loki configures the batching HTTP transport.
type Loki struct {
	Enabled          bool              `koanf:"enabled"`
	URL              string            `koanf:"url"`
	Labels           map[string]string `koanf:"labels"`
	Username         string            `koanf:"username"`
	Password         string            `koanf:"password"`
	TenantID         string            `koanf:"tenant_id"`
	BatchSize        int               `koanf:"batch_size"`
	BatchWaitMS      int               `koanf:"batch_wait_ms"`
	MaxQueueSize     int               `koanf:"max_queue_size"`
	MaxRetries       int               `koanf:"max_retries"`
	RetryBaseDelayMS int               `koanf:"retry_base_delay_ms"`
	MaxLabelCount    int               `koanf:"max_label_count"`
	Debug            bool              `koanf:"debug"`
}

// Syslog configures the persistent-connection transport.
type Syslog struct {
	Enabled            bool   `koanf:"enabled"`
	Host               string `koanf:"host"`
	Port               int    `koanf:"port"`
	Protocol           string `koanf:"protocol"`
	Facility           int    `koanf:"facility"`
	AppName            string `koanf:"app_name"`
	Format             string `koanf:"format"`
	CAFile             string `koanf:"ca_file"`
	CertFile           string `koanf:"cert_file"`
	KeyFile            string `koanf:"key_file"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
	MaxQueueSize       int    `koanf:"max_queue_size"`
	RetryBaseDelayMS   int    `koanf:"retry_base_delay_ms"`
	Debug              bool   `koanf:"debug"`
}

// Config is the full logging configuration.
type Config struct {
	Level   string  `koanf:"level"`
	Console Console `koanf:"console"`
	File    File    `koanf:"file"`
	Loki    Loki    `koanf:"loki"`
	Syslog  Syslog  `koanf:"syslog"`
}

func defaults() map[string]any {
	return map[string]any{
		"level":           "info",
		"console.enabled": true,
		"console.format":  "text",
		"console.colors":  true,
		"syslog.protocol": "udp",
		"syslog.facility": 16,
		"syslog.format":   "rfc3164",
	}
}

// Load layers defaults, the YAML file at path (optional; skipped when
// path is empty) and LOGWARD_* environment variables, highest last.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, envPrefix)
			key = strings.ReplaceAll(strings.ToLower(key), "__", ".")
			return key, value
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// Build constructs the Logger and every enabled transport.
func (c *Config) Build() (*logward.Logger, error) {
	level, err := logward.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	var transports []logward.Transport

	if c.Console.Enabled {
		format := console.FormatText
		switch strings.ToLower(c.Console.Format) {
		case "", "text":
		case "ndjson", "json":
			format = console.FormatNDJSON
		default:
			return nil, errors.Newf("unknown console format %q", c.Console.Format)
		}
		transports = append(transports, console.New(console.Config{
			Format: format,
			Colors: c.Console.Colors,
			Debug:  c.Console.Debug,
		}))
	}

	if c.File.Enabled {
		t, err := filetransport.New(filetransport.Config{
			Path:       c.File.Path,
			MaxSizeMB:  c.File.MaxSizeMB,
			MaxBackups: c.File.MaxBackups,
			MaxAgeDays: c.File.MaxAgeDays,
			Compress:   c.File.Compress,
			Debug:      c.File.Debug,
		})
		if err != nil {
			return nil, err
		}
		transports = append(transports, t)
	}

	if c.Loki.Enabled {
		t, err := loki.New(loki.Config{
			URL:            c.Loki.URL,
			Labels:         c.Loki.Labels,
			Username:       c.Loki.Username,
			Password:       c.Loki.Password,
			TenantID:       c.Loki.TenantID,
			BatchSize:      c.Loki.BatchSize,
			BatchWait:      time.Duration(c.Loki.BatchWaitMS) * time.Millisecond,
			MaxQueueSize:   c.Loki.MaxQueueSize,
			MaxRetries:     c.Loki.MaxRetries,
			RetryBaseDelay: time.Duration(c.Loki.RetryBaseDelayMS) * time.Millisecond,
			MaxLabelCount:  c.Loki.MaxLabelCount,
			Debug:          c.Loki.Debug,
		})
		if err != nil {
			return nil, err
		}
		transports = append(transports, t)
	}

	if c.Syslog.Enabled {
		protocol, err := parseProtocol(c.Syslog.Protocol)
		if err != nil {
			return nil, err
		}
		format, err := parseSyslogFormat(c.Syslog.Format)
		if err != nil {
			return nil, err
		}
		t, err := syslog.New(syslog.Config{
			Host:               c.Syslog.Host,
			Port:               c.Syslog.Port,
			Protocol:           protocol,
			Facility:           c.Syslog.Facility,
			AppName:            c.Syslog.AppName,
			Format:             format,
			CAFile:             c.Syslog.CAFile,
			CertFile:           c.Syslog.CertFile,
			KeyFile:            c.Syslog.KeyFile,
			InsecureSkipVerify: c.Syslog.InsecureSkipVerify,
			MaxQueueSize:       c.Syslog.MaxQueueSize,
			RetryBaseDelay:     time.Duration(c.Syslog.RetryBaseDelayMS) * time.Millisecond,
			Debug:              c.Syslog.Debug,
		})
		if err != nil {
			return nil, err
		}
		transports = append(transports, t)
	}

	return logward.New(logward.Config{Level: level, Transports: transports}), nil
}

func parseProtocol(s string) (syslog.Protocol, error) {
	switch strings.ToLower(s) {
	case "", "udp":
		return syslog.ProtocolUDP, nil
	case "tcp":
		return syslog.ProtocolTCP, nil
	case "tls":
		return syslog.ProtocolTLS, nil
	default:
		return syslog.ProtocolUDP, errors.Newf("unknown syslog protocol %q", s)
	}
}

func parseSyslogFormat(s string) (syslog.Format, error) {
	switch strings.ToLower(s) {
	case "", "rfc3164", "bsd":
		return syslog.FormatRFC3164, nil
	case "rfc5424":
		return syslog.FormatRFC5424, nil
	default:
		return syslog.FormatRFC3164, errors.Newf("unknown syslog format %q", s)
	}
}
