package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	pebblestore "github.com/rzbill/linelog/internal/storage/pebble"
	logpkg "github.com/rzbill/linelog/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Device  DeviceConfig  `json:"device" yaml:"device"`
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
	Socket  SocketConfig  `json:"socket" yaml:"socket"`
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	Log     logpkg.Config `json:"log" yaml:"log"`
}

// DeviceConfig sizes the ring and the pending record.
type DeviceConfig struct {
	Capacity        int    `json:"capacity" yaml:"capacity"`
	Terminator      string `json:"terminator" yaml:"terminator"`
	MaxPendingBytes int    `json:"maxPendingBytes" yaml:"maxPendingBytes"`
}

// ArchiveConfig controls persistence of released records.
type ArchiveConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Fsync      string `json:"fsync" yaml:"fsync"`
	QueueSize  int    `json:"queueSize" yaml:"queueSize"`
	MaxRecords int    `json:"maxRecords" yaml:"maxRecords"`
}

// SocketConfig tunes the raw TCP front end.
type SocketConfig struct {
	ReadTimeoutMs  int `json:"readTimeoutMs" yaml:"readTimeoutMs"`
	WriteTimeoutMs int `json:"writeTimeoutMs" yaml:"writeTimeoutMs"`
	ReadBufBytes   int `json:"readBufBytes" yaml:"readBufBytes"`
}

// HTTPConfig tunes the HTTP API.
type HTTPConfig struct {
	MaxBodyBytes int `json:"maxBodyBytes" yaml:"maxBodyBytes"`
	MaxReadBytes int `json:"maxReadBytes" yaml:"maxReadBytes"`
	FollowPollMs int `json:"followPollMs" yaml:"followPollMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			Capacity:        10,
			Terminator:      "\n",
			MaxPendingBytes: 1 << 20,
		},
		Archive: ArchiveConfig{
			Enabled:   true,
			Fsync:     "interval",
			QueueSize: 1024,
		},
		Socket: SocketConfig{
			ReadTimeoutMs:  0,
			WriteTimeoutMs: 5000,
			ReadBufBytes:   4096,
		},
		HTTP: HTTPConfig{
			MaxBodyBytes: 1 << 20,
			MaxReadBytes: 64 << 10,
			FollowPollMs: 1000,
		},
		Log: logpkg.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) over the
// defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// TerminatorByte returns the record terminator.
func (c Config) TerminatorByte() byte {
	if len(c.Device.Terminator) == 0 {
		return '\n'
	}
	return c.Device.Terminator[0]
}

// FsyncMode parses Archive.Fsync.
func (c Config) FsyncMode() (pebblestore.FsyncMode, error) {
	return pebblestore.ParseFsyncMode(c.Archive.Fsync)
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Device.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("device.capacity must be positive, got %d", c.Device.Capacity))
	}
	if len(c.Device.Terminator) != 1 {
		errs = append(errs, fmt.Errorf("device.terminator must be a single byte, got %q", c.Device.Terminator))
	} else if c.Device.Terminator[0] == 0 {
		errs = append(errs, errors.New("device.terminator must not be NUL"))
	}
	if c.Device.MaxPendingBytes == 0 {
		errs = append(errs, errors.New("device.maxPendingBytes must be non-zero; use a negative value for no limit"))
	}
	if _, err := c.FsyncMode(); err != nil {
		errs = append(errs, fmt.Errorf("archive.fsync: %w", err))
	}
	if c.Archive.QueueSize < 0 || c.Archive.MaxRecords < 0 {
		errs = append(errs, errors.New("archive.queueSize and archive.maxRecords must not be negative"))
	}
	if c.Socket.ReadBufBytes <= 0 {
		errs = append(errs, fmt.Errorf("socket.readBufBytes must be positive, got %d", c.Socket.ReadBufBytes))
	}
	if c.HTTP.MaxBodyBytes <= 0 || c.HTTP.MaxReadBytes <= 0 {
		errs = append(errs, errors.New("http.maxBodyBytes and http.maxReadBytes must be positive"))
	}
	if _, err := logpkg.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}
