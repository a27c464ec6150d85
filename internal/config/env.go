package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays LINELOG_* environment variables onto cfg. Malformed
// numbers and booleans are ignored.
func FromEnv(cfg *Config) {
	envInt("LINELOG_DEVICE_CAPACITY", &cfg.Device.Capacity)
	if v := os.Getenv("LINELOG_DEVICE_TERMINATOR"); v != "" {
		cfg.Device.Terminator = Unescape(v)
	}
	envInt("LINELOG_DEVICE_MAX_PENDING_BYTES", &cfg.Device.MaxPendingBytes)

	if v := os.Getenv("LINELOG_ARCHIVE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Archive.Enabled = b
		}
	}
	if v := os.Getenv("LINELOG_ARCHIVE_FSYNC"); v != "" {
		cfg.Archive.Fsync = v
	}
	envInt("LINELOG_ARCHIVE_QUEUE_SIZE", &cfg.Archive.QueueSize)
	envInt("LINELOG_ARCHIVE_MAX_RECORDS", &cfg.Archive.MaxRecords)

	envInt("LINELOG_SOCKET_READ_TIMEOUT_MS", &cfg.Socket.ReadTimeoutMs)
	envInt("LINELOG_SOCKET_WRITE_TIMEOUT_MS", &cfg.Socket.WriteTimeoutMs)
	envInt("LINELOG_SOCKET_READ_BUF_BYTES", &cfg.Socket.ReadBufBytes)

	envInt("LINELOG_HTTP_MAX_BODY_BYTES", &cfg.HTTP.MaxBodyBytes)
	envInt("LINELOG_HTTP_MAX_READ_BYTES", &cfg.HTTP.MaxReadBytes)
	envInt("LINELOG_HTTP_FOLLOW_POLL_MS", &cfg.HTTP.FollowPollMs)

	if v := os.Getenv("LINELOG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LINELOG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LINELOG_LOG_REDACT"); v != "" {
		cfg.Log.Redact = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Log.Redact = append(cfg.Log.Redact, p)
			}
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Unescape accepts Go escapes such as \n or \x1e so terminators can be set
// from a shell.
func Unescape(v string) string {
	if s, err := strconv.Unquote(`"` + v + `"`); err == nil {
		return s
	}
	return v
}
