package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the directory holding the archive. LINELOG_DATA_DIR
// wins; otherwise the host's conventional data location is used, falling back
// to a dotdir in the user's home directory.
func DefaultDataDir() string {
	if v := os.Getenv("LINELOG_DATA_DIR"); v != "" {
		return v
	}
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "linelog")
	}
	if isWritableDir("/var/lib") {
		return "/var/lib/linelog"
	}
	// macOS
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "linelog")
	}
	// Windows
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "linelog")
	}
	return filepath.Join(homeDir, ".linelog")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func isWritableDir(path string) bool {
	if !isDir(path) {
		return false
	}
	f, err := os.CreateTemp(path, ".linelog-writecheck-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
