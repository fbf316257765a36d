// Package paths resolves configuration and backup directory locations and
// manages the per-version migration markers.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "BOXPORT_CONFIG_DIR"
	EnvBackupDir = "BOXPORT_BACKUP_DIR"
)

// BackupDirName is the backup directory created under the config directory
// when no override is active.
const BackupDirName = "backups"

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/boxport (fallback ~/.config/boxport)
// macOS:   ~/Library/Application Support/boxport
// Windows: %APPDATA%/boxport
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "boxport"), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "boxport"), nil
	default:
		// macOS and Windows use os.UserConfigDir which returns
		// ~/Library/Application Support on macOS and %APPDATA% on Windows.
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "boxport"), nil
	}
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > BOXPORT_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveBackupDir returns the directory migrated source stores are moved
// into, following the precedence chain: flag > configYAMLValue >
// BOXPORT_BACKUP_DIR env > <config dir>/backups.
func ResolveBackupDir(flag, configYAMLValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configYAMLValue != "" {
		return filepath.Abs(configYAMLValue)
	}
	if env := os.Getenv(EnvBackupDir); env != "" {
		return filepath.Abs(env)
	}
	cfg, err := ResolveConfigDir("")
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, BackupDirName), nil
}

// MarkerName returns the completion-marker file name for a destination
// schema version. The marker lives next to the destination store and records
// that the migration producing that version finished and was validated.
func MarkerName(version int) string {
	return fmt.Sprintf("migration-v%d.done", version)
}

// MarkerPath returns the marker path for the store at destPath.
func MarkerPath(destPath string, version int) string {
	return filepath.Join(filepath.Dir(destPath), MarkerName(version))
}

// WriteMarker records migration completion for the store at destPath.
func WriteMarker(destPath string, version int) error {
	return os.WriteFile(MarkerPath(destPath, version), nil, 0o644)
}

// HasMarker reports whether a completion marker exists for the store at
// destPath.
func HasMarker(destPath string, version int) bool {
	_, err := os.Stat(MarkerPath(destPath, version))
	return err == nil
}

// ClearMarker removes the completion marker; used by forced re-runs.
func ClearMarker(destPath string, version int) error {
	err := os.Remove(MarkerPath(destPath, version))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// AssetDir returns the asset directory convention for a store: an assets/
// directory next to the store file. Rows reference files inside it by
// relative path.
func AssetDir(storePath string) string {
	return filepath.Join(filepath.Dir(storePath), "assets")
}
