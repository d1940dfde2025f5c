// Package app holds per-user application state.
package app

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	markerFileName = "first_run_completed"
	appName        = "reportspectre"
)

// GetAppConfigDir returns the path to the application's configuration directory.
func GetAppConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// IsFirstRun reports whether reportspectre has never run for this user, and
// records that it now has. Errors count as "not first run".
func IsFirstRun() bool {
	appConfigDir, err := GetAppConfigDir()
	if err != nil {
		slog.Debug("failed to get app config directory", slog.String("error", err.Error()))
		return false
	}
	return markFirstRun(appConfigDir)
}

func markFirstRun(dir string) bool {
	marker := filepath.Join(dir, markerFileName)

	_, err := os.Stat(marker)
	switch {
	case err == nil:
		return false
	case !errors.Is(err, os.ErrNotExist):
		slog.Debug("failed to check first run marker", slog.String("path", marker), slog.String("error", err.Error()))
		return false
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Debug("failed to create app config directory", slog.String("path", dir), slog.String("error", err.Error()))
		return false
	}
	if err := os.WriteFile(marker, nil, 0644); err != nil {
		slog.Debug("failed to create first run marker", slog.String("path", marker), slog.String("error", err.Error()))
		return false
	}
	slog.Debug("first run detected", slog.String("path", marker))
	return true
}
