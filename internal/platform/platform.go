package platform

import (
	"os"
	"path/filepath"
)

// EnvHome overrides the data directory location, mainly for tests and
// portable installs.
const EnvHome = "MIAODA_SEARCH_HOME"

// DataDir returns the directory holding the config file, state database, and
// logs: $MIAODA_SEARCH_HOME if set, otherwise ~/.miaoda-search.
func DataDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".miaoda-search"), nil
}

// EnsureDataDir creates the data directory if needed and returns it.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// StateDBPath returns the SQLite state database path inside the data dir.
func StateDBPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "search.db"), nil
}
