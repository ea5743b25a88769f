package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that relocate plexmirror's own files.
const (
	EnvConfigPath = "PLEXMIRROR_CONFIG_PATH"
	EnvHome       = "PLEXMIRROR_HOME"
)

// GetDefaults returns application default paths. Lookup order for each:
//   - config_path: PLEXMIRROR_CONFIG_PATH, $XDG_CONFIG_HOME/plexmirror.toml, ~/.config/plexmirror.toml
//   - base_dir: PLEXMIRROR_HOME, $XDG_DATA_HOME/plexmirror, ~/.local/share/plexmirror
//
// log_dir lives under base_dir.
func GetDefaults() (map[string]string, error) {
	configPath, err := lookupPath(EnvConfigPath, "XDG_CONFIG_HOME", "plexmirror.toml", ".config")
	if err != nil {
		return nil, err
	}

	baseDir, err := lookupPath(EnvHome, "XDG_DATA_HOME", "plexmirror", ".local", "share")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// lookupPath returns the value of env if set, name under the xdg directory if
// that is set, and otherwise name under homeDirs inside the user's home.
func lookupPath(env, xdg, name string, homeDirs ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	if dir := os.Getenv(xdg); dir != "" {
		return filepath.Join(dir, name), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append(append([]string{homeDir}, homeDirs...), name)...), nil
}
