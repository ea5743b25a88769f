package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override the tree locations and log level.
const (
	EnvPlexDBPath         = "PLEX_DB_PATH"
	EnvDBBackupPath       = "DB_BACKUP_PATH"
	EnvPlexMetadataPath   = "PLEX_METADATA_PATH"
	EnvMetadataBackupPath = "METADATA_BACKUP_PATH"
	EnvLogLevel           = "PLEXMIRROR_LOG_LEVEL"
)

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with every variable lookup resolves to a non-empty value.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	overrides := []struct {
		key   string
		field *string
	}{
		{EnvPlexDBPath, &cfg.Database.Source},
		{EnvDBBackupPath, &cfg.Database.Backup},
		{EnvPlexMetadataPath, &cfg.Metadata.Source},
		{EnvMetadataBackupPath, &cfg.Metadata.Backup},
		{EnvLogLevel, &cfg.LogLevel},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.field = v
		}
	}
}

// LoadEnvFile reads KEY=value pairs from a dotenv file.
func LoadEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return values, nil
}

// EnvLookup returns a LookupFunc that consults the process environment first
// and falls back to fileValues.
func EnvLookup(fileValues map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := fileValues[key]
		return v, ok
	}
}
