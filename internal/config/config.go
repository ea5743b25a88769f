package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Default tree locations inside the Plex container.
const (
	DefaultPlexDBPath         = "/config/Library/Application Support/Plex Media Server/Plug-in Support/Databases"
	DefaultDBBackupPath       = "/db-backup"
	DefaultPlexMetadataPath   = "/config/Library/Application Support/Plex Media Server/Metadata"
	DefaultMetadataBackupPath = "/metadata-backup"
)

// Config represents the main configuration for plexmirror.
type Config struct {
	BaseDir     string           `toml:"base_dir"`
	LogDir      string           `toml:"log_dir"`
	LogLevel    string           `toml:"log_level"` // "debug", "info" (default), "warn"/"warning" or "error"
	InitialSync bool             `toml:"initial_sync"`
	Database    TreeConfig       `toml:"database"`
	Metadata    TreeConfig       `toml:"metadata"`
	Journal     JournalConfig    `toml:"journal"`
	Filesystem  FilesystemConfig `toml:"filesystem"`
}

// TreeConfig pairs a watched source tree with its backup tree.
type TreeConfig struct {
	Source string `toml:"source"`
	Backup string `toml:"backup"`
}

// JournalConfig represents configuration for the event journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type JournalConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "none"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a Config with the default tree locations and data kept
// under baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:     baseDir,
		LogDir:      filepath.Join(baseDir, "log"),
		LogLevel:    "info",
		InitialSync: true,
		Database: TreeConfig{
			Source: DefaultPlexDBPath,
			Backup: DefaultDBBackupPath,
		},
		Metadata: TreeConfig{
			Source: DefaultPlexMetadataPath,
			Backup: DefaultMetadataBackupPath,
		},
		Journal: JournalConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// Validate checks the config for values that cannot work.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	switch c.Journal.Type {
	case "sqlite", "memory", "none":
	default:
		return fmt.Errorf("invalid journal type %q", c.Journal.Type)
	}

	trees := map[string]TreeConfig{"database": c.Database, "metadata": c.Metadata}
	for name, tree := range trees {
		if tree.Source == "" || tree.Backup == "" {
			return fmt.Errorf("%s: source and backup are required", name)
		}
		if within(tree.Backup, tree.Source) {
			return fmt.Errorf("%s: backup %s is inside source %s", name, tree.Backup, tree.Source)
		}
	}
	return nil
}

// ParseLogLevel converts a log_level value to a slog.Level. Names are case
// insensitive; "warning" is accepted for "warn" and an empty value means info.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// within reports whether path equals root or lies below it.
func within(path, root string) bool {
	path, root = filepath.Clean(path), filepath.Clean(root)
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// ReadOnto decodes r over cfg, leaving fields absent from r untouched.
func (m *Manager) ReadOnto(r io.Reader, cfg *Config) error {
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config file at path over defaults. A missing file is not an
// error: the defaults are returned as they are.
func Load(path string, defaults *Config) (*Config, error) {
	cfg := *defaults

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.ReadOnto(f, &cfg); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return &cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
