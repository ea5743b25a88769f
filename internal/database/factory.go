package database

import (
	"fmt"
	"os"
	"path/filepath"

	"plexmirror/internal/config"
	"plexmirror/internal/mirror"
)

// JournalFileName is the journal database file inside the data directory.
const JournalFileName = "journal.db"

// NewJournalFromConfig creates a Journal implementation based on the journal config type.
func NewJournalFromConfig(cfg config.JournalConfig) (mirror.Journal, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite journal")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		return openSQLite(filepath.Join(cfg.DataDir, JournalFileName))
	case "memory":
		return openSQLite(":memory:")
	case "none":
		return mirror.NopJournal{}, nil
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}

func openSQLite(path string) (mirror.Journal, error) {
	j, err := NewSQLiteJournal(path)
	if err != nil {
		return nil, err
	}
	return j, nil
}
