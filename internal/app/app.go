package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"plexmirror/internal/config"
	"plexmirror/internal/database"
	"plexmirror/internal/fs"
	"plexmirror/internal/mirror"
)

// Labels of the two mirrored trees, used in logs and the journal.
const (
	DatabaseLabel = "SQLite"
	MetadataLabel = "Metadata"
)

// App is the application layer between the CLI and the mirror package.
// It constructs all dependencies from config, exposes the high-level
// operations, and finishes the run record on Close.
type App struct {
	cfg     *config.Config
	journal mirror.Journal
	logger  *slog.Logger
	owners  mirror.Ownership
	clock   mirror.Clock
	ids     mirror.IDGenerator
	op      *Operation
	lock    *flock.Flock
	logFile *os.File
}

// SyncResult is the outcome of reconciling one tree.
type SyncResult struct {
	Label string
	Stats mirror.ReconcileStats
	Err   error
}

// New creates a fully wired App from the given config.
// command identifies the CLI command being run (e.g. "watch", "sync").
// The caller must call Close when done.
func New(cfg *config.Config, command string) (*App, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level: %w", err)
	}

	journal, err := database.NewJournalFromConfig(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}

	clock, ids := mirror.RealClock{}, mirror.UUIDGenerator{}
	op := NewOperation(command, clock, ids)

	logger, logFile, err := newLogger(cfg.LogDir, op.Run.ID, level)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &App{
		cfg:     cfg,
		journal: journal,
		logger:  logger,
		owners:  fs.NewOSOwnership(),
		clock:   clock,
		ids:     ids,
		op:      op,
		logFile: logFile,
	}, nil
}

// begin takes the instance lock and saves the run to the journal.
// This should only be called for commands that write to the backup trees.
func (a *App) begin() error {
	if a.op.Persisted() {
		return nil // already started
	}
	lock, err := acquireLock(a.cfg.BaseDir)
	if err != nil {
		return err
	}
	a.lock = lock

	if err := a.journal.CreateRun(a.op.Run); err != nil {
		return fmt.Errorf("persisting run: %w", err)
	}
	a.op.persisted = true
	return nil
}

// handlers builds one TargetHandler per configured tree. Source roots must
// exist; backup roots are created.
func (a *App) handlers() ([]*mirror.TargetHandler, error) {
	trees := []struct {
		label string
		tree  config.TreeConfig
	}{
		{DatabaseLabel, a.cfg.Database},
		{MetadataLabel, a.cfg.Metadata},
	}

	var handlers []*mirror.TargetHandler
	for _, t := range trees {
		source, err := fs.ResolveRoot(t.tree.Source)
		if err != nil {
			return nil, fmt.Errorf("%s source %s: %w", t.label, t.tree.Source, err)
		}
		backup, err := fs.EnsureRoot(t.tree.Backup)
		if err != nil {
			return nil, fmt.Errorf("%s backup %s: %w", t.label, t.tree.Backup, err)
		}

		ignore, err := a.ignoreMatcher(source)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.label, err)
		}

		logger := &slogAdapter{l: a.logger.With("target", t.label)}
		target := mirror.NewTarget(source, backup, t.label)
		handlers = append(handlers, mirror.NewTargetHandler(target, a.owners, ignore, logger))
	}
	return handlers, nil
}

// ignoreMatcher combines the built-in patterns, the configured ones and the
// ignore file at the top of source.
func (a *App) ignoreMatcher(source string) (*fs.IgnoreMatcher, error) {
	patterns := fs.WithDefaults(a.cfg.Filesystem.Ignore)
	fromFile, err := fs.ParseIgnoreFile(filepath.Join(source, fs.IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return fs.NewIgnoreMatcher(append(patterns, fromFile...)), nil
}

// Sync reconciles every tree once. A tree that fails does not stop the
// others; its error is reported in its SyncResult and in the returned error.
func (a *App) Sync() ([]SyncResult, error) {
	if err := a.begin(); err != nil {
		return nil, err
	}

	handlers, err := a.handlers()
	if err != nil {
		a.op.Finish(err)
		return nil, err
	}

	results, err := a.reconcile(handlers)
	a.op.Finish(err)
	return results, err
}

func (a *App) reconcile(handlers []*mirror.TargetHandler) ([]SyncResult, error) {
	var (
		results []SyncResult
		errs    []error
	)
	for _, h := range handlers {
		label := h.Target().Label
		stats, err := h.Reconcile()
		if err != nil {
			a.logger.Error("reconcile failed", "target", label, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		} else {
			a.logger.Info("reconciled", "target", label,
				"copied", stats.Copied, "linked", stats.Linked, "removed", stats.Removed,
				"unchanged", stats.Unchanged, "failed", stats.Failed)
		}
		results = append(results, SyncResult{Label: label, Stats: stats, Err: err})
	}
	return results, errors.Join(errs...)
}

// History returns the most recent runs.
func (a *App) History(limit int) ([]*mirror.Run, error) {
	return a.journal.ListRuns(limit)
}

// Events returns the most recently journaled events.
func (a *App) Events(limit int) ([]*mirror.JournalEntry, error) {
	return a.journal.ListEvents(limit)
}

// RunID returns the ID of the current run.
func (a *App) RunID() string {
	return a.op.Run.ID
}

// Close finalizes the run and closes all resources.
// For persisted runs the status and finish time are written to the journal
// and the instance lock is released.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.journal.FinishRun(a.op.Run.ID, a.op.Run.Status, a.clock.Now().UTC()); err != nil {
			firstErr = fmt.Errorf("finishing run: %w", err)
		}
	}

	if err := a.journal.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing journal: %w", err)
	}

	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("releasing lock: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
