package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"plexmirror/internal/config"
	"plexmirror/internal/mirror"
	"plexmirror/internal/testutil"
)

type trees struct {
	dbSrc, dbBak, metaSrc, metaBak string
}

func newTestConfig(t *testing.T) (*config.Config, trees) {
	t.Helper()
	root := testutil.TempDir(t)

	tr := trees{
		dbSrc:   filepath.Join(root, "Databases"),
		dbBak:   filepath.Join(root, "db-backup"),
		metaSrc: filepath.Join(root, "Metadata"),
		metaBak: filepath.Join(root, "metadata-backup"),
	}
	testutil.Mkdir(t, tr.dbSrc)
	testutil.Mkdir(t, tr.metaSrc)

	cfg := config.NewConfig(filepath.Join(root, "home"))
	cfg.LogLevel = "warn"
	cfg.Journal = config.JournalConfig{Type: "memory"}
	cfg.Database = config.TreeConfig{Source: tr.dbSrc, Backup: tr.dbBak}
	cfg.Metadata = config.TreeConfig{Source: tr.metaSrc, Backup: tr.metaBak}
	return cfg, tr
}

func newTestApp(t *testing.T, cfg *config.Config, command string) *App {
	t.Helper()
	a, err := New(cfg, command)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew_invalidLogLevel(t *testing.T) {
	cfg, _ := newTestConfig(t)
	cfg.LogLevel = "loud"

	if _, err := New(cfg, "sync"); err == nil {
		t.Fatal("New() expected error for invalid log level")
	}
}

func TestApp_Sync(t *testing.T) {
	cfg, tr := newTestConfig(t)
	testutil.WriteFile(t, filepath.Join(tr.dbSrc, "com.plexapp.plugins.library.db"), "sqlite pages")
	testutil.WriteFile(t, filepath.Join(tr.metaSrc, "Movies", "a", "Info.xml"), "<xml/>")
	testutil.WriteFile(t, filepath.Join(tr.metaBak, "stale.jpg"), "old")

	a := newTestApp(t, cfg, "sync")

	results, err := a.Sync()
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Sync() returned %d results, want 2", len(results))
	}
	if results[0].Label != DatabaseLabel || results[1].Label != MetadataLabel {
		t.Errorf("labels = %q, %q", results[0].Label, results[1].Label)
	}
	if results[0].Stats.Copied != 1 {
		t.Errorf("%s copied = %d, want 1", DatabaseLabel, results[0].Stats.Copied)
	}
	if results[1].Stats.Removed != 1 {
		t.Errorf("%s removed = %d, want 1", MetadataLabel, results[1].Stats.Removed)
	}

	if got := testutil.ReadFile(t, filepath.Join(tr.dbBak, "com.plexapp.plugins.library.db")); got != "sqlite pages" {
		t.Errorf("backup content = %q", got)
	}
	if !testutil.Exists(t, filepath.Join(tr.metaBak, "Movies", "a", "Info.xml")) {
		t.Error("metadata file not mirrored")
	}
	if testutil.Exists(t, filepath.Join(tr.metaBak, "stale.jpg")) {
		t.Error("stale backup entry not removed")
	}
	if a.op.Run.Status != mirror.RunSuccess {
		t.Errorf("Status = %q, want %q", a.op.Run.Status, mirror.RunSuccess)
	}

	runs, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Command != "sync" || runs[0].ID != a.RunID() {
		t.Errorf("History() = %+v, want the sync run", runs)
	}
}

func TestApp_Sync_ignoreFile(t *testing.T) {
	cfg, tr := newTestConfig(t)
	testutil.WriteFile(t, filepath.Join(tr.metaSrc, ".plexmirrorignore"), "Cache\n")
	testutil.WriteFile(t, filepath.Join(tr.metaSrc, "Cache", "blob"), "x")
	testutil.WriteFile(t, filepath.Join(tr.metaSrc, "Movies", "poster.jpg"), "jpg")

	a := newTestApp(t, cfg, "sync")
	if _, err := a.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if testutil.Exists(t, filepath.Join(tr.metaBak, "Cache")) {
		t.Error("ignored directory was mirrored")
	}
	if testutil.Exists(t, filepath.Join(tr.metaBak, ".plexmirrorignore")) {
		t.Error("ignore file was mirrored")
	}
	if !testutil.Exists(t, filepath.Join(tr.metaBak, "Movies", "poster.jpg")) {
		t.Error("regular file not mirrored")
	}
}

func TestApp_Sync_missingSource(t *testing.T) {
	cfg, _ := newTestConfig(t)
	cfg.Database.Source = filepath.Join(t.TempDir(), "missing")

	a := newTestApp(t, cfg, "sync")
	if _, err := a.Sync(); err == nil {
		t.Fatal("Sync() expected error for missing source root")
	}
	if a.op.Run.Status != mirror.RunError {
		t.Errorf("Status = %q, want %q", a.op.Run.Status, mirror.RunError)
	}
}

func TestApp_Sync_alreadyRunning(t *testing.T) {
	cfg, _ := newTestConfig(t)

	first := newTestApp(t, cfg, "watch")
	if err := first.begin(); err != nil {
		t.Fatalf("begin() error = %v", err)
	}

	second := newTestApp(t, cfg, "sync")
	if _, err := second.Sync(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Sync() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestApp_Watch(t *testing.T) {
	cfg, tr := newTestConfig(t)
	testutil.WriteFile(t, filepath.Join(tr.dbSrc, "existing.db"), "before start")

	a := newTestApp(t, cfg, "watch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()

	// Initial sync mirrors what was there before the watch started.
	waitFor(t, filepath.Join(tr.dbBak, "existing.db"))

	testutil.WriteFile(t, filepath.Join(tr.metaSrc, "Movies", "thumb.jpg"), "thumb")
	waitForContent(t, filepath.Join(tr.metaBak, "Movies", "thumb.jpg"), "thumb")

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Watch() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}

	if a.op.Run.Status != mirror.RunCanceled {
		t.Errorf("Status = %q, want %q", a.op.Run.Status, mirror.RunCanceled)
	}

	events, err := a.Events(100)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) == 0 {
		t.Fatal("Events() returned no journaled events")
	}
	for _, e := range events {
		if e.RunID != a.RunID() {
			t.Errorf("event run id = %q, want %q", e.RunID, a.RunID())
		}
	}
}

func TestApp_Watch_arrivalReplacesDeparture(t *testing.T) {
	cfg, tr := newTestConfig(t)
	outside := testutil.TempDir(t)
	testutil.WriteFile(t, filepath.Join(tr.dbSrc, "a.db"), "old pages")
	testutil.WriteFile(t, filepath.Join(outside, "incoming.db"), "new pages")

	a := newTestApp(t, cfg, "watch")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	waitForContent(t, filepath.Join(tr.dbBak, "a.db"), "old pages")

	if err := os.Rename(filepath.Join(tr.dbSrc, "a.db"), filepath.Join(outside, "a.db")); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(outside, "incoming.db"), filepath.Join(tr.dbSrc, "b.db")); err != nil {
		t.Fatal(err)
	}

	waitForContent(t, filepath.Join(tr.dbBak, "b.db"), "new pages")
	waitForGone(t, filepath.Join(tr.dbBak, "a.db"))
}

func TestApp_Close_finishesRun(t *testing.T) {
	cfg, _ := newTestConfig(t)
	dataDir := filepath.Join(cfg.BaseDir, "db")
	cfg.Journal = config.JournalConfig{Type: "sqlite", DataDir: dataDir}

	a, err := New(cfg, "sync")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := a.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reader := newTestApp(t, cfg, "history")
	runs, err := reader.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("History() returned %d runs, want 1", len(runs))
	}
	if runs[0].Status != mirror.RunSuccess {
		t.Errorf("Status = %q, want %q", runs[0].Status, mirror.RunSuccess)
	}
	if runs[0].FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
	if _, err := os.Stat(filepath.Join(cfg.BaseDir, LockFileName)); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}

// waitFor polls until path exists or fails the test after a few seconds.
func waitFor(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.Exists(t, path) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}

// waitForContent polls until path holds want.
func waitForContent(t *testing.T, path, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil && string(data) == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s to hold %q", path, want)
}

// waitForGone polls until path no longer exists.
func waitForGone(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !testutil.Exists(t, path) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s to be removed", path)
}
