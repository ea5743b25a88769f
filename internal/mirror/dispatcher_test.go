package mirror_test

import (
	"errors"
	"testing"
	"time"

	"plexmirror/internal/mirror"
	"plexmirror/internal/testutil"
)

// failingOwnership reports every owner lookup as denied.
type failingOwnership struct{}

func (failingOwnership) Owner(string) (int, int, error) { return 0, 0, errors.New("permission denied") }
func (failingOwnership) Lchown(string, int, int) error  { return nil }

func newDispatcher(t *testing.T) (*mirror.Dispatcher, mirror.Journal) {
	t.Helper()
	journal := testutil.NewTestJournal(t)
	clock := testutil.FixedClock()
	run := &mirror.Run{ID: "run-1", Command: "watch", Status: mirror.RunRunning, StartedAt: clock.Now()}
	if err := journal.CreateRun(run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	return mirror.NewDispatcher(journal, mirror.NewNopLogger(), clock, testutil.NewStubIDGenerator(), run.ID), journal
}

func TestDispatcher_Handle(t *testing.T) {
	t.Run("journals handled events", func(t *testing.T) {
		d, journal := newDispatcher(t)
		f := newFixture(t)
		testutil.WriteFile(t, f.s("library.db"), "pages")

		got := d.Handle(f.handler, mirror.FileEvent{Kind: mirror.Created, SrcPath: f.s("library.db")})
		if got != mirror.ActionCopied {
			t.Fatalf("Handle() = %s, want %s", got, mirror.ActionCopied)
		}

		entries, err := journal.ListEvents(10)
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("journaled %d events, want 1", len(entries))
		}
		e := entries[0]
		if e.ID != "id-1" || e.RunID != "run-1" || e.Target != "SQLite" {
			t.Errorf("entry identity = %s/%s/%s", e.ID, e.RunID, e.Target)
		}
		if e.Kind != "created" || e.Action != "copied" || e.Error != "" {
			t.Errorf("entry = %+v", e)
		}
		want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
		if !e.HandledAt.Equal(want) {
			t.Errorf("HandledAt = %v, want %v", e.HandledAt, want)
		}
	})

	t.Run("failures are journaled and do not stop handling", func(t *testing.T) {
		d, journal := newDispatcher(t)
		f := newFixture(t)
		target := mirror.NewTarget(f.src, f.bak, "Metadata")
		h := mirror.NewTargetHandler(target, failingOwnership{}, nil, mirror.NewNopLogger())
		testutil.WriteFile(t, f.s("a.xml"), "a")
		testutil.WriteFile(t, f.s("b.xml"), "b")

		d.Handle(h, mirror.FileEvent{Kind: mirror.Created, SrcPath: f.s("a.xml")})
		d.Handle(h, mirror.FileEvent{Kind: mirror.Created, SrcPath: f.s("b.xml")})

		entries, err := journal.ListEvents(10)
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("journaled %d events, want 2", len(entries))
		}
		for _, e := range entries {
			if e.Error == "" {
				t.Errorf("entry %s has no error", e.SrcPath)
			}
		}
		if !testutil.Exists(t, f.b("b.xml")) {
			t.Error("second event was not handled")
		}
	})

	t.Run("ignored events are not journaled", func(t *testing.T) {
		d, journal := newDispatcher(t)
		f := newFixture(t)

		got := d.Handle(f.handler, mirror.FileEvent{Kind: mirror.Deleted, SrcPath: f.src})
		if got != mirror.ActionIgnored {
			t.Fatalf("Handle() = %s, want %s", got, mirror.ActionIgnored)
		}
		entries, err := journal.ListEvents(10)
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("journaled %d events, want 0", len(entries))
		}
	})
}
