package mirror_test

import (
	"os"
	"testing"

	"plexmirror/internal/mirror"
	"plexmirror/internal/testutil"
)

func moved(f *fixture, oldRel, newRel string) mirror.FileEvent {
	return mirror.FileEvent{Kind: mirror.Moved, SrcPath: f.s(oldRel), DestPath: f.s(newRel)}
}

func TestMove(t *testing.T) {
	t.Run("renames backup and applies new owner", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.s("library.db.tmp"), "pages")
		f.created(t, "library.db.tmp")

		if err := os.MkdirAll(f.s("sub"), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(f.s("library.db.tmp"), f.s("sub/library.db")); err != nil {
			t.Fatal(err)
		}
		f.owners.SetOwner(f.s("sub/library.db"), 500, 600)

		got := f.mustHandle(t, moved(f, "library.db.tmp", "sub/library.db"))
		if got != mirror.ActionMoved {
			t.Fatalf("action = %s, want %s", got, mirror.ActionMoved)
		}
		if testutil.Exists(t, f.b("library.db.tmp")) {
			t.Error("old backup still exists")
		}
		if content := testutil.ReadFile(t, f.b("sub/library.db")); content != "pages" {
			t.Errorf("new backup content = %q", content)
		}
		owner, ok := f.owners.Applied(f.b("sub/library.db"))
		if !ok || owner != (testutil.Owner{UID: 500, GID: 600}) {
			t.Errorf("applied owner = %+v (set %v), want 500:600", owner, ok)
		}
	})

	t.Run("renames directory with contents", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.s("Movies/a/Info.xml"), "x")
		f.created(t, "Movies/a")
		f.created(t, "Movies/a/Info.xml")
		if err := os.Rename(f.s("Movies/a"), f.s("Movies/b")); err != nil {
			t.Fatal(err)
		}

		if got := f.mustHandle(t, moved(f, "Movies/a", "Movies/b")); got != mirror.ActionMoved {
			t.Fatalf("action = %s, want %s", got, mirror.ActionMoved)
		}
		if content := testutil.ReadFile(t, f.b("Movies/b/Info.xml")); content != "x" {
			t.Errorf("moved content = %q", content)
		}
		if testutil.Exists(t, f.b("Movies/a")) {
			t.Error("old directory still exists")
		}
	})

	t.Run("replaces existing file at destination", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.s("library.db"), "old")
		testutil.WriteFile(t, f.s("library.db.new"), "new")
		f.created(t, "library.db")
		f.created(t, "library.db.new")
		if err := os.Rename(f.s("library.db.new"), f.s("library.db")); err != nil {
			t.Fatal(err)
		}

		f.mustHandle(t, moved(f, "library.db.new", "library.db"))

		if content := testutil.ReadFile(t, f.b("library.db")); content != "new" {
			t.Errorf("destination content = %q, want %q", content, "new")
		}
	})

	t.Run("replaces directory at destination", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.b("Cache/stale"), "stale")
		testutil.WriteFile(t, f.s("Cache.new/fresh"), "fresh")
		f.created(t, "Cache.new")
		f.created(t, "Cache.new/fresh")
		if err := os.Rename(f.s("Cache.new"), f.s("Cache")); err != nil {
			t.Fatal(err)
		}

		f.mustHandle(t, moved(f, "Cache.new", "Cache"))

		if testutil.Exists(t, f.b("Cache/stale")) {
			t.Error("stale entry survived the move")
		}
		if content := testutil.ReadFile(t, f.b("Cache/fresh")); content != "fresh" {
			t.Errorf("moved content = %q", content)
		}
	})

	t.Run("missing old backup is abandoned", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.s("new.db"), "x")

		got := f.mustHandle(t, moved(f, "never-mirrored.db", "new.db"))
		if got != mirror.ActionAbandoned {
			t.Errorf("action = %s, want %s", got, mirror.ActionAbandoned)
		}
	})
}

func TestMove_SymlinkDisambiguation(t *testing.T) {
	t.Run("rename reported for a new symlink creates the link", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.s("data/real.db"), "pages")
		testutil.WriteFile(t, f.s("unrelated.db"), "keep me")
		f.created(t, "data/real.db")
		f.created(t, "unrelated.db")

		testutil.Symlink(t, "data/real.db", f.s("current.db"))

		got := f.mustHandle(t, moved(f, "unrelated.db", "current.db"))
		if got != mirror.ActionLinked {
			t.Fatalf("action = %s, want %s", got, mirror.ActionLinked)
		}
		if text := readLink(t, f.b("current.db")); text != "data/real.db" {
			t.Errorf("link text = %q, want %q", text, "data/real.db")
		}
		if content := testutil.ReadFile(t, f.b("unrelated.db")); content != "keep me" {
			t.Errorf("old backup was disturbed: %q", content)
		}
	})

	t.Run("renamed symlink drops the old link backup", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.s("data/real.db"), "pages")
		testutil.Symlink(t, "data/real.db", f.s("tmp-link"))
		f.created(t, "tmp-link")

		if err := os.Rename(f.s("tmp-link"), f.s("current.db")); err != nil {
			t.Fatal(err)
		}

		got := f.mustHandle(t, moved(f, "tmp-link", "current.db"))
		if got != mirror.ActionLinked {
			t.Fatalf("action = %s, want %s", got, mirror.ActionLinked)
		}
		if text := readLink(t, f.b("current.db")); text != "data/real.db" {
			t.Errorf("link text = %q, want %q", text, "data/real.db")
		}
		if testutil.Exists(t, f.b("tmp-link")) {
			t.Error("backup of renamed link still exists")
		}
		if content := testutil.ReadFile(t, f.b("data/real.db")); content != "pages" {
			t.Errorf("link target was disturbed: %q", content)
		}
	})

	t.Run("new path below an unmirrored symlinked directory", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.s("Media/a/thumb.jpg"), "jpeg")
		testutil.WriteFile(t, f.s("other.jpg"), "other")
		f.created(t, "Media/a/thumb.jpg")
		f.created(t, "other.jpg")
		testutil.Symlink(t, "Media", f.s("Alias"))

		got := f.mustHandle(t, moved(f, "other.jpg", "Alias/a/thumb.jpg"))
		if got != mirror.ActionLinked {
			t.Fatalf("action = %s, want %s", got, mirror.ActionLinked)
		}
		if text := readLink(t, f.b("Alias")); text != "Media" {
			t.Errorf("link text = %q, want %q", text, "Media")
		}
		if !testutil.Exists(t, f.b("other.jpg")) {
			t.Error("old backup was moved")
		}
	})

	t.Run("link already current is skipped", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.s("data/real.db"), "pages")
		testutil.Symlink(t, "data/real.db", f.s("current.db"))
		f.created(t, "current.db")

		got := f.mustHandle(t, moved(f, "data/real.db", "current.db"))
		if got != mirror.ActionSkipped {
			t.Fatalf("action = %s, want %s", got, mirror.ActionSkipped)
		}
		if content := testutil.ReadFile(t, f.b("data/real.db")); content != "pages" {
			t.Errorf("link target was disturbed: %q", content)
		}
		if text := readLink(t, f.b("current.db")); text != "data/real.db" {
			t.Errorf("link text = %q", text)
		}
	})

	t.Run("link pointing at equal content elsewhere is skipped", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.s("v1/real.db"), "same bytes")
		testutil.WriteFile(t, f.s("v2/real.db"), "same bytes")
		testutil.Symlink(t, "v1/real.db", f.s("current.db"))
		f.created(t, "v2/real.db")
		f.created(t, "current.db")

		got := f.mustHandle(t, moved(f, "v2/real.db", "current.db"))
		if got != mirror.ActionSkipped {
			t.Fatalf("action = %s, want %s", got, mirror.ActionSkipped)
		}
	})

	t.Run("moved symlink backup is removed", func(t *testing.T) {
		f := newFixture(t)
		testutil.WriteFile(t, f.s("data/real.db"), "pages")
		testutil.Symlink(t, "data/real.db", f.s("alias.db"))
		f.created(t, "alias.db")

		os.Remove(f.s("alias.db"))
		testutil.WriteFile(t, f.s("library.db"), "regular file now")

		got := f.mustHandle(t, moved(f, "alias.db", "library.db"))
		if got != mirror.ActionRemoved {
			t.Fatalf("action = %s, want %s", got, mirror.ActionRemoved)
		}
		if testutil.Exists(t, f.b("alias.db")) {
			t.Error("stale link still exists")
		}
		if testutil.Exists(t, f.b("library.db")) {
			t.Error("destination was populated by the move")
		}
		if content := testutil.ReadFile(t, f.b("data/real.db")); content != "pages" {
			t.Errorf("link target was disturbed: %q", content)
		}
	})
}
