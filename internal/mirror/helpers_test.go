package mirror_test

import (
	"path/filepath"
	"strings"
	"testing"

	"plexmirror/internal/mirror"
	"plexmirror/internal/testutil"
)

type fixture struct {
	src     string
	bak     string
	owners  *testutil.RecordingOwnership
	handler *mirror.TargetHandler
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithIgnore(t, nil)
}

func newFixtureWithIgnore(t *testing.T, ignore mirror.Matcher) *fixture {
	t.Helper()
	dir := testutil.TempDir(t)
	src := filepath.Join(dir, "Databases")
	bak := filepath.Join(dir, "db-backup")
	testutil.Mkdir(t, src)
	testutil.Mkdir(t, bak)

	owners := testutil.NewRecordingOwnership()
	target := mirror.NewTarget(src, bak, "SQLite")
	return &fixture{
		src:     src,
		bak:     bak,
		owners:  owners,
		handler: mirror.NewTargetHandler(target, owners, ignore, mirror.NewNopLogger()),
	}
}

func (f *fixture) s(rel string) string { return filepath.Join(f.src, rel) }
func (f *fixture) b(rel string) string { return filepath.Join(f.bak, rel) }

func (f *fixture) created(t *testing.T, rel string) mirror.Action {
	t.Helper()
	return f.mustHandle(t, mirror.FileEvent{Kind: mirror.Created, SrcPath: f.s(rel)})
}

func (f *fixture) mustHandle(t *testing.T, ev mirror.FileEvent) mirror.Action {
	t.Helper()
	action, err := mirror.Dispatch(f.handler, ev)
	if err != nil {
		t.Fatalf("handling %s: %v", ev, err)
	}
	return action
}

// suffixMatcher ignores paths ending in one of its suffixes.
type suffixMatcher []string

func (m suffixMatcher) Match(relativePath string) bool {
	for _, suffix := range m {
		if strings.HasSuffix(relativePath, suffix) {
			return true
		}
	}
	return false
}
