package rebuild

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/plan"
	"github.com/strataform/strata/internal/snapshot"
)

type fixture struct {
	cat   *catalog.Catalog
	snaps *snapshot.Store
	root  string
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cat, err := catalog.Load(filepath.Join(root, ".strata", catalog.FileName))
	require.NoError(t, err)
	return &fixture{
		cat:   cat,
		snaps: snapshot.New(root, filepath.Join(root, ".strata", "versions")),
		root:  root,
		clock: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (f *fixture) commit(t *testing.T, name, versionID string, parents ...snapshot.Parent) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := f.snaps.Commit(path, "aid-"+name, versionID, catalog.SidecarNone, parents)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Second)
	require.NoError(t, f.cat.UpsertVersion(catalog.VersionRow{
		VersionID:     versionID,
		ArtifactID:    "aid-" + name,
		Path:          path,
		ContentHash:   "ch-" + versionID,
		CreatedAt:     f.clock,
		SidecarFormat: catalog.SidecarNone,
	}))
	return path
}

// fakeSaver records SaveBuilt calls and hands out synthetic version ids.
type fakeSaver struct {
	calls []savedCall
	n     int
}

type savedCall struct {
	path    string
	bundle  *Bundle
	parents []snapshot.Parent
}

func (s *fakeSaver) SaveBuilt(path string, b *Bundle, parents []snapshot.Parent) (string, error) {
	s.calls = append(s.calls, savedCall{path: path, bundle: b, parents: parents})
	s.n++
	return fmt.Sprintf("rebuilt-%d", s.n), nil
}

func okBuilder(body string) Builder {
	return func(path string, parents []snapshot.Parent) (*Bundle, error) {
		return &Bundle{Object: map[string]any{"body": body}, Format: "json"}, nil
	}
}

func TestExecuteLevelOrder(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "a1")
	b := f.commit(t, "b.json", "b1", snapshot.Parent{Path: a, VersionID: "a1"})
	c := f.commit(t, "c.json", "c1", snapshot.Parent{Path: b, VersionID: "b1"})

	saver := &fakeSaver{}
	x := New(f.cat, f.snaps, saver)

	// Entries handed over out of order; execution must still be level order.
	entries := []plan.Entry{
		{Level: 2, Path: c},
		{Level: 1, Path: b},
	}
	outcomes := x.Execute(entries, map[string]Builder{b: okBuilder("b"), c: okBuilder("c")}, false)

	require.Len(t, outcomes, 2)
	assert.Equal(t, b, outcomes[0].Path)
	assert.Equal(t, StatusBuilt, outcomes[0].Status)
	assert.Equal(t, c, outcomes[1].Path)
	assert.Equal(t, StatusBuilt, outcomes[1].Status)
	assert.NotEmpty(t, outcomes[0].VersionID)

	require.Len(t, saver.calls, 2)
	assert.Equal(t, b, saver.calls[0].path)
	assert.Equal(t, c, saver.calls[1].path)
}

func TestExecuteRepinsParentsAtCurrentLatest(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "a1")
	b := f.commit(t, "b.json", "b1", snapshot.Parent{Path: a, VersionID: "a1"})
	f.commit(t, "a.json", "a2")

	saver := &fakeSaver{}
	x := New(f.cat, f.snaps, saver)
	outcomes := x.Execute([]plan.Entry{{Level: 1, Path: b}}, map[string]Builder{b: okBuilder("b")}, false)

	require.Len(t, outcomes, 1)
	require.Equal(t, StatusBuilt, outcomes[0].Status)
	require.Len(t, saver.calls, 1)
	require.Len(t, saver.calls[0].parents, 1)
	assert.Equal(t, "a2", saver.calls[0].parents[0].VersionID)
}

func TestExecuteMissingBuilderSkips(t *testing.T) {
	f := newFixture(t)
	b := f.commit(t, "b.json", "b1")

	saver := &fakeSaver{}
	outcomes := New(f.cat, f.snaps, saver).Execute([]plan.Entry{{Level: 1, Path: b}}, nil, false)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.Equal(t, "no builder supplied", outcomes[0].Message)
	assert.Empty(t, saver.calls)
}

func TestExecuteDryRunInvokesNothing(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "a1")
	b := f.commit(t, "b.json", "b1", snapshot.Parent{Path: a, VersionID: "a1"})

	saver := &fakeSaver{}
	invoked := false
	builder := func(path string, parents []snapshot.Parent) (*Bundle, error) {
		invoked = true
		return &Bundle{Object: "x"}, nil
	}
	outcomes := New(f.cat, f.snaps, saver).Execute([]plan.Entry{{Level: 1, Path: b}}, map[string]Builder{b: builder}, true)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Message, "dry run")
	assert.Contains(t, outcomes[0].Message, "1 parent(s)")
	assert.False(t, invoked)
	assert.Empty(t, saver.calls)
}

func TestExecuteFailureIsolated(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "a1")
	b := f.commit(t, "b.json", "b1", snapshot.Parent{Path: a, VersionID: "a1"})
	c := f.commit(t, "c.json", "c1", snapshot.Parent{Path: a, VersionID: "a1"})

	saver := &fakeSaver{}
	failing := func(path string, parents []snapshot.Parent) (*Bundle, error) {
		return nil, errors.New("upstream unreachable")
	}
	outcomes := New(f.cat, f.snaps, saver).Execute(
		[]plan.Entry{{Level: 1, Path: b}, {Level: 1, Path: c}},
		map[string]Builder{b: failing, c: okBuilder("c")},
		false,
	)

	require.Len(t, outcomes, 2)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Message, "upstream unreachable")
	assert.Equal(t, StatusBuilt, outcomes[1].Status)
}

func TestExecuteBuilderPanicRecovered(t *testing.T) {
	f := newFixture(t)
	b := f.commit(t, "b.json", "b1")

	saver := &fakeSaver{}
	panicking := func(path string, parents []snapshot.Parent) (*Bundle, error) {
		panic("index out of range")
	}
	outcomes := New(f.cat, f.snaps, saver).Execute([]plan.Entry{{Level: 1, Path: b}}, map[string]Builder{b: panicking}, false)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Message, "builder panic")
	assert.Empty(t, saver.calls)
}

func TestExecuteEmptyBundleFails(t *testing.T) {
	f := newFixture(t)
	b := f.commit(t, "b.json", "b1")

	saver := &fakeSaver{}
	empty := func(path string, parents []snapshot.Parent) (*Bundle, error) {
		return &Bundle{}, nil
	}
	outcomes := New(f.cat, f.snaps, saver).Execute([]plan.Entry{{Level: 1, Path: b}}, map[string]Builder{b: empty}, false)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Message, "empty bundle")
}

func TestExecuteMissingParentFails(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "a1")
	b := f.commit(t, "b.json", "b1", snapshot.Parent{Path: a, VersionID: "a1"})
	require.NoError(t, f.cat.RemoveVersions([]string{"a1"}))

	saver := &fakeSaver{}
	outcomes := New(f.cat, f.snaps, saver).Execute([]plan.Entry{{Level: 1, Path: b}}, map[string]Builder{b: okBuilder("b")}, false)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Message, "has no versions")
	assert.Empty(t, saver.calls)
}
