package plan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataform/strata/internal/catalog"
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

func pin(path, versionID string) snapshot.Parent {
	return snapshot.Parent{Path: path, VersionID: versionID}
}

func TestCheckUnknownArtifact(t *testing.T) {
	f := newFixture(t)
	d := NewDetector(f.cat, f.snaps)

	status, drifts, err := d.Check(filepath.Join(f.root, "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)
	assert.Empty(t, drifts)

	stale, err := d.IsStale(filepath.Join(f.root, "nope.json"))
	require.NoError(t, err)
	assert.True(t, stale, "unknown counts as stale")
}

func TestCheckNoParentsIsCurrent(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "a1")

	status, drifts, err := NewDetector(f.cat, f.snaps).Check(a)
	require.NoError(t, err)
	assert.Equal(t, StatusCurrent, status)
	assert.Empty(t, drifts)
}

func TestCheckDriftedParent(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "a1")
	b := f.commit(t, "b.json", "b1", pin(a, "a1"))
	d := NewDetector(f.cat, f.snaps)

	status, _, err := d.Check(b)
	require.NoError(t, err)
	assert.Equal(t, StatusCurrent, status)

	// Parent moves on; the child becomes stale with drift detail.
	f.commit(t, "a.json", "a2")
	status, drifts, err := d.Check(b)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, status)
	require.Len(t, drifts, 1)
	assert.Equal(t, a, drifts[0].ParentPath)
	assert.Equal(t, "a1", drifts[0].Pinned)
	assert.Equal(t, "a2", drifts[0].Current)
}

func TestCheckPrunedAwayParent(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "a1")
	b := f.commit(t, "b.json", "b1", pin(a, "a1"))

	require.NoError(t, f.cat.RemoveVersions([]string{"a1"}))

	status, drifts, err := NewDetector(f.cat, f.snaps).Check(b)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, status)
	require.Len(t, drifts, 1)
	assert.Equal(t, "a1", drifts[0].Pinned)
	assert.Empty(t, drifts[0].Current)
}

func TestStalenessMonotonicUntilResave(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "a1")
	b := f.commit(t, "b.json", "b1", pin(a, "a1"))
	d := NewDetector(f.cat, f.snaps)

	f.commit(t, "a.json", "a2")
	for i := 0; i < 3; i++ {
		stale, err := d.IsStale(b)
		require.NoError(t, err)
		assert.True(t, stale)
	}

	// Re-saving the child against the new parent clears staleness.
	f.commit(t, "b.json", "b2", pin(a, "a2"))
	stale, err := d.IsStale(b)
	require.NoError(t, err)
	assert.False(t, stale)
}
