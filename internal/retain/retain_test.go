package retain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/snapshot"
)

var pruneTime = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	cat   *catalog.Catalog
	snaps *snapshot.Store
	root  string
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
	}
}

func (f *fixture) engine() *Engine {
	return New(f.cat, f.snaps).WithClock(func() time.Time { return pruneTime })
}

// commit records one version created the given number of days before the
// pinned prune time.
func (f *fixture) commit(t *testing.T, name, versionID string, ageDays int) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := f.snaps.Commit(path, "aid-"+name, versionID, catalog.SidecarNone, nil)
	require.NoError(t, err)

	require.NoError(t, f.cat.UpsertVersion(catalog.VersionRow{
		VersionID:     versionID,
		ArtifactID:    "aid-" + name,
		Path:          path,
		ContentHash:   "ch-" + versionID,
		SizeBytes:     100,
		CreatedAt:     pruneTime.Add(-time.Duration(ageDays) * 24 * time.Hour),
		SidecarFormat: catalog.SidecarNone,
	}))
	return path
}

func candidateIDs(res *Result) []string {
	ids := make([]string, len(res.Candidates))
	for i, c := range res.Candidates {
		ids[i] = c.VersionID
	}
	return ids
}

func TestKeepAllPrunesNothing(t *testing.T) {
	f := newFixture(t)
	f.commit(t, "a.json", "v1", 30)
	f.commit(t, "a.json", "v2", 20)

	res, err := f.engine().Prune(nil, KeepAllPolicy(), false)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Len(t, f.cat.VersionsOf(filepath.Join(f.root, "a.json")), 2)
}

func TestKeepLastN(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "v1", 30)
	f.commit(t, "a.json", "v2", 20)
	f.commit(t, "a.json", "v3", 10)

	res, err := f.engine().Prune(nil, KeepLast(2), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, candidateIDs(res))
	assert.Equal(t, int64(100), res.ReclaimedBytes)

	// Dry run deleted nothing.
	assert.Len(t, f.cat.VersionsOf(a), 3)
}

func TestUnionPolicyKeepsEither(t *testing.T) {
	f := newFixture(t)
	// Newest-first: v4 (1d), v3 (3d), v2 (5d), v1 (30d).
	f.commit(t, "a.json", "v1", 30)
	f.commit(t, "a.json", "v2", 5)
	f.commit(t, "a.json", "v3", 3)
	f.commit(t, "a.json", "v4", 1)

	// Keep newest 2 OR younger than 7 days: v4, v3 by count, v2 by age.
	res, err := f.engine().Prune(nil, KeepUnion(2, 7), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, candidateIDs(res))

	// Count alone would have pruned v2 as well.
	res, err = f.engine().Prune(nil, KeepLast(2), true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, candidateIDs(res))
}

func TestPruneAppliedRemovesSnapshotsAndRows(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "v1", 30)
	f.commit(t, "a.json", "v2", 20)
	f.commit(t, "a.json", "v3", 10)

	v1dir := f.snaps.VersionDir(a, "aid-a.json", "v1")
	_, err := os.Stat(v1dir)
	require.NoError(t, err)

	res, err := f.engine().Prune(nil, KeepLast(2), false)
	require.NoError(t, err)
	require.Equal(t, []string{"v1"}, candidateIDs(res))

	_, err = os.Stat(v1dir)
	assert.True(t, os.IsNotExist(err))

	rows := f.cat.VersionsOf(a)
	require.Len(t, rows, 2)
	assert.Equal(t, "v3", rows[0].VersionID)

	art, ok := f.cat.Artifact(a)
	require.True(t, ok)
	assert.Equal(t, 2, art.NVersions)
	assert.Equal(t, "v3", art.LatestVersionID)
}

func TestPruneNeverTouchesLiveFiles(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "v1", 30)
	f.commit(t, "a.json", "v2", 10)

	_, err := f.engine().Prune(nil, KeepLast(1), false)
	require.NoError(t, err)

	raw, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))
}

func TestPruneScopedToRequestedPaths(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "a1", 30)
	f.commit(t, "a.json", "a2", 10)
	b := f.commit(t, "b.json", "b1", 30)
	f.commit(t, "b.json", "b2", 10)

	res, err := f.engine().Prune([]string{a}, KeepLast(1), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, candidateIDs(res))
	assert.Len(t, f.cat.VersionsOf(b), 2)
}

func TestPruneKeepZeroDeletesAllHistory(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "v1", 30)
	f.commit(t, "a.json", "v2", 10)

	res, err := f.engine().Prune(nil, KeepLast(0), false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, candidateIDs(res))

	// All versions gone, so the artifact row is gone too.
	_, ok := f.cat.Artifact(a)
	assert.False(t, ok)
}

func TestPruneWarnsOnMissingSnapshotDir(t *testing.T) {
	f := newFixture(t)
	a := f.commit(t, "a.json", "v1", 30)
	f.commit(t, "a.json", "v2", 10)

	require.NoError(t, os.RemoveAll(f.snaps.VersionDir(a, "aid-a.json", "v1")))

	res, err := f.engine().Prune(nil, KeepLast(1), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, candidateIDs(res))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "snapshot directory missing")
	assert.Contains(t, res.Warnings[0], "v1")
}

func TestPolicyValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine().Prune(nil, Policy{N: -1}, true)
	assert.True(t, fault.IsPolicyError(err))

	_, err = f.engine().Prune(nil, Policy{Days: -7}, true)
	assert.True(t, fault.IsPolicyError(err))
}
