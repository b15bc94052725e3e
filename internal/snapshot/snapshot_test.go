package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/sidecar"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	return New(root, filepath.Join(root, ".strata", "versions")), root
}

func writeArtifact(t *testing.T, root, name, body string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	require.NoError(t, sidecar.Write(path, sidecar.Record{
		ContentHash: "ch",
		FileHash:    "fh",
		VersionID:   "v1",
		Format:      "json",
		UpdatedAt:   time.Now().UTC(),
	}, catalog.SidecarJSON))
	return path
}

func TestCommitAndRead(t *testing.T) {
	s, root := tempStore(t)
	artifact := writeArtifact(t, root, "tables/users.json", `{"rows":1}`)

	dir, err := s.Commit(artifact, "aid", "v1", catalog.SidecarJSON, []Parent{{Path: "/up", VersionID: "p1"}})
	require.NoError(t, err)

	raw, err := s.Read(dir, artifact)
	require.NoError(t, err)
	assert.Equal(t, `{"rows":1}`, string(raw))

	// Sidecar copy travels with the snapshot.
	_, err = os.Stat(filepath.Join(dir, filepath.Base(artifact)+sidecar.SuffixJSON))
	assert.NoError(t, err)

	parents, err := s.Parents(dir)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, "p1", parents[0].VersionID)
}

func TestCommitWithoutParentsOmitsDescriptor(t *testing.T) {
	s, root := tempStore(t)
	artifact := writeArtifact(t, root, "t.json", "{}")

	dir, err := s.Commit(artifact, "aid", "v1", catalog.SidecarJSON, nil)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, ParentsFileName))
	assert.True(t, os.IsNotExist(err))

	parents, err := s.Parents(dir)
	require.NoError(t, err)
	assert.Nil(t, parents)
}

func TestVersionDirNestsUnderRelativePath(t *testing.T) {
	s, root := tempStore(t)
	dir := s.VersionDir(filepath.Join(root, "a", "b.json"), "aid", "v1")
	assert.Equal(t, filepath.Join(s.Dir(), "a", "b.json", "v1"), dir)
}

func TestVersionDirExternalFallback(t *testing.T) {
	s, _ := tempStore(t)
	outside := filepath.Join(os.TempDir(), "elsewhere", "x.json")
	dir := s.VersionDir(outside, "aid16hex", "v1")
	assert.True(t, strings.HasPrefix(dir, filepath.Join(s.Dir(), "external", "aid16hex")))
	assert.Equal(t, "v1", filepath.Base(dir))
}

func TestCommitLeavesNoTempOnFailure(t *testing.T) {
	s, root := tempStore(t)
	// Artifact path that does not exist: the copy step fails.
	missing := filepath.Join(root, "missing.json")

	_, err := s.Commit(missing, "aid", "v1", catalog.SidecarNone, nil)
	require.Error(t, err)
	assert.True(t, fault.IsAtomicWriteFailure(err))

	parent := filepath.Dir(s.VersionDir(missing, "aid", "v1"))
	entries, _ := os.ReadDir(parent)
	assert.Empty(t, entries)
}

func TestParentsOfResolvesThroughCatalogRow(t *testing.T) {
	s, root := tempStore(t)
	artifact := writeArtifact(t, root, "t.json", "{}")

	_, err := s.Commit(artifact, "aid", "v1", catalog.SidecarJSON, []Parent{{Path: "/up", VersionID: "p1"}})
	require.NoError(t, err)

	parents, err := s.ParentsOf(catalog.VersionRow{Path: artifact, ArtifactID: "aid", VersionID: "v1"})
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, "/up", parents[0].Path)
}

func TestRemove(t *testing.T) {
	s, root := tempStore(t)
	artifact := writeArtifact(t, root, "t.json", "{}")

	dir, err := s.Commit(artifact, "aid", "v1", catalog.SidecarJSON, nil)
	require.NoError(t, err)
	require.NoError(t, s.Remove(dir))

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	// Reading a removed version reports NotFound.
	_, err = s.Read(dir, artifact)
	assert.True(t, fault.IsNotFound(err))
}
