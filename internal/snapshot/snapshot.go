// Package snapshot manages per-version directories: a copy of the artifact
// bytes, its sidecar encodings, and the parents descriptor document.
//
// A commit is staged in a temporary sibling directory and renamed into
// place as the final step, so no reader ever observes a version directory
// containing the artifact but missing its parents document, or vice versa.
// Committed directories are immutable; only retention removes them.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/fsutil"
	"github.com/strataform/strata/internal/sidecar"
)

// ParentsFileName is the descriptor document inside each version dir.
const ParentsFileName = "parents.json"

// externalDirName groups version dirs of artifacts outside the tracked
// root. Such artifacts key their version tree by artifact_id (the 16-hex
// path hash), which is collision-free under the hasher's entropy
// assumption and stable across sessions.
const externalDirName = "external"

// Parent pins an exact upstream dependency at save time.
type Parent struct {
	Path      string `json:"path"`
	VersionID string `json:"version_id"`
}

// Store lays out and commits version snapshots under a state directory.
type Store struct {
	root string // tracked root, absolute
	dir  string // <state>/versions
}

// New creates a snapshot store for the given tracked root and versions
// directory.
func New(root, versionsDir string) *Store {
	return &Store{root: root, dir: versionsDir}
}

// Dir returns the versions directory.
func (s *Store) Dir() string { return s.dir }

// VersionDir resolves the directory for one version. Artifacts inside the
// tracked root nest under their own relative path to avoid cross-artifact
// collisions; artifacts outside it fall back to external/<artifact_id>.
func (s *Store) VersionDir(artifactPath, artifactID, versionID string) string {
	rel, err := filepath.Rel(s.root, artifactPath)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return filepath.Join(s.dir, externalDirName, artifactID, versionID)
	}
	return filepath.Join(s.dir, rel, versionID)
}

// Commit copies the live artifact and its sidecar encodings into a new
// version directory and writes the parents descriptor list. The directory
// appears atomically or not at all.
func (s *Store) Commit(artifactPath, artifactID, versionID string, format catalog.SidecarFormat, parents []Parent) (string, error) {
	final := s.VersionDir(artifactPath, artifactID, versionID)
	tmp := fsutil.TempSibling(final)

	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", fault.Wrap(fault.KindAtomicWriteFailure, "snapshot.commit", artifactPath, err)
	}

	base := filepath.Base(artifactPath)
	if err := fsutil.CopyFile(artifactPath, filepath.Join(tmp, base)); err != nil {
		os.RemoveAll(tmp)
		return "", fault.Wrap(fault.KindAtomicWriteFailure, "snapshot.commit", artifactPath, err)
	}
	for _, sc := range sidecar.Paths(artifactPath, format) {
		if err := fsutil.CopyFile(sc, filepath.Join(tmp, filepath.Base(sc))); err != nil {
			os.RemoveAll(tmp)
			return "", fault.Wrap(fault.KindAtomicWriteFailure, "snapshot.commit", artifactPath, err)
		}
	}

	if len(parents) > 0 {
		raw, err := json.MarshalIndent(parents, "", "  ")
		if err != nil {
			os.RemoveAll(tmp)
			return "", fault.Wrap(fault.KindAtomicWriteFailure, "snapshot.commit", artifactPath, err)
		}
		if err := os.WriteFile(filepath.Join(tmp, ParentsFileName), raw, 0o644); err != nil {
			os.RemoveAll(tmp)
			return "", fault.Wrap(fault.KindAtomicWriteFailure, "snapshot.commit", artifactPath, err)
		}
	}

	if err := fsutil.RenameIntoPlace(tmp, final); err != nil {
		return "", err
	}
	return final, nil
}

// Read returns the artifact bytes stored in a version directory.
func (s *Store) Read(versionDir, artifactPath string) ([]byte, error) {
	p := filepath.Join(versionDir, filepath.Base(artifactPath))
	raw, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Wrap(fault.KindNotFound, "snapshot.read", artifactPath, err)
		}
		return nil, fault.Wrap(fault.KindCorruptState, "snapshot.read", artifactPath, err)
	}
	return raw, nil
}

// Parents returns the parent descriptors committed with a version. A
// missing parents document yields an empty list, not an error: not every
// version declares ancestry.
func (s *Store) Parents(versionDir string) ([]Parent, error) {
	raw, err := os.ReadFile(filepath.Join(versionDir, ParentsFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindCorruptState, "snapshot.parents", versionDir, err)
	}
	var parents []Parent
	if err := json.Unmarshal(raw, &parents); err != nil {
		return nil, fault.Wrap(fault.KindCorruptState, "snapshot.parents", versionDir, err)
	}
	return parents, nil
}

// ParentsOf resolves the version directory for a catalog row and reads its
// parents.
func (s *Store) ParentsOf(v catalog.VersionRow) ([]Parent, error) {
	return s.Parents(s.VersionDir(v.Path, v.ArtifactID, v.VersionID))
}

// Remove deletes a committed version directory. Used only by retention.
func (s *Store) Remove(versionDir string) error {
	if err := os.RemoveAll(versionDir); err != nil {
		return fault.Wrap(fault.KindAtomicWriteFailure, "snapshot.remove", versionDir, err)
	}
	return nil
}
