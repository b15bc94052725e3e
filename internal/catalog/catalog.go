// Package catalog maintains the authoritative index of artifacts and
// committed versions.
//
// The catalog is two logical tables — artifacts (one row per logical
// artifact) and versions (one row per committed snapshot) — persisted as a
// single JSON document. Every mutation re-serializes the whole document and
// atomically replaces the file, so a reader racing a writer sees either the
// old or the fully committed new state, never a partial write. Concurrent
// writers across processes are out of scope: one logical session mutates a
// store at a time.
package catalog

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/fsutil"
)

// FileName is the catalog's location under the store's state directory.
const FileName = "catalog.json"

const schemaVersion = 1

// SidecarFormat records which sidecar encodings accompany a version.
type SidecarFormat string

const (
	SidecarNone SidecarFormat = "none"
	SidecarJSON SidecarFormat = "json"
	SidecarYAML SidecarFormat = "yaml"
	SidecarBoth SidecarFormat = "both"
)

// ArtifactRow is one row of the artifacts table.
type ArtifactRow struct {
	ArtifactID      string `json:"artifact_id"`
	Path            string `json:"path"`
	LatestVersionID string `json:"latest_version_id"`
	NVersions       int    `json:"n_versions"`
}

// VersionRow is one row of the versions table. Rows are immutable once
// committed; only retention removes them.
type VersionRow struct {
	VersionID     string        `json:"version_id"`
	ArtifactID    string        `json:"artifact_id"`
	Path          string        `json:"path"`
	ContentHash   string        `json:"content_hash"`
	CodeHash      string        `json:"code_hash,omitempty"`
	SizeBytes     int64         `json:"size_bytes"`
	CreatedAt     time.Time     `json:"created_at"`
	SidecarFormat SidecarFormat `json:"sidecar_format"`
}

type document struct {
	SchemaVersion int           `json:"schema_version"`
	Artifacts     []ArtifactRow `json:"artifacts"`
	Versions      []VersionRow  `json:"versions"`
}

// Catalog is the in-memory view of the catalog file plus its persistence.
type Catalog struct {
	mu        sync.Mutex
	path      string
	artifacts map[string]ArtifactRow // keyed by artifact_id
	versions  map[string]VersionRow  // keyed by version_id
}

// Load reads the catalog file at path. A missing file is a fresh store and
// yields an empty catalog; an unreadable or malformed file is surfaced as
// CorruptState and never silently treated as empty — Repair is the only
// way to reset it, and that is a caller decision.
func Load(path string) (*Catalog, error) {
	c := &Catalog{
		path:      path,
		artifacts: make(map[string]ArtifactRow),
		versions:  make(map[string]VersionRow),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindCorruptState, "catalog.load", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fault.Wrap(fault.KindCorruptState, "catalog.load", path, err)
	}
	for _, a := range doc.Artifacts {
		c.artifacts[a.ArtifactID] = a
	}
	for _, v := range doc.Versions {
		c.versions[v.VersionID] = v
	}
	return c, nil
}

// Repair resets the catalog to empty and persists it. Destroys history;
// callers invoke it only on explicit user request after a corrupt load.
func Repair(path string) (*Catalog, error) {
	c := &Catalog{
		path:      path,
		artifacts: make(map[string]ArtifactRow),
		versions:  make(map[string]VersionRow),
	}
	if err := c.save(); err != nil {
		return nil, err
	}
	return c, nil
}

// UpsertVersion records a newly committed version and updates the owning
// artifact row (latest pointer, version count), then persists atomically.
func (c *Catalog) UpsertVersion(v VersionRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v.CreatedAt = v.CreatedAt.UTC()
	c.versions[v.VersionID] = v

	n := 0
	for _, row := range c.versions {
		if row.ArtifactID == v.ArtifactID {
			n++
		}
	}
	c.artifacts[v.ArtifactID] = ArtifactRow{
		ArtifactID:      v.ArtifactID,
		Path:            v.Path,
		LatestVersionID: v.VersionID,
		NVersions:       n,
	}
	return c.save()
}

// RemoveVersions deletes the given version rows and recomputes each
// affected artifact's latest pointer and count. Artifacts whose last
// version is removed disappear from the catalog entirely. Persists
// atomically.
func (c *Catalog) RemoveVersions(ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	touched := make(map[string]bool)
	for _, id := range ids {
		if v, ok := c.versions[id]; ok {
			touched[v.ArtifactID] = true
			delete(c.versions, id)
		}
	}

	for artifactID := range touched {
		var remaining []VersionRow
		for _, v := range c.versions {
			if v.ArtifactID == artifactID {
				remaining = append(remaining, v)
			}
		}
		if len(remaining) == 0 {
			delete(c.artifacts, artifactID)
			continue
		}
		sort.Slice(remaining, func(i, j int) bool {
			return remaining[i].CreatedAt.After(remaining[j].CreatedAt)
		})
		row := c.artifacts[artifactID]
		row.LatestVersionID = remaining[0].VersionID
		row.NVersions = len(remaining)
		c.artifacts[artifactID] = row
	}
	return c.save()
}

// Latest returns the latest version row for path, or ok=false when the
// artifact has no versions.
func (c *Catalog) Latest(path string) (VersionRow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, a := range c.artifacts {
		if a.Path == path {
			v, ok := c.versions[a.LatestVersionID]
			return v, ok
		}
	}
	return VersionRow{}, false
}

// VersionsOf returns all version rows for path, newest first.
func (c *Catalog) VersionsOf(path string) []VersionRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versionsOfLocked(path)
}

func (c *Catalog) versionsOfLocked(path string) []VersionRow {
	var rows []VersionRow
	for _, v := range c.versions {
		if v.Path == path {
			rows = append(rows, v)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].VersionID < rows[j].VersionID
	})
	return rows
}

// Version returns the row for a version id.
func (c *Catalog) Version(id string) (VersionRow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.versions[id]
	return v, ok
}

// Artifact returns the artifact row for path.
func (c *Catalog) Artifact(path string) (ArtifactRow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.artifacts {
		if a.Path == path {
			return a, true
		}
	}
	return ArtifactRow{}, false
}

// Versions returns all version rows sorted by version id.
func (c *Catalog) Versions() []VersionRow {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows := make([]VersionRow, 0, len(c.versions))
	for _, v := range c.versions {
		rows = append(rows, v)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].VersionID < rows[j].VersionID })
	return rows
}

// Artifacts returns all artifact rows sorted by path.
func (c *Catalog) Artifacts() []ArtifactRow {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows := make([]ArtifactRow, 0, len(c.artifacts))
	for _, a := range c.artifacts {
		rows = append(rows, a)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
	return rows
}

// save serializes the full catalog deterministically (rows sorted by id)
// and atomically replaces the file. Caller holds the lock.
func (c *Catalog) save() error {
	doc := document{SchemaVersion: schemaVersion}
	for _, a := range c.artifacts {
		doc.Artifacts = append(doc.Artifacts, a)
	}
	for _, v := range c.versions {
		doc.Versions = append(doc.Versions, v)
	}
	sort.Slice(doc.Artifacts, func(i, j int) bool {
		return doc.Artifacts[i].ArtifactID < doc.Artifacts[j].ArtifactID
	})
	sort.Slice(doc.Versions, func(i, j int) bool {
		return doc.Versions[i].VersionID < doc.Versions[j].VersionID
	})

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fault.Wrap(fault.KindCorruptState, "catalog.save", c.path, err)
	}
	return fsutil.WriteFileAtomic(c.path, raw, 0o644)
}
