package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/fsutil"
	"github.com/strataform/strata/internal/identity"
	"github.com/strataform/strata/internal/rebuild"
	"github.com/strataform/strata/internal/sidecar"
	"github.com/strataform/strata/internal/snapshot"
)

// SaveOptions controls one save.
type SaveOptions struct {
	// Format names the codec; empty means the session default.
	Format string

	// Parents are upstream artifact paths pinned at their current latest
	// version at commit time.
	Parents []string

	// PinnedParents are explicit descriptors used verbatim. The rebuild
	// executor uses these after resolving pins itself.
	PinnedParents []snapshot.Parent

	// Code is the producing code; hashed into the version identity.
	Code []byte

	// CodeLabel is a human-readable name for Code, stored as metadata.
	CodeLabel string

	// Metadata is arbitrary user metadata for the sidecar.
	Metadata map[string]any

	// PrimaryKey names the primary-key column set, if any.
	PrimaryKey []string

	// Force writes even when content, code, and file are unchanged.
	Force bool
}

// SaveResult reports one save.
type SaveResult struct {
	Path        string
	VersionID   string
	ContentHash string
	Skipped     bool
}

// Save runs the save pipeline of one artifact:
//
//	hash -> resolve parents -> skip check -> write artifact -> write
//	sidecar -> commit snapshot -> update catalog
//
// Everything that can fail without touching disk (canonicalization, codec
// lookup, parent resolution) runs before the first write, so a rejected
// save leaves prior state fully intact.
//
// Under the session's skip-unchanged policy, saving identical content,
// code, and parent pins twice produces exactly one version and leaves the
// latest pointer untouched. A change in any pin always commits a new
// version even when the bytes are identical.
func (s *Store) Save(path string, object any, opts SaveOptions) (*SaveResult, error) {
	norm, err := s.cfg.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", path, err)
	}

	artifactID := identity.ArtifactID(norm)
	canonical, err := s.canon.Canonicalize(object)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", norm, err)
	}
	contentHash := identity.ContentHash(canonical)
	codeHash := identity.CodeHash(opts.Code)

	format := opts.Format
	if format == "" {
		format = s.cfg.DefaultFormat
	}
	c, err := s.codecs.Get(format)
	if err != nil {
		return nil, err
	}

	parents, err := s.resolveParents(opts)
	if err != nil {
		return nil, err
	}

	if s.cfg.SkipUnchanged && !opts.Force {
		if skipped, ok := s.skipUnchanged(norm, contentHash, codeHash, parents); ok {
			slog.Debug("save skipped, unchanged", "path", norm, "version", skipped)
			return &SaveResult{Path: norm, VersionID: skipped, ContentHash: contentHash, Skipped: true}, nil
		}
	}

	encoded, err := c.Encode(object)
	if err != nil {
		return nil, fmt.Errorf("save %s: encode %s: %w", norm, format, err)
	}
	if err := fsutil.WriteFileAtomic(norm, encoded, 0o644); err != nil {
		return nil, err
	}

	createdAt := s.clock().UTC()
	versionID := identity.VersionID(artifactID, contentHash, codeHash, createdAt)

	meta := opts.Metadata
	if opts.CodeLabel != "" {
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["code_label"] = opts.CodeLabel
	}
	rec := sidecar.Record{
		ContentHash: contentHash,
		CodeHash:    codeHash,
		FileHash:    identity.FileHash(encoded),
		VersionID:   versionID,
		Format:      format,
		PrimaryKey:  opts.PrimaryKey,
		Metadata:    meta,
		UpdatedAt:   createdAt,
	}
	if err := sidecar.Write(norm, rec, s.cfg.SidecarFormat); err != nil {
		return nil, err
	}

	if _, err := s.snaps.Commit(norm, artifactID, versionID, s.cfg.SidecarFormat, parents); err != nil {
		return nil, err
	}

	row := catalog.VersionRow{
		VersionID:     versionID,
		ArtifactID:    artifactID,
		Path:          norm,
		ContentHash:   contentHash,
		CodeHash:      codeHash,
		SizeBytes:     int64(len(encoded)),
		CreatedAt:     createdAt,
		SidecarFormat: s.cfg.SidecarFormat,
	}
	if err := s.cat.UpsertVersion(row); err != nil {
		return nil, err
	}

	slog.Info("artifact saved",
		"path", norm,
		"version", versionID,
		"size_bytes", row.SizeBytes,
		"parents", len(parents))
	return &SaveResult{Path: norm, VersionID: versionID, ContentHash: contentHash}, nil
}

// skipUnchanged reports whether the save can be elided: the sidecar's
// content and code hashes match, the live file is unmodified on disk, the
// catalog still has a latest version to point at, and the requested parent
// pins match the pins recorded on that latest version. A rebuild that
// reproduces identical bytes against moved parents must still commit, or
// the re-pin is lost and the artifact stays stale.
func (s *Store) skipUnchanged(norm, contentHash, codeHash string, parents []snapshot.Parent) (string, bool) {
	rec, format, err := sidecar.Read(norm)
	if err != nil || format == catalog.SidecarNone {
		return "", false
	}
	if rec.ContentHash != contentHash || rec.CodeHash != codeHash {
		return "", false
	}
	raw, err := os.ReadFile(norm)
	if err != nil || identity.FileHash(raw) != rec.FileHash {
		// Externally modified or missing live file: must rewrite.
		return "", false
	}
	latest, ok := s.cat.Latest(norm)
	if !ok {
		return "", false
	}
	recorded, err := s.snaps.ParentsOf(latest)
	if err != nil || !sameParents(recorded, parents) {
		return "", false
	}
	return latest.VersionID, true
}

// sameParents compares two pin sets irrespective of order.
func sameParents(a, b []snapshot.Parent) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[snapshot.Parent]int, len(a))
	for _, p := range a {
		counts[p]++
	}
	for _, p := range b {
		counts[p]--
		if counts[p] < 0 {
			return false
		}
	}
	return true
}

// resolveParents pins each named parent at its current latest version and
// appends explicit pins. Every pin must reference a version that exists in
// the catalog at commit time.
func (s *Store) resolveParents(opts SaveOptions) ([]snapshot.Parent, error) {
	parents := make([]snapshot.Parent, 0, len(opts.Parents)+len(opts.PinnedParents))
	for _, p := range opts.Parents {
		norm, err := s.cfg.Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("resolve parent %s: %w", p, err)
		}
		latest, ok := s.cat.Latest(norm)
		if !ok {
			return nil, fault.New(fault.KindNotFound, "store.save.parent", norm)
		}
		parents = append(parents, snapshot.Parent{Path: norm, VersionID: latest.VersionID})
	}
	for _, p := range opts.PinnedParents {
		if _, ok := s.cat.Version(p.VersionID); !ok {
			return nil, fault.Wrap(fault.KindNotFound, "store.save.parent", p.Path,
				fmt.Errorf("pinned version %s not in catalog", p.VersionID))
		}
		parents = append(parents, p)
	}
	return parents, nil
}

// SaveBuilt implements rebuild.Saver: it routes a builder's bundle through
// the save pipeline with the executor's re-pinned parents.
func (s *Store) SaveBuilt(path string, b *rebuild.Bundle, parents []snapshot.Parent) (string, error) {
	res, err := s.Save(path, b.Object, SaveOptions{
		Format:        b.Format,
		PinnedParents: parents,
		Code:          b.Code,
		CodeLabel:     b.CodeLabel,
		Metadata:      b.Metadata,
	})
	if err != nil {
		return "", err
	}
	return res.VersionID, nil
}

// Load reads an artifact version back through its codec. The latest
// version reads the live file; historical versions read the snapshot copy.
func (s *Store) Load(path string, spec catalog.VersionSpec) (any, error) {
	norm, err := s.cfg.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	v, err := s.cat.Resolve(norm, spec)
	if err != nil {
		return nil, err
	}

	var raw []byte
	latest, _ := s.cat.Latest(norm)
	if latest.VersionID == v.VersionID {
		raw, err = os.ReadFile(norm)
		if err != nil {
			return nil, fault.Wrap(fault.KindNotFound, "store.load", norm, err)
		}
	} else {
		dir := s.snaps.VersionDir(norm, v.ArtifactID, v.VersionID)
		raw, err = s.snaps.Read(dir, norm)
		if err != nil {
			return nil, err
		}
	}

	format := s.formatOf(norm, v)
	c, err := s.codecs.Get(format)
	if err != nil {
		return nil, err
	}
	obj, err := c.Decode(raw)
	if err != nil {
		return nil, fault.Wrap(fault.KindCorruptState, "store.load", norm, err)
	}
	return obj, nil
}

// formatOf recovers the codec name for a version from its sidecar copy,
// falling back to the live sidecar and then the session default.
func (s *Store) formatOf(norm string, v catalog.VersionRow) string {
	dir := s.snaps.VersionDir(norm, v.ArtifactID, v.VersionID)
	snapSidecar := filepath.Join(dir, filepath.Base(sidecar.JSONPath(norm)))
	if raw, err := os.ReadFile(snapSidecar); err == nil {
		var rec sidecar.Record
		if err := json.Unmarshal(raw, &rec); err == nil && rec.Format != "" {
			return rec.Format
		}
	}
	if rec, format, err := sidecar.Read(norm); err == nil && format != catalog.SidecarNone && rec.Format != "" {
		return rec.Format
	}
	return s.cfg.DefaultFormat
}
