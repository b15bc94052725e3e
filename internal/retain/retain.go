// Package retain applies keep-policies over version history and deletes
// pruned snapshots.
//
// Pruning only ever touches historical version directories and their
// catalog rows. The live artifact file and its sidecar are never candidates.
package retain

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/snapshot"
)

// Policy selects which historical versions survive a prune.
//
// Semantics are a union: a version is kept when it satisfies ANY enabled
// condition. KeepAll keeps everything. N keeps the newest N per artifact.
// Days keeps versions younger than the threshold at prune time.
type Policy struct {
	KeepAll bool
	N       int
	Days    int
}

// KeepAllPolicy retains every version.
func KeepAllPolicy() Policy { return Policy{KeepAll: true} }

// KeepLast retains the newest n versions per artifact.
func KeepLast(n int) Policy { return Policy{N: n} }

// KeepUnion retains the newest n versions plus anything younger than days.
func KeepUnion(n, days int) Policy { return Policy{N: n, Days: days} }

func (p Policy) validate() error {
	if p.N < 0 {
		return fault.Wrap(fault.KindPolicyError, "retain.prune", "",
			fmt.Errorf("negative keep count %d", p.N))
	}
	if p.Days < 0 {
		return fault.Wrap(fault.KindPolicyError, "retain.prune", "",
			fmt.Errorf("negative keep window %d days", p.Days))
	}
	return nil
}

// Candidate is one version selected for pruning.
type Candidate struct {
	Path       string    `json:"path"`
	VersionID  string    `json:"version_id"`
	CreatedAt  time.Time `json:"created_at"`
	SizeBytes  int64     `json:"size_bytes"`
	VersionDir string    `json:"-"`
}

// Result reports a prune run.
type Result struct {
	DryRun         bool        `json:"dry_run"`
	Candidates     []Candidate `json:"candidates"`
	ReclaimedBytes int64       `json:"reclaimed_bytes"`
	Warnings       []string    `json:"warnings,omitempty"`
}

// Engine applies retention policies.
type Engine struct {
	cat   *catalog.Catalog
	snaps *snapshot.Store
	now   func() time.Time
}

// New creates a retention engine. The clock defaults to time.Now.
func New(cat *catalog.Catalog, snaps *snapshot.Store) *Engine {
	return &Engine{cat: cat, snaps: snaps, now: time.Now}
}

// WithClock overrides the prune-time clock. Tests pin it.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Prune applies the policy to the given artifact paths (all artifacts when
// paths is empty).
//
// With dryRun set, Prune only reports candidates and an estimated
// reclaimed byte count; estimation problems degrade to warnings since no
// data is at risk. Without dryRun, each candidate's version directory is
// deleted and its catalog row removed; the owning artifact's latest
// pointer and count are recomputed afterward.
func (e *Engine) Prune(paths []string, pol Policy, dryRun bool) (*Result, error) {
	if err := pol.validate(); err != nil {
		return nil, err
	}

	if len(paths) == 0 {
		for _, a := range e.cat.Artifacts() {
			paths = append(paths, a.Path)
		}
	}

	res := &Result{DryRun: dryRun}
	if pol.KeepAll {
		return res, nil
	}

	cutoff := e.now().Add(-time.Duration(pol.Days) * 24 * time.Hour)
	for _, path := range paths {
		versions := e.cat.VersionsOf(path) // newest first
		for i, v := range versions {
			if i < pol.N {
				continue
			}
			if pol.Days > 0 && v.CreatedAt.After(cutoff) {
				continue
			}
			dir := e.snaps.VersionDir(v.Path, v.ArtifactID, v.VersionID)
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				// Catalog row without its snapshot dir: nothing to delete
				// there, and the byte estimate from the row is unreliable.
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"version %s of %s: snapshot directory missing", v.VersionID, v.Path))
			}
			res.Candidates = append(res.Candidates, Candidate{
				Path:       v.Path,
				VersionID:  v.VersionID,
				CreatedAt:  v.CreatedAt,
				SizeBytes:  v.SizeBytes,
				VersionDir: dir,
			})
			res.ReclaimedBytes += v.SizeBytes
		}
	}

	if dryRun {
		return res, nil
	}

	// Delete snapshot directories first, then drop catalog rows for
	// whatever was actually removed. If a deletion fails midway the
	// catalog still reflects only the successful removals.
	var removed []string
	var removeErr error
	for _, c := range res.Candidates {
		if err := e.snaps.Remove(c.VersionDir); err != nil {
			removeErr = err
			break
		}
		removed = append(removed, c.VersionID)
	}
	if len(removed) > 0 {
		if err := e.cat.RemoveVersions(removed); err != nil {
			return res, err
		}
	}
	if removeErr != nil {
		return res, removeErr
	}

	slog.Info("pruned versions",
		"count", len(removed),
		"reclaimed_bytes", res.ReclaimedBytes)
	return res, nil
}
