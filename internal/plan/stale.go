// Package plan decides what is out of date and what must be rebuilt.
//
// The staleness detector compares the parent versions pinned at save time
// against each parent's current latest version. The planner expands a set
// of changed targets into a leveled, dependency-ordered rebuild plan.
package plan

import (
	"fmt"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/snapshot"
)

// Status is the outcome of a staleness check.
type Status string

const (
	// StatusCurrent means every pinned parent matches its current latest.
	StatusCurrent Status = "current"
	// StatusStale means at least one pinned parent has moved on.
	StatusStale Status = "stale"
	// StatusUnknown means the artifact or a reference could not be
	// resolved. Unknown needs attention and is reported distinctly from
	// confirmed-current, but planners treat it like stale.
	StatusUnknown Status = "unknown"
)

// Drift records one parent whose latest version no longer matches the pin.
type Drift struct {
	ParentPath string
	Pinned     string
	Current    string
}

// Detector answers staleness queries against the catalog and snapshots.
type Detector struct {
	cat   *catalog.Catalog
	snaps *snapshot.Store
}

// NewDetector creates a staleness detector.
func NewDetector(cat *catalog.Catalog, snaps *snapshot.Store) *Detector {
	return &Detector{cat: cat, snaps: snaps}
}

// Check reports the staleness status of path together with the drifted
// parents. An artifact with no recorded parents is never stale. An
// artifact whose latest version cannot be resolved is StatusUnknown.
func (d *Detector) Check(path string) (Status, []Drift, error) {
	latest, ok := d.cat.Latest(path)
	if !ok {
		return StatusUnknown, nil, nil
	}

	parents, err := d.snaps.ParentsOf(latest)
	if err != nil {
		return StatusUnknown, nil, fmt.Errorf("staleness of %s: %w", path, err)
	}
	if len(parents) == 0 {
		return StatusCurrent, nil, nil
	}

	var drifts []Drift
	status := StatusCurrent
	for _, p := range parents {
		current, ok := d.cat.Latest(p.Path)
		if !ok {
			// Pinned parent has no versions left (pruned away entirely).
			drifts = append(drifts, Drift{ParentPath: p.Path, Pinned: p.VersionID})
			status = StatusStale
			continue
		}
		if current.VersionID != p.VersionID {
			drifts = append(drifts, Drift{
				ParentPath: p.Path,
				Pinned:     p.VersionID,
				Current:    current.VersionID,
			})
			status = StatusStale
		}
	}
	return status, drifts, nil
}

// IsStale reports whether path needs rebuilding. Unknown counts as stale:
// nothing to compare against is "needs attention".
func (d *Detector) IsStale(path string) (bool, error) {
	status, _, err := d.Check(path)
	if err != nil {
		return true, err
	}
	return status != StatusCurrent, nil
}
