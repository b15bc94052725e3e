package plan

import (
	"fmt"
	"math"
	"sort"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/snapshot"
)

// Unbounded expands the plan until no new artifacts are discovered.
const Unbounded = math.MaxInt

// Mode selects the planning algorithm.
type Mode string

const (
	// ModePropagate seeds a will-change set with the targets and expands
	// breadth-first: anything whose immediate parents intersect the set
	// joins the plan and the set, so transitive effects propagate through
	// not-yet-rebuilt intermediates.
	ModePropagate Mode = "propagate"

	// ModeStrict includes only artifacts already stale against their
	// parents' present latest versions. No forward propagation.
	ModeStrict Mode = "strict"
)

// Entry is one row of a rebuild plan. Ephemeral: produced by the planner,
// consumed by the executor, never persisted.
type Entry struct {
	Level               int    `json:"level"`
	Path                string `json:"path"`
	Reason              string `json:"reason"`
	LatestVersionBefore string `json:"latest_version_before,omitempty"`
}

// Planner computes leveled rebuild plans.
type Planner struct {
	cat      *catalog.Catalog
	snaps    *snapshot.Store
	detector *Detector
}

// NewPlanner creates a planner over the catalog and snapshot store.
func NewPlanner(cat *catalog.Catalog, snaps *snapshot.Store) *Planner {
	return &Planner{cat: cat, snaps: snaps, detector: NewDetector(cat, snaps)}
}

// Plan computes the ordered set of artifacts to rebuild given changed or
// about-to-change targets.
//
// Levels are BFS distance from the nearest target (0 = a target itself,
// present only when includeTargets is set and the target is already
// stale). An artifact reachable via multiple paths keeps the lowest level
// at which it was first discovered and is never duplicated; that preserves
// topological ordering for execution.
func (p *Planner) Plan(targets []string, depth int, includeTargets bool, mode Mode) ([]Entry, error) {
	if depth < 0 {
		return nil, fault.Wrap(fault.KindPolicyError, "plan", "",
			fmt.Errorf("negative depth %d", depth))
	}
	switch mode {
	case ModePropagate, ModeStrict:
	default:
		return nil, fault.Wrap(fault.KindPolicyError, "plan", "",
			fmt.Errorf("unknown mode %q", mode))
	}

	children, err := p.childrenByParent()
	if err != nil {
		return nil, err
	}

	planned := make(map[string]bool)
	var entries []Entry

	if includeTargets {
		for _, t := range targets {
			if planned[t] {
				continue
			}
			stale, err := p.detector.IsStale(t)
			if err != nil {
				return nil, err
			}
			if stale {
				planned[t] = true
				entries = append(entries, Entry{
					Level:               0,
					Path:                t,
					Reason:              "target is stale",
					LatestVersionBefore: p.latestID(t),
				})
			}
		}
	}

	willChange := make(map[string]bool, len(targets))
	for _, t := range targets {
		willChange[t] = true
	}

	frontier := append([]string(nil), targets...)
	for level := 1; level <= depth && len(frontier) > 0; level++ {
		// Collect this level's candidates across the whole frontier before
		// mutating the will-change set, so siblings land on the same level.
		type candidate struct {
			path   string
			reason string
		}
		var found []candidate
		seen := make(map[string]bool)
		for _, parent := range frontier {
			for _, child := range children[parent] {
				if planned[child] || seen[child] {
					continue
				}
				seen[child] = true
				found = append(found, candidate{
					path:   child,
					reason: fmt.Sprintf("parent %s will change", parent),
				})
			}
		}

		frontier = frontier[:0]
		for _, c := range found {
			include := true
			reason := c.reason
			if mode == ModeStrict {
				status, drifts, err := p.detector.Check(c.path)
				if err != nil {
					return nil, err
				}
				include = status != StatusCurrent
				if include && len(drifts) > 0 {
					reason = fmt.Sprintf("stale: parent %s moved %s -> %s",
						drifts[0].ParentPath, drifts[0].Pinned, drifts[0].Current)
				}
			}
			if include {
				planned[c.path] = true
				entries = append(entries, Entry{
					Level:               level,
					Path:                c.path,
					Reason:              reason,
					LatestVersionBefore: p.latestID(c.path),
				})
			}
			// Traversal continues through every discovered node in both
			// modes; strict filtering decides inclusion, not reachability.
			willChange[c.path] = true
			frontier = append(frontier, c.path)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Level != entries[j].Level {
			return entries[i].Level < entries[j].Level
		}
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// childrenByParent builds the reverse adjacency of the current dependency
// graph: for every artifact, the parents recorded on its latest version.
func (p *Planner) childrenByParent() (map[string][]string, error) {
	children := make(map[string][]string)
	for _, a := range p.cat.Artifacts() {
		latest, ok := p.cat.Latest(a.Path)
		if !ok {
			continue
		}
		parents, err := p.snaps.ParentsOf(latest)
		if err != nil {
			return nil, fmt.Errorf("plan adjacency %s: %w", a.Path, err)
		}
		for _, parent := range parents {
			children[parent.Path] = append(children[parent.Path], a.Path)
		}
	}
	for k := range children {
		sort.Strings(children[k])
	}
	return children, nil
}

func (p *Planner) latestID(path string) string {
	if v, ok := p.cat.Latest(path); ok {
		return v.VersionID
	}
	return ""
}
