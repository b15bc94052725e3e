// Package lineage answers ancestor and descendant queries over the
// dependency graph formed by parent descriptors across version snapshots.
//
// Queries are read-only graph traversals. The authoritative edge source is
// the union of parents documents on disk; an optional SQLite cache (see
// Cache) accelerates repeated queries and is rebuilt from the snapshots,
// never trusted when stale.
package lineage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/snapshot"
)

// Unbounded expands traversal until no new nodes are discovered.
const Unbounded = math.MaxInt

// Edge is one recorded dependency: a child version pinning a parent
// version.
type Edge struct {
	ChildPath       string
	ChildVersionID  string
	ParentPath      string
	ParentVersionID string
}

// Row is one traversal result: an edge plus its BFS distance from the
// query root (1 = immediate relation).
type Row struct {
	Edge
	Depth int
}

// Index traverses the dependency graph.
type Index struct {
	cat   *catalog.Catalog
	snaps *snapshot.Store
	cache *Cache // nil when no cache is attached
}

// New creates an index over the given catalog and snapshot store.
func New(cat *catalog.Catalog, snaps *snapshot.Store) *Index {
	return &Index{cat: cat, snaps: snaps}
}

// WithCache attaches an edge cache. The cache is advisory: it is consulted
// only when its stamp matches the current catalog.
func (ix *Index) WithCache(c *Cache) *Index {
	ix.cache = c
	return ix
}

// Stamp fingerprints the catalog's version set. The cache is valid only
// while its stored stamp matches.
func (ix *Index) Stamp() string {
	h := sha256.New()
	for _, v := range ix.cat.Versions() {
		h.Write([]byte(v.VersionID))
		h.Write([]byte{0x00})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Edges returns every recorded dependency edge across all committed
// versions, from the cache when fresh, otherwise by scanning parents
// documents.
func (ix *Index) Edges() ([]Edge, error) {
	if ix.cache != nil {
		if edges, ok, err := ix.cache.Edges(ix.Stamp()); err == nil && ok {
			return edges, nil
		}
	}
	return ix.scanEdges()
}

func (ix *Index) scanEdges() ([]Edge, error) {
	var edges []Edge
	for _, v := range ix.cat.Versions() {
		parents, err := ix.snaps.ParentsOf(v)
		if err != nil {
			return nil, fmt.Errorf("lineage scan %s: %w", v.Path, err)
		}
		for _, p := range parents {
			edges = append(edges, Edge{
				ChildPath:       v.Path,
				ChildVersionID:  v.VersionID,
				ParentPath:      p.Path,
				ParentVersionID: p.VersionID,
			})
		}
	}
	return edges, nil
}

// RefreshCache rebuilds the attached cache from the snapshots. No-op when
// no cache is attached.
func (ix *Index) RefreshCache() error {
	if ix.cache == nil {
		return nil
	}
	edges, err := ix.scanEdges()
	if err != nil {
		return err
	}
	return ix.cache.Rebuild(edges, ix.Stamp())
}

// ChildrenOf returns the artifacts whose recorded parents reference path
// (and, when versionID is non-empty, that exact version), expanded
// breadth-first through children-of-children up to depth levels.
//
// A visited set prevents infinite loops. Any cycle among the traversed
// edges, whether or not it passes through the query root, is surfaced as
// CycleDetected alongside the rows gathered so far.
func (ix *Index) ChildrenOf(path, versionID string, depth int) ([]Row, error) {
	if depth < 0 {
		return nil, fault.Wrap(fault.KindPolicyError, "lineage.children", path,
			fmt.Errorf("negative depth %d", depth))
	}
	edges, err := ix.Edges()
	if err != nil {
		return nil, err
	}

	// Reverse adjacency: parent path -> edges into it.
	byParent := make(map[string][]Edge)
	for _, e := range edges {
		byParent[e.ParentPath] = append(byParent[e.ParentPath], e)
	}

	var rows []Row
	visited := map[string]bool{path: true}
	frontier := []string{path}
	traversed := make(map[[2]string]bool)

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var next []string
		for _, p := range frontier {
			for _, e := range byParent[p] {
				// Version filter applies only to direct children of the root.
				if level == 1 && versionID != "" && e.ParentVersionID != versionID {
					continue
				}
				rows = append(rows, Row{Edge: e, Depth: level})
				traversed[[2]string{e.ParentPath, e.ChildPath}] = true
				if !visited[e.ChildPath] {
					visited[e.ChildPath] = true
					next = append(next, e.ChildPath)
				}
			}
		}
		frontier = next
	}
	if hasCycle(traversed) {
		return rows, fault.New(fault.KindCycleDetected, "lineage.children", path)
	}
	return rows, nil
}

// LineageOf walks upward through the recorded parents of successive latest
// versions, up to depth levels. Cycles among the traversed edges surface
// as CycleDetected, same as ChildrenOf.
func (ix *Index) LineageOf(path string, depth int) ([]Row, error) {
	if depth < 0 {
		return nil, fault.Wrap(fault.KindPolicyError, "lineage.lineage", path,
			fmt.Errorf("negative depth %d", depth))
	}

	var rows []Row
	visited := map[string]bool{path: true}
	frontier := []string{path}
	traversed := make(map[[2]string]bool)

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var next []string
		for _, p := range frontier {
			latest, ok := ix.cat.Latest(p)
			if !ok {
				continue
			}
			parents, err := ix.snaps.ParentsOf(latest)
			if err != nil {
				return rows, fmt.Errorf("lineage of %s: %w", p, err)
			}
			for _, parent := range parents {
				rows = append(rows, Row{
					Edge: Edge{
						ChildPath:       p,
						ChildVersionID:  latest.VersionID,
						ParentPath:      parent.Path,
						ParentVersionID: parent.VersionID,
					},
					Depth: level,
				})
				traversed[[2]string{p, parent.Path}] = true
				if !visited[parent.Path] {
					visited[parent.Path] = true
					next = append(next, parent.Path)
				}
			}
		}
		frontier = next
	}
	if hasCycle(traversed) {
		return rows, fault.New(fault.KindCycleDetected, "lineage.lineage", path)
	}
	return rows, nil
}

// hasCycle reports whether the traversed directed edges contain a cycle.
// Kahn's algorithm over the traversed subgraph: peel zero-in-degree nodes;
// anything left sits on a cycle. A diamond (two paths converging on one
// node) peels completely and is not flagged.
func hasCycle(pairs map[[2]string]bool) bool {
	indeg := make(map[string]int)
	out := make(map[string][]string)
	for p := range pairs {
		from, to := p[0], p[1]
		out[from] = append(out[from], to)
		indeg[to]++
		if _, ok := indeg[from]; !ok {
			indeg[from] = 0
		}
	}

	queue := make([]string, 0, len(indeg))
	for n, d := range indeg {
		if d == 0 {
			queue = append(queue, n)
		}
	}
	peeled := 0
	for len(queue) > 0 {
		n := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		peeled++
		for _, m := range out[n] {
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	return peeled != len(indeg)
}
