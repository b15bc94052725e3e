// Package store is the session object tying the catalog, snapshot store,
// lineage index, planner, executor, and retention engine together behind
// one save pipeline.
//
// A Store is constructed once per logical session from an explicit Config.
// All mutation flows through the atomic-commit discipline of the
// underlying packages: a save either fully succeeds (artifact, sidecar,
// snapshot, and catalog row all consistent) or leaves prior state
// untouched.
package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/codec"
	"github.com/strataform/strata/internal/identity"
	"github.com/strataform/strata/internal/lineage"
	"github.com/strataform/strata/internal/plan"
	"github.com/strataform/strata/internal/rebuild"
	"github.com/strataform/strata/internal/retain"
	"github.com/strataform/strata/internal/snapshot"
)

// CacheFileName is the lineage cache's location under the state directory.
const CacheFileName = "lineage.db"

// Store is a single-session handle on one artifact store.
type Store struct {
	cfg    Config
	cat    *catalog.Catalog
	snaps  *snapshot.Store
	codecs *codec.Registry
	canon  identity.Canonicalizer
	index  *lineage.Index
	cache  *lineage.Cache
	clock  func() time.Time
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithCodecs replaces the codec registry (defaults to codec.Default).
func WithCodecs(r *codec.Registry) Option {
	return func(s *Store) { s.codecs = r }
}

// WithCanonicalizer replaces the canonicalization step applied before
// content hashing.
func WithCanonicalizer(c identity.Canonicalizer) Option {
	return func(s *Store) { s.canon = c }
}

// WithClock pins version timestamps. Tests use a deterministic clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = now }
}

// WithLineageCache opens the SQLite edge cache under the state directory
// and attaches it to the lineage index.
func WithLineageCache() Option {
	return func(s *Store) {
		cache, err := lineage.OpenCache(filepath.Join(s.cfg.StateDir, CacheFileName))
		if err != nil {
			// The cache is advisory; queries fall back to scanning.
			return
		}
		s.cache = cache
	}
}

// Open loads the catalog and prepares a session. A corrupt catalog fails
// here; Repair is the explicit way past that.
func Open(cfg Config, opts ...Option) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, err
	}

	cat, err := catalog.Load(filepath.Join(cfg.StateDir, catalog.FileName))
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:    cfg,
		cat:    cat,
		snaps:  snapshot.New(cfg.Root, filepath.Join(cfg.StateDir, "versions")),
		codecs: codec.Default(),
		canon:  identity.CanonicalJSON{},
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.index = lineage.New(cat, s.snaps)
	if s.cache != nil {
		s.index.WithCache(s.cache)
	}
	return s, nil
}

// Repair resets a corrupt catalog to empty and returns a fresh session.
// Version snapshots on disk are left in place. Never called automatically.
func Repair(cfg Config, opts ...Option) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, err
	}
	if _, err := catalog.Repair(filepath.Join(cfg.StateDir, catalog.FileName)); err != nil {
		return nil, err
	}
	return Open(cfg, opts...)
}

// Close releases the lineage cache, if open.
func (s *Store) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

// Catalog exposes the session's catalog for read-side collaborators.
func (s *Store) Catalog() *catalog.Catalog { return s.cat }

// Snapshots exposes the session's snapshot store.
func (s *Store) Snapshots() *snapshot.Store { return s.snaps }

// Config returns the session configuration.
func (s *Store) Config() Config { return s.cfg }

// IsStale reports whether path's pinned parents have moved on.
func (s *Store) IsStale(path string) (bool, error) {
	norm, err := s.cfg.Resolve(path)
	if err != nil {
		return false, err
	}
	return plan.NewDetector(s.cat, s.snaps).IsStale(norm)
}

// Staleness returns the full status and parent drift for path.
func (s *Store) Staleness(path string) (plan.Status, []plan.Drift, error) {
	norm, err := s.cfg.Resolve(path)
	if err != nil {
		return plan.StatusUnknown, nil, err
	}
	return plan.NewDetector(s.cat, s.snaps).Check(norm)
}

// Plan computes a rebuild plan for the given targets.
func (s *Store) Plan(targets []string, depth int, includeTargets bool, mode plan.Mode) ([]plan.Entry, error) {
	norm := make([]string, len(targets))
	for i, t := range targets {
		n, err := s.cfg.Resolve(t)
		if err != nil {
			return nil, err
		}
		norm[i] = n
	}
	return plan.NewPlanner(s.cat, s.snaps).Plan(norm, depth, includeTargets, mode)
}

// Rebuild plans for targets and executes the plan through the save
// pipeline with the supplied builders.
func (s *Store) Rebuild(targets []string, builders map[string]rebuild.Builder, mode plan.Mode, dryRun bool) ([]rebuild.Outcome, error) {
	entries, err := s.Plan(targets, plan.Unbounded, true, mode)
	if err != nil {
		return nil, err
	}
	return rebuild.New(s.cat, s.snaps, s).Execute(entries, builders, dryRun), nil
}

// Execute runs an already computed plan.
func (s *Store) Execute(entries []plan.Entry, builders map[string]rebuild.Builder, dryRun bool) []rebuild.Outcome {
	return rebuild.New(s.cat, s.snaps, s).Execute(entries, builders, dryRun)
}

// Prune applies a retention policy. A zero policy falls back to the
// session default.
func (s *Store) Prune(paths []string, pol retain.Policy, dryRun bool) (*retain.Result, error) {
	if pol == (retain.Policy{}) {
		pol = s.cfg.Retention
	}
	norm := make([]string, len(paths))
	for i, p := range paths {
		n, err := s.cfg.Resolve(p)
		if err != nil {
			return nil, err
		}
		norm[i] = n
	}
	return retain.New(s.cat, s.snaps).WithClock(s.clock).Prune(norm, pol, dryRun)
}

// ChildrenOf answers descendant queries (see lineage.Index).
func (s *Store) ChildrenOf(path, versionID string, depth int) ([]lineage.Row, error) {
	norm, err := s.cfg.Resolve(path)
	if err != nil {
		return nil, err
	}
	return s.index.ChildrenOf(norm, versionID, depth)
}

// LineageOf answers ancestor queries (see lineage.Index).
func (s *Store) LineageOf(path string, depth int) ([]lineage.Row, error) {
	norm, err := s.cfg.Resolve(path)
	if err != nil {
		return nil, err
	}
	return s.index.LineageOf(norm, depth)
}

// RefreshIndex rebuilds the lineage edge cache from the snapshots.
func (s *Store) RefreshIndex() error {
	return s.index.RefreshCache()
}
