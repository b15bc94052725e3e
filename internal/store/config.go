package store

import (
	"path/filepath"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/retain"
)

// Resolver supplies normalized absolute paths. The core never does its own
// alias mapping beyond using resolved values; callers with project-level
// alias schemes plug their own resolver in.
type Resolver func(path string) (string, error)

// Config is the explicit per-session configuration. There is no ambient
// global state: two stores with different configs coexist in one process
// without interference.
type Config struct {
	// Root is the tracked root directory (absolute).
	Root string

	// StateDir holds the catalog, version snapshots, and lineage cache.
	// Defaults to <Root>/.strata.
	StateDir string

	// DefaultFormat names the codec used when a save does not specify one.
	// Defaults to "json".
	DefaultFormat string

	// SidecarFormat selects which sidecar encodings are written.
	// Defaults to JSON only.
	SidecarFormat catalog.SidecarFormat

	// SkipUnchanged elides the write when content, code, and the on-disk
	// file are all unchanged since the latest version.
	// Defaults to true (see DefaultConfig).
	SkipUnchanged bool

	// Retention is the default policy applied by Prune when the caller
	// passes none. Defaults to keep-all.
	Retention retain.Policy

	// Resolve normalizes artifact paths. Defaults to abs+clean.
	Resolve Resolver
}

// DefaultConfig returns the baseline configuration for a tracked root.
func DefaultConfig(root string) Config {
	return Config{
		Root:          root,
		DefaultFormat: "json",
		SidecarFormat: catalog.SidecarJSON,
		SkipUnchanged: true,
		Retention:     retain.KeepAllPolicy(),
	}
}

func (c Config) withDefaults() Config {
	if c.StateDir == "" {
		c.StateDir = filepath.Join(c.Root, ".strata")
	}
	if c.DefaultFormat == "" {
		c.DefaultFormat = "json"
	}
	if c.SidecarFormat == "" {
		c.SidecarFormat = catalog.SidecarJSON
	}
	if c.Resolve == nil {
		c.Resolve = func(path string) (string, error) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return "", err
			}
			return filepath.Clean(abs), nil
		}
	}
	return c
}
