package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/strataform/strata/internal/store"
)

// FixtureEpoch is the deterministic clock start used by store fixtures.
var FixtureEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// TempStore opens a store session rooted in a fresh temp directory with a
// deterministic clock stepping one second per save.
func TempStore(t *testing.T, opts ...store.Option) (*store.Store, *Clock) {
	t.Helper()

	clock := NewClock(FixtureEpoch, time.Second)
	root := t.TempDir()
	cfg := store.DefaultConfig(root)

	all := append([]store.Option{store.WithClock(clock.Now)}, opts...)
	s, err := store.Open(cfg, all...)
	if err != nil {
		t.Fatalf("open fixture store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// ArtifactPath returns an artifact path under the store's root.
func ArtifactPath(s *store.Store, name string) string {
	return filepath.Join(s.Config().Root, name)
}
