package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactIDStableAndShort(t *testing.T) {
	a := ArtifactID("/data/foo.json")
	b := ArtifactID("/data/foo.json")
	assert.Equal(t, a, b)
	assert.Len(t, a, IDLength)

	assert.NotEqual(t, a, ArtifactID("/data/bar.json"))
}

func TestVersionIDChangesWithEveryInput(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	base := VersionID("aid", "chash", "khash", at)

	assert.NotEqual(t, base, VersionID("aid2", "chash", "khash", at))
	assert.NotEqual(t, base, VersionID("aid", "chash2", "khash", at))
	assert.NotEqual(t, base, VersionID("aid", "chash", "khash2", at))
	assert.NotEqual(t, base, VersionID("aid", "chash", "khash", at.Add(time.Nanosecond)))
	assert.Len(t, base, IDLength)
}

func TestVersionIDIdenticalContentDistinctInstants(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v1 := VersionID("aid", "chash", "", at)
	v2 := VersionID("aid", "chash", "", at.Add(time.Second))
	assert.NotEqual(t, v1, v2, "identical content at different times must get distinct ids")
}

func TestContentHashIndependentOfKeyOrder(t *testing.T) {
	c1, err := Canonical(map[string]any{"x": 1, "y": 2})
	require.NoError(t, err)
	c2, err := Canonical(map[string]any{"y": 2, "x": 1})
	require.NoError(t, err)
	assert.Equal(t, ContentHash(c1), ContentHash(c2))
}

func TestCodeHashEmptyIsEmpty(t *testing.T) {
	assert.Empty(t, CodeHash(nil))
	assert.NotEmpty(t, CodeHash([]byte("def build(): ...")))
}

func TestDomainSeparation(t *testing.T) {
	// The same bytes under different domains must not collide.
	b := []byte("payload")
	assert.NotEqual(t, ContentHash(b), FileHash(b))
}
