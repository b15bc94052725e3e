package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Domain prefixes for content-addressed identity.
// The version suffix enables future algorithm migration.
const (
	DomainArtifact = "strata/artifact/v1"
	DomainVersion  = "strata/version/v1"
	DomainContent  = "strata/content/v1"
	DomainCode     = "strata/code/v1"
	DomainFile     = "strata/file/v1"
)

// IDLength is the hex width of artifact and version IDs. 16 hex chars
// (64 bits) is sufficient entropy at single-repository scale; this is a
// documented non-adversarial assumption, not a cryptographic guarantee.
const IDLength = 16

// hashWithDomain computes SHA-256 over domain + 0x00 + each part separated
// by 0x00. The null separators prevent boundary ambiguity between parts.
func hashWithDomain(domain string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ArtifactID derives the stable identifier for a normalized absolute path.
// Two textual spellings of the same location must be normalized by the
// caller's path resolver before reaching this function.
func ArtifactID(normPath string) string {
	return hashWithDomain(DomainArtifact, []byte(normPath))[:IDLength]
}

// VersionID derives the identifier for one committed snapshot. It changes
// whenever any input changes; the timestamp component keeps IDs unique
// across saves of identical content.
func VersionID(artifactID, contentHash, codeHash string, createdAt time.Time) string {
	ts := createdAt.UTC().Format(time.RFC3339Nano)
	return hashWithDomain(DomainVersion,
		[]byte(artifactID),
		[]byte(contentHash),
		[]byte(codeHash),
		[]byte(ts),
	)[:IDLength]
}

// ContentHash hashes the canonical encoding of a value. Callers are
// responsible for canonicalizing (see Canonical) so that incidental
// attribute ordering does not change the hash.
func ContentHash(canonical []byte) string {
	return hashWithDomain(DomainContent, canonical)
}

// CodeHash hashes producing-code bytes. Empty code hashes to the empty
// string so "no code supplied" is distinguishable from any real hash.
func CodeHash(code []byte) string {
	if len(code) == 0 {
		return ""
	}
	return hashWithDomain(DomainCode, code)
}

// FileHash hashes raw on-disk bytes. Used to detect external modification
// of the live artifact file behind the store's back.
func FileHash(b []byte) string {
	return hashWithDomain(DomainFile, b)
}
