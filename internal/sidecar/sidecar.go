// Package sidecar reads and writes the per-artifact metadata record that
// accompanies the live artifact file.
//
// The sidecar always reflects the latest version; historical copies live
// inside each version snapshot. It can be present in two parallel
// encodings, JSON and YAML, so downstream tooling that only speaks one of
// them can still read artifact metadata.
package sidecar

import (
	"encoding/json"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/fsutil"
)

// Encoding suffixes appended to the artifact's own path.
const (
	SuffixJSON = ".strata.json"
	SuffixYAML = ".strata.yaml"
)

// Record is the sidecar metadata document.
type Record struct {
	ContentHash string         `json:"content_hash" yaml:"content_hash"`
	CodeHash    string         `json:"code_hash,omitempty" yaml:"code_hash,omitempty"`
	FileHash    string         `json:"file_hash" yaml:"file_hash"`
	VersionID   string         `json:"version_id" yaml:"version_id"`
	Format      string         `json:"format" yaml:"format"`
	PrimaryKey  []string       `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// JSONPath returns the JSON sidecar path for an artifact path.
func JSONPath(artifactPath string) string { return artifactPath + SuffixJSON }

// YAMLPath returns the YAML sidecar path for an artifact path.
func YAMLPath(artifactPath string) string { return artifactPath + SuffixYAML }

// Paths returns the sidecar paths present for the given format.
func Paths(artifactPath string, format catalog.SidecarFormat) []string {
	switch format {
	case catalog.SidecarJSON:
		return []string{JSONPath(artifactPath)}
	case catalog.SidecarYAML:
		return []string{YAMLPath(artifactPath)}
	case catalog.SidecarBoth:
		return []string{JSONPath(artifactPath), YAMLPath(artifactPath)}
	default:
		return nil
	}
}

// Write persists the record in the requested encodings, each atomically.
func Write(artifactPath string, rec Record, format catalog.SidecarFormat) error {
	rec.UpdatedAt = rec.UpdatedAt.UTC()

	if format == catalog.SidecarJSON || format == catalog.SidecarBoth {
		raw, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fault.Wrap(fault.KindCorruptState, "sidecar.write", artifactPath, err)
		}
		if err := fsutil.WriteFileAtomic(JSONPath(artifactPath), raw, 0o644); err != nil {
			return err
		}
	}
	if format == catalog.SidecarYAML || format == catalog.SidecarBoth {
		raw, err := yaml.Marshal(rec)
		if err != nil {
			return fault.Wrap(fault.KindCorruptState, "sidecar.write", artifactPath, err)
		}
		if err := fsutil.WriteFileAtomic(YAMLPath(artifactPath), raw, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Read loads the sidecar for an artifact, preferring the JSON encoding.
// An absent sidecar is not an error: it returns SidecarNone so callers can
// treat the artifact as never-saved. A present but malformed sidecar is
// CorruptState.
func Read(artifactPath string) (Record, catalog.SidecarFormat, error) {
	format := DetectFormat(artifactPath)
	if format == catalog.SidecarNone {
		return Record{}, catalog.SidecarNone, nil
	}

	var rec Record
	switch format {
	case catalog.SidecarYAML:
		raw, err := os.ReadFile(YAMLPath(artifactPath))
		if err != nil {
			return Record{}, format, fault.Wrap(fault.KindCorruptState, "sidecar.read", artifactPath, err)
		}
		if err := yaml.Unmarshal(raw, &rec); err != nil {
			return Record{}, format, fault.Wrap(fault.KindCorruptState, "sidecar.read", artifactPath, err)
		}
	default:
		raw, err := os.ReadFile(JSONPath(artifactPath))
		if err != nil {
			return Record{}, format, fault.Wrap(fault.KindCorruptState, "sidecar.read", artifactPath, err)
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return Record{}, format, fault.Wrap(fault.KindCorruptState, "sidecar.read", artifactPath, err)
		}
	}
	return rec, format, nil
}

// DetectFormat reports which sidecar encodings exist on disk for the
// artifact.
func DetectFormat(artifactPath string) catalog.SidecarFormat {
	hasJSON := exists(JSONPath(artifactPath))
	hasYAML := exists(YAMLPath(artifactPath))
	switch {
	case hasJSON && hasYAML:
		return catalog.SidecarBoth
	case hasJSON:
		return catalog.SidecarJSON
	case hasYAML:
		return catalog.SidecarYAML
	default:
		return catalog.SidecarNone
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
