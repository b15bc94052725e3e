package catalog

import (
	"fmt"

	"github.com/strataform/strata/internal/fault"
)

// SpecKind tags a VersionSpec variant.
type SpecKind int

const (
	// SpecLatest selects the artifact's latest version.
	SpecLatest SpecKind = iota
	// SpecOffset selects the Nth version back from latest (0 = latest).
	SpecOffset
	// SpecExact selects a literal version id.
	SpecExact
)

// VersionSpec is the tagged variant a caller uses to address a version
// without knowing its id up front. Interactive selection is an external
// collaborator and deliberately has no variant here.
type VersionSpec struct {
	Kind   SpecKind
	Offset int    // SpecOffset only
	ID     string // SpecExact only
}

// Latest selects the current latest version.
func Latest() VersionSpec { return VersionSpec{Kind: SpecLatest} }

// Offset selects n versions back from latest.
func Offset(n int) VersionSpec { return VersionSpec{Kind: SpecOffset, Offset: n} }

// Exact selects a literal version id.
func Exact(id string) VersionSpec { return VersionSpec{Kind: SpecExact, ID: id} }

// Resolve maps a VersionSpec to a concrete version row. Pure with respect
// to I/O: it only consults the already loaded catalog.
func (c *Catalog) Resolve(path string, spec VersionSpec) (VersionRow, error) {
	switch spec.Kind {
	case SpecLatest:
		v, ok := c.Latest(path)
		if !ok {
			return VersionRow{}, fault.New(fault.KindNotFound, "catalog.resolve", path)
		}
		return v, nil

	case SpecOffset:
		if spec.Offset < 0 {
			return VersionRow{}, fault.Wrap(fault.KindPolicyError, "catalog.resolve", path,
				fmt.Errorf("negative offset %d", spec.Offset))
		}
		rows := c.VersionsOf(path)
		if spec.Offset >= len(rows) {
			return VersionRow{}, fault.Wrap(fault.KindNotFound, "catalog.resolve", path,
				fmt.Errorf("offset %d exceeds %d versions", spec.Offset, len(rows)))
		}
		return rows[spec.Offset], nil

	case SpecExact:
		v, ok := c.Version(spec.ID)
		if !ok || v.Path != path {
			return VersionRow{}, fault.Wrap(fault.KindNotFound, "catalog.resolve", path,
				fmt.Errorf("version %s not found", spec.ID))
		}
		return v, nil

	default:
		return VersionRow{}, fault.Wrap(fault.KindPolicyError, "catalog.resolve", path,
			fmt.Errorf("unknown spec kind %d", spec.Kind))
	}
}
