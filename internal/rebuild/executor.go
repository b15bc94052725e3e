// Package rebuild walks a plan in level order and rebuilds each artifact
// through a caller-supplied builder.
//
// Builders are injected as an explicit map at call time; there is no
// global registry. One entry's failure never aborts the batch: later
// entries that depended on its output fail naturally when their parent
// resolution references missing state, and that failure is reported as a
// status, not raised.
package rebuild

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/fault"
	"github.com/strataform/strata/internal/plan"
	"github.com/strataform/strata/internal/snapshot"
)

// Bundle is what a builder returns: the object to persist plus optional
// format, metadata, and producing-code details.
type Bundle struct {
	Object    any
	Format    string
	Metadata  map[string]any
	Code      []byte
	CodeLabel string
}

// Builder produces a fresh artifact from its path and current parent
// pins. It must be a function of its inputs; the executor owns no hidden
// side channel.
type Builder func(path string, parents []snapshot.Parent) (*Bundle, error)

// Saver routes a built bundle through the save pipeline. Implemented by
// the store session; abstracted here so the executor stays free of the
// pipeline's wiring.
type Saver interface {
	SaveBuilt(path string, b *Bundle, parents []snapshot.Parent) (versionID string, err error)
}

// Status is the per-entry outcome.
type Status string

const (
	StatusBuilt   Status = "built"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome reports one plan entry's result.
type Outcome struct {
	Path      string `json:"path"`
	Level     int    `json:"level"`
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	VersionID string `json:"version_id,omitempty"`
}

// Executor consumes plans.
type Executor struct {
	cat   *catalog.Catalog
	snaps *snapshot.Store
	saver Saver
}

// New creates an executor.
func New(cat *catalog.Catalog, snaps *snapshot.Store, saver Saver) *Executor {
	return &Executor{cat: cat, snaps: snaps, saver: saver}
}

// Execute walks entries strictly in ascending level order. Siblings within
// a level have no recorded dependency on one another and run sequentially
// here for simplicity; all lower-level entries complete before a higher
// level starts because higher levels may consume freshly built output.
//
// With dryRun set, no builder is invoked and nothing is written; the
// outcome reports what would happen.
func (x *Executor) Execute(entries []plan.Entry, builders map[string]Builder, dryRun bool) []Outcome {
	ordered := append([]plan.Entry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Level != ordered[j].Level {
			return ordered[i].Level < ordered[j].Level
		}
		return ordered[i].Path < ordered[j].Path
	})

	outcomes := make([]Outcome, 0, len(ordered))
	for _, entry := range ordered {
		outcomes = append(outcomes, x.executeEntry(entry, builders, dryRun))
	}
	return outcomes
}

func (x *Executor) executeEntry(entry plan.Entry, builders map[string]Builder, dryRun bool) Outcome {
	out := Outcome{Path: entry.Path, Level: entry.Level}

	builder, ok := builders[entry.Path]
	if !ok {
		out.Status = StatusSkipped
		out.Message = "no builder supplied"
		return out
	}

	parents, err := x.currentParents(entry.Path)
	if err != nil {
		out.Status = StatusFailed
		out.Message = err.Error()
		return out
	}

	if dryRun {
		out.Status = StatusSkipped
		out.Message = fmt.Sprintf("dry run: would build with %d parent(s)", len(parents))
		return out
	}

	bundle, err := invokeBuilder(builder, entry.Path, parents)
	if err != nil {
		out.Status = StatusFailed
		out.Message = err.Error()
		slog.Warn("builder failed", "path", entry.Path, "level", entry.Level, "error", err)
		return out
	}

	versionID, err := x.saver.SaveBuilt(entry.Path, bundle, parents)
	if err != nil {
		out.Status = StatusFailed
		out.Message = err.Error()
		return out
	}

	out.Status = StatusBuilt
	out.VersionID = versionID
	slog.Info("artifact rebuilt", "path", entry.Path, "level", entry.Level, "version", versionID)
	return out
}

// currentParents re-pins the entry's recorded parent paths at their
// present latest versions. A parent with no remaining versions makes the
// entry fail: the descriptor would reference state that no longer exists.
func (x *Executor) currentParents(path string) ([]snapshot.Parent, error) {
	latest, ok := x.cat.Latest(path)
	if !ok {
		// Never-saved artifact: the builder starts from nothing.
		return nil, nil
	}
	recorded, err := x.snaps.ParentsOf(latest)
	if err != nil {
		return nil, err
	}

	parents := make([]snapshot.Parent, 0, len(recorded))
	for _, p := range recorded {
		current, ok := x.cat.Latest(p.Path)
		if !ok {
			return nil, fault.Wrap(fault.KindNotFound, "rebuild.parents", path,
				fmt.Errorf("parent %s has no versions", p.Path))
		}
		parents = append(parents, snapshot.Parent{Path: p.Path, VersionID: current.VersionID})
	}
	return parents, nil
}

// invokeBuilder isolates builder panics as BuilderFailure so one bad
// artifact cannot take down the batch.
func invokeBuilder(b Builder, path string, parents []snapshot.Parent) (bundle *Bundle, err error) {
	defer func() {
		if r := recover(); r != nil {
			bundle = nil
			err = fault.Wrap(fault.KindBuilderFailure, "rebuild.build", path,
				fmt.Errorf("builder panic: %v", r))
		}
	}()

	bundle, err = b(path, parents)
	if err != nil {
		return nil, fault.Wrap(fault.KindBuilderFailure, "rebuild.build", path, err)
	}
	if bundle == nil || bundle.Object == nil {
		return nil, fault.Wrap(fault.KindBuilderFailure, "rebuild.build", path,
			fmt.Errorf("builder returned empty bundle"))
	}
	return bundle, nil
}
