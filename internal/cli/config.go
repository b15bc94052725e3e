package cli

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/strataform/strata/internal/catalog"
	"github.com/strataform/strata/internal/retain"
	"github.com/strataform/strata/internal/store"
)

// ConfigFileName is the store configuration file looked up under the
// tracked root.
const ConfigFileName = "strata.cue"

// configSchema constrains the accepted document. Unifying the user's file
// against it turns typos and wrong types into load errors instead of
// silently ignored fields.
const configSchema = `
store?: {
	state_dir?:      string
	default_format?: string
	sidecar?:        "json" | "yaml" | "both"
	skip_unchanged?: bool
	retention?: {
		keep_all?: bool
		n?:        int & >=0
		days?:     int & >=0
	}
}
`

type fileConfig struct {
	StateDir      string `json:"state_dir"`
	DefaultFormat string `json:"default_format"`
	Sidecar       string `json:"sidecar"`
	SkipUnchanged *bool  `json:"skip_unchanged"`
	Retention     struct {
		KeepAll bool `json:"keep_all"`
		N       int  `json:"n"`
		Days    int  `json:"days"`
	} `json:"retention"`
}

// LoadConfig reads a strata.cue file and overlays it onto base.
func LoadConfig(path string, base store.Config) (store.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return store.Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema)
	if err := schema.Err(); err != nil {
		return store.Config{}, fmt.Errorf("config schema: %w", err)
	}
	value := ctx.CompileBytes(raw, cue.Filename(path))
	if err := value.Err(); err != nil {
		return store.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	value = schema.Unify(value)
	if err := value.Validate(cue.Concrete(false)); err != nil {
		return store.Config{}, fmt.Errorf("validate config %s: %w", path, err)
	}

	storeVal := value.LookupPath(cue.ParsePath("store"))
	if !storeVal.Exists() {
		return base, nil
	}
	var fc fileConfig
	if err := storeVal.Decode(&fc); err != nil {
		return store.Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	if fc.StateDir != "" {
		base.StateDir = fc.StateDir
	}
	if fc.DefaultFormat != "" {
		base.DefaultFormat = fc.DefaultFormat
	}
	if fc.Sidecar != "" {
		base.SidecarFormat = catalog.SidecarFormat(fc.Sidecar)
	}
	if fc.SkipUnchanged != nil {
		base.SkipUnchanged = *fc.SkipUnchanged
	}
	if fc.Retention.KeepAll {
		base.Retention = retain.KeepAllPolicy()
	} else if fc.Retention.N > 0 || fc.Retention.Days > 0 {
		base.Retention = retain.KeepUnion(fc.Retention.N, fc.Retention.Days)
	}
	return base, nil
}
