// Package codec defines the serialization backend collaborator interface.
// The core treats backends as opaque byte producers: it hashes their
// output and never inspects format internals.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/strataform/strata/internal/fault"
)

// Codec encodes an in-memory object to bytes and back. Implementations
// must be deterministic enough that re-encoding equal logical content
// yields content the store can re-read; byte-level stability is not
// required (content identity comes from canonicalization, not the codec).
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// Registry is an explicit, caller-owned codec set. There is no package
// global registration: each store session copies the registry it is given
// so independent stores cannot interfere.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry builds a registry from the given codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[string]Codec, len(codecs))}
	for _, c := range codecs {
		r.codecs[c.Name()] = c
	}
	return r
}

// Default returns a registry with the built-in codecs (json, raw).
func Default() *Registry {
	return NewRegistry(JSON{}, Raw{})
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) {
	r.codecs[c.Name()] = c
}

// Get resolves a codec by format name.
func (r *Registry) Get(name string) (Codec, error) {
	c, ok := r.codecs[name]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "codec.get", name)
	}
	return c, nil
}

// Names returns the registered format names (unordered).
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.codecs))
	for n := range r.codecs {
		names = append(names, n)
	}
	return names
}

// JSON is the default structured codec.
type JSON struct{}

// Name implements Codec.
func (JSON) Name() string { return "json" }

// Encode implements Codec.
func (JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode implements Codec. Numbers decode as json.Number so integers
// survive a round trip without float coercion.
func (JSON) Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return v, nil
}

// Raw passes bytes through untouched; the object must be []byte or string.
type Raw struct{}

// Name implements Codec.
func (Raw) Name() string { return "raw" }

// Encode implements Codec.
func (Raw) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("raw codec requires []byte or string, got %T", v)
	}
}

// Decode implements Codec.
func (Raw) Decode(data []byte) (any, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
