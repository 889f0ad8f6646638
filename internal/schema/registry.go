// Package schema loads store definitions from CUE and validates
// payloads against each store's declared schema at the local store's
// write boundary, so downstream readers can assume a fixed shape for
// records arriving from the loosely-typed remote boundary.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/fieldworks/satchel/internal/record"
)

// Registry holds the loaded store definitions and their compiled
// payload schemas. It is immutable after Load and safe for concurrent
// reads.
type Registry struct {
	ctx     *cue.Context
	defs    []record.Definition
	schemas map[string]cue.Value
}

// ValidationError reports a payload rejected by a store's schema.
type ValidationError struct {
	Store   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("store %q: payload does not match schema: %s", e.Store, e.Message)
}

// LoadDir loads every .cue file in dir as one instance and compiles
// the store definitions under the top-level "stores" field:
//
//	stores: part_catalog: {
//	    scope:    "global"
//	    ttl:      "1h"
//	    endpoint: "/parts"
//	    preload:  true
//	    schema: {
//	        name: string
//	        ...
//	    }
//	}
func LoadDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("stores directory not found: %s", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("error accessing stores directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("error scanning directory: %w", err)
	}
	if len(cueFiles) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	// The files are named explicitly so that declarations without a
	// package clause still load; directory-mode loading would exclude
	// them as unmatched by any package.
	args := make([]string, len(cueFiles))
	for i, f := range cueFiles {
		rel, relErr := filepath.Rel(dir, f)
		if relErr != nil {
			return nil, fmt.Errorf("error scanning directory: %w", relErr)
		}
		args[i] = rel
	}

	ctx := cuecontext.New()
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}

	return compile(ctx, value)
}

// Parse compiles store definitions from a CUE source string. Used by
// tests and embedded defaults.
func Parse(src string) (*Registry, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compiling CUE source: %w", err)
	}
	return compile(ctx, value)
}

func compile(ctx *cue.Context, value cue.Value) (*Registry, error) {
	storesVal := value.LookupPath(cue.ParsePath("stores"))
	if !storesVal.Exists() {
		return nil, fmt.Errorf("no stores field found")
	}

	reg := &Registry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	iter, err := storesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating stores: %w", err)
	}
	for iter.Next() {
		name := iter.Label()
		def, schemaVal, err := compileStore(name, iter.Value())
		if err != nil {
			return nil, err
		}
		reg.defs = append(reg.defs, def)
		if schemaVal.Exists() {
			reg.schemas[name] = schemaVal
		}
	}

	if len(reg.defs) == 0 {
		return nil, fmt.Errorf("no store definitions found")
	}
	return reg, nil
}

func compileStore(name string, v cue.Value) (record.Definition, cue.Value, error) {
	def := record.Definition{Name: name}

	scopeVal := v.LookupPath(cue.ParsePath("scope"))
	if !scopeVal.Exists() {
		return def, cue.Value{}, fmt.Errorf("store %q: scope is required", name)
	}
	scope, err := scopeVal.String()
	if err != nil {
		return def, cue.Value{}, fmt.Errorf("store %q: scope: %w", name, err)
	}
	def.Scope = record.Scope(scope)
	if !def.Scope.Valid() {
		return def, cue.Value{}, fmt.Errorf("store %q: invalid scope %q (want global or tenant)", name, scope)
	}

	endpointVal := v.LookupPath(cue.ParsePath("endpoint"))
	if !endpointVal.Exists() {
		return def, cue.Value{}, fmt.Errorf("store %q: endpoint is required", name)
	}
	if def.Endpoint, err = endpointVal.String(); err != nil {
		return def, cue.Value{}, fmt.Errorf("store %q: endpoint: %w", name, err)
	}

	if ttlVal := v.LookupPath(cue.ParsePath("ttl")); ttlVal.Exists() {
		ttlStr, err := ttlVal.String()
		if err != nil {
			return def, cue.Value{}, fmt.Errorf("store %q: ttl: %w", name, err)
		}
		if def.TTL, err = time.ParseDuration(ttlStr); err != nil {
			return def, cue.Value{}, fmt.Errorf("store %q: ttl: %w", name, err)
		}
	}

	if subVal := v.LookupPath(cue.ParsePath("sub_endpoint")); subVal.Exists() {
		if def.SubEndpoint, err = subVal.String(); err != nil {
			return def, cue.Value{}, fmt.Errorf("store %q: sub_endpoint: %w", name, err)
		}
	}

	if preVal := v.LookupPath(cue.ParsePath("preload")); preVal.Exists() {
		if def.Preload, err = preVal.Bool(); err != nil {
			return def, cue.Value{}, fmt.Errorf("store %q: preload: %w", name, err)
		}
	}

	schemaVal := v.LookupPath(cue.ParsePath("schema"))
	if schemaVal.Exists() {
		if err := schemaVal.Err(); err != nil {
			return def, cue.Value{}, fmt.Errorf("store %q: schema: %w", name, err)
		}
	}

	return def, schemaVal, nil
}

// Definitions returns the loaded store definitions.
func (r *Registry) Definitions() []record.Definition {
	defs := make([]record.Definition, len(r.defs))
	copy(defs, r.defs)
	return defs
}

// Normalize validates a payload against the store's schema and returns
// it with schema defaults applied. A store without a schema passes
// payloads through unchanged. Rejections are *ValidationError.
func (r *Registry) Normalize(store string, payload map[string]any) (map[string]any, error) {
	schemaVal, ok := r.schemas[store]
	if !ok {
		return payload, nil
	}

	payloadVal := r.ctx.Encode(payload)
	if err := payloadVal.Err(); err != nil {
		return nil, &ValidationError{Store: store, Message: err.Error()}
	}

	unified := schemaVal.Unify(payloadVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &ValidationError{Store: store, Message: err.Error()}
	}

	var normalized map[string]any
	if err := unified.Decode(&normalized); err != nil {
		return nil, &ValidationError{Store: store, Message: err.Error()}
	}
	return normalized, nil
}

// findCUEFiles walks the directory and returns all .cue file paths.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
