package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/satchel/internal/record"
)

const testStores = `
stores: {
	part_catalog: {
		scope:    "global"
		ttl:      "1h"
		endpoint: "/parts"
		preload:  true
		schema: {
			name:   string
			unit:   string | *"piece"
		}
	}
	orders: {
		scope:        "tenant"
		ttl:          "30m"
		endpoint:     "/orders"
		sub_endpoint: "/orders/{parent}/items"
		preload:      true
		schema: {
			title:  string
			status: "open" | "in_progress" | "completed"
		}
	}
	notes: {
		scope:    "tenant"
		endpoint: "/notes"
	}
}
`

func TestParse_Definitions(t *testing.T) {
	reg, err := Parse(testStores)
	require.NoError(t, err)

	defs := reg.Definitions()
	require.Len(t, defs, 3)

	byName := make(map[string]record.Definition)
	for _, d := range defs {
		byName[d.Name] = d
	}

	catalog := byName["part_catalog"]
	assert.Equal(t, record.ScopeGlobal, catalog.Scope)
	assert.Equal(t, time.Hour, catalog.TTL)
	assert.Equal(t, "/parts", catalog.Endpoint)
	assert.True(t, catalog.Preload)

	orders := byName["orders"]
	assert.Equal(t, record.ScopeTenant, orders.Scope)
	assert.Equal(t, "/orders/{parent}/items", orders.SubEndpoint)

	notes := byName["notes"]
	assert.Equal(t, time.Duration(0), notes.TTL)
	assert.False(t, notes.Preload)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing scope", `stores: p: {endpoint: "/p"}`},
		{"invalid scope", `stores: p: {scope: "regional", endpoint: "/p"}`},
		{"missing endpoint", `stores: p: {scope: "global"}`},
		{"bad ttl", `stores: p: {scope: "global", endpoint: "/p", ttl: "soon"}`},
		{"no stores field", `other: {}`},
		{"empty stores", `stores: {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			assert.Error(t, err)
		})
	}
}

func TestNormalize_ValidPayload(t *testing.T) {
	reg, err := Parse(testStores)
	require.NoError(t, err)

	got, err := reg.Normalize("orders", map[string]any{
		"title":  "replace seal",
		"status": "completed",
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", got["status"])
}

func TestNormalize_AppliesDefaults(t *testing.T) {
	reg, err := Parse(testStores)
	require.NoError(t, err)

	got, err := reg.Normalize("part_catalog", map[string]any{"name": "pump"})
	require.NoError(t, err)
	assert.Equal(t, "piece", got["unit"], "schema default not applied")
}

func TestNormalize_RejectsInvalidPayload(t *testing.T) {
	reg, err := Parse(testStores)
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"wrong enum value", map[string]any{"title": "x", "status": "done"}},
		{"wrong type", map[string]any{"title": 7, "status": "open"}},
		{"missing required field", map[string]any{"status": "open"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Normalize("orders", tt.payload)
			require.Error(t, err)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "error is not a ValidationError: %v", err)
			assert.Equal(t, "orders", verr.Store)
		})
	}
}

func TestNormalize_StoreWithoutSchemaPassesThrough(t *testing.T) {
	reg, err := Parse(testStores)
	require.NoError(t, err)

	payload := map[string]any{"anything": "goes", "n": 3.5}
	got, err := reg.Normalize("notes", payload)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stores.cue"), []byte(testStores), 0o644))

	reg, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, reg.Definitions(), 3)
}

func TestLoadDir_MergesPlainFiles(t *testing.T) {
	// Declarations carry no package clause and may be split across
	// files; all of them load as one instance.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.cue"), []byte(`
stores: part_catalog: {
	scope:    "global"
	ttl:      "1h"
	endpoint: "/parts"
	schema: {
		name: string
	}
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.cue"), []byte(`
stores: orders: {
	scope:    "tenant"
	ttl:      "30m"
	endpoint: "/orders"
	schema: {
		title: string
	}
}
`), 0o644))

	reg, err := LoadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, 2)
	for _, def := range reg.Definitions() {
		names = append(names, def.Name)
	}
	assert.ElementsMatch(t, []string{"orders", "part_catalog"}, names)
}

func TestLoadDir_Errors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
	t.Run("no cue files", func(t *testing.T) {
		_, err := LoadDir(t.TempDir())
		assert.Error(t, err)
	})
}
