package cli

import (
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Text(t *testing.T) {
	dir := writeStoresDir(t)

	stdout, _, err := executeCommand(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Valid: 2 store(s)")
	assert.Contains(t, stdout, "part_catalog (global) -> /parts")
	assert.Contains(t, stdout, "orders (tenant) -> /orders")
}

// The JSON shape is part of the CLI contract; scripts parse it.
func TestValidate_JSONGolden(t *testing.T) {
	dir := writeStoresDir(t)

	stdout, _, err := executeCommand(t, "--format", "json", "validate", dir)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "validate_json", []byte(stdout))
}

func TestValidate_MissingDir(t *testing.T) {
	stdout, _, err := executeCommand(t, "validate", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "E003")
}

func TestValidate_BadDeclaration(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stores.cue"), `stores: p: {scope: "regional", endpoint: "/p"}`)

	stdout, _, err := executeCommand(t, "validate", dir)
	require.Error(t, err)
	assert.Contains(t, stdout, "E003")
}
