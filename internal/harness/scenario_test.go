package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata against its golden
// trace.
func TestScenarios(t *testing.T) {
	entries, err := os.ReadDir("testdata")
	require.NoError(t, err)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join("testdata", entry.Name())
		t.Run(strings.TrimSuffix(entry.Name(), ".yaml"), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			RunWithGolden(t, scenario)
		})
	}
}

func TestLoadScenario_Rejections(t *testing.T) {
	write := func(content string) string {
		path := filepath.Join(t.TempDir(), "scenario.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"missing name",
			"tenant: t\nsteps: [{op: sync}]\n",
			"missing a name",
		},
		{
			"missing tenant",
			"name: x\nsteps: [{op: sync}]\n",
			"missing a tenant",
		},
		{
			"no steps",
			"name: x\ntenant: t\n",
			"no steps",
		},
		{
			"unknown op",
			"name: x\ntenant: t\nsteps: [{op: teleport}]\n",
			"unknown op",
		},
		{
			"unknown field",
			"name: x\ntenant: t\nstepz: [{op: sync}]\n",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(write(tt.src))
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
