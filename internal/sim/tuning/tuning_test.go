package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), tu)
}

func TestLoad_PartialOverridesDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte("grid:\n  cell_size: 2\n  provider: hashed\nrewind:\n  max_history_ticks: 10\n"), 0o644))
	tu, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 2.0, tu.Grid.CellSize)
	assert.Equal(t, "hashed", tu.Grid.Provider)
	assert.Equal(t, 10, tu.Rewind.MaxHistoryTicks)
	assert.Equal(t, 20, tu.TickRateHz)
	assert.Equal(t, Defaults().Grid.WorldMax, tu.Grid.WorldMax)
}

func TestLoad_Invalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte("grid:\n  provider: octree\n"), 0o644))
	_, err := Load(p)
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
