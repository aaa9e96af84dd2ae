package catalogs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ai"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/commands"
)

func repoConfigs() string { return filepath.Join("..", "..", "..", "configs") }

func TestLoad_RepoConfigs(t *testing.T) {
	c, err := Load(repoConfigs())
	require.NoError(t, err)

	assert.Equal(t, []string{"food", "stone", "wood"}, c.Resources.Palette)
	idx, def, err := c.Resources.Lookup("wood")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 200.0, def.Units)
	assert.Len(t, c.Resources.Digest, 64)

	_, _, err = c.Resources.Lookup("gold")
	assert.True(t, errors.Is(err, ErrUnknownResource))

	g, err := c.Archetypes.Lookup("gatherer")
	require.NoError(t, err)
	assert.Equal(t, ai.AggregateSum, g.Aggregation)
	assert.True(t, g.Sensor.PrimaryMask.Has(ai.CategoryResource))
	assert.True(t, g.Sensor.SecondaryMask.Has(ai.CategoryWorkOffer))
	require.Len(t, g.Actions, 4)
	assert.Equal(t, commands.KindGather, g.Actions[0].Kind)
	assert.Equal(t, ai.CategoryResource, g.Actions[0].TargetCategory)
	assert.Equal(t, ai.CurveLogistic, g.Actions[2].Factors[0].Curve)

	_, err = c.Archetypes.Lookup("priest")
	assert.ErrorIs(t, err, ErrUnknownArchetype)
}

func writeConfig(t *testing.T, resources, archetype string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archetypes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resources.json"), []byte(resources), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archetypes", "a.json"), []byte(archetype), 0o644))
	return dir
}

const minimalArchetype = `{"name":"a","actions":[{"name":"x","kind":"rest","factors":[{"input":"rest","weight":1}]}]}`

func TestLoad_SchemaRejects(t *testing.T) {
	_, err := Load(writeConfig(t, `[{"id":"Wood","units":10}]`, minimalArchetype))
	require.Error(t, err, "id pattern")

	_, err = Load(writeConfig(t, `[{"id":"wood","units":0}]`, minimalArchetype))
	require.Error(t, err, "units must be positive")

	_, err = Load(writeConfig(t, `[{"id":"wood","units":10}]`,
		`{"name":"a","actions":[{"name":"x","kind":"fly","factors":[{"input":"rest","weight":1}]}]}`))
	require.Error(t, err, "unknown kind")

	_, err = Load(writeConfig(t, `[{"id":"wood","units":10},{"id":"wood","units":5}]`, minimalArchetype))
	require.Error(t, err, "duplicate id")

	c, err := Load(writeConfig(t, `[{"id":"wood","units":10}]`, minimalArchetype))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, c.Archetypes.Names)
}
