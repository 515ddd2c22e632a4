package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/adsync/internal/model"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesFile(t *testing.T) {
	path := writeTempYAML(t, `
overrides:
  - level: campaign
    entity_id: c42
    name: "Brand  Campaign"
    valid_from: 2026-01-01
    valid_to: 2026-06-01
  - level: ad_group
    entity_id: g7
    name: Shoes
`)

	got, err := LoadOverridesFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.LevelCampaign, got[0].EntityLevel)
	assert.Equal(t, "c42", got[0].EntityID)
	assert.Equal(t, "brand campaign", got[0].NameNorm)
	require.NotNil(t, got[0].ValidFrom)
	assert.Equal(t, model.DateOf(2026, 1, 1), *got[0].ValidFrom)
	require.NotNil(t, got[0].ValidTo)
	assert.Equal(t, model.DateOf(2026, 6, 1), *got[0].ValidTo)

	assert.Equal(t, model.LevelAdGroup, got[1].EntityLevel)
	assert.Nil(t, got[1].ValidFrom)
	assert.Nil(t, got[1].ValidTo)
}

func TestLoadOverridesFile_UnknownLevel(t *testing.T) {
	path := writeTempYAML(t, `
overrides:
  - level: portfolio
    entity_id: p1
    name: Spring
`)

	_, err := LoadOverridesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown level")
}

func TestLoadOverridesFile_MissingFields(t *testing.T) {
	path := writeTempYAML(t, `
overrides:
  - level: campaign
    name: Brand
`)

	_, err := LoadOverridesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity_id and name are required")
}

func TestLoadOverridesFile_BadDate(t *testing.T) {
	path := writeTempYAML(t, `
overrides:
  - level: campaign
    entity_id: c1
    name: Brand
    valid_from: 01/02/2026
`)

	_, err := LoadOverridesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid_from")
}

func TestLoadOverridesFile_Empty(t *testing.T) {
	path := writeTempYAML(t, "overrides: []\n")

	got, err := LoadOverridesFile(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}
