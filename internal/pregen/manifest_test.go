package pregen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestYAML = `
pregen:
  indicators:
    - slug: teen-births
      parts:
        - time_type: year
          time_value: "2019"
          key_type: county
          column_name: rate
          file_name: teen_births.csv
        - time_type: year
          time_value: "2020"
          key_type: county
          column_name: rate
          file_name: teen_births_2020.csv
    - slug: median-income
      parts:
        - time_type: year
          time_value: "2019"
          key_type: tract
          column_name: income
          file_name: income.xlsx
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, manifestYAML))
	require.NoError(t, err)

	require.Len(t, m.Indicators, 2)
	assert.Equal(t, "teen-births", m.Indicators[0].Slug)
	require.Len(t, m.Indicators[0].Parts, 2)

	part := m.Indicators[0].Parts[0].Part("ind-1")
	assert.Equal(t, "ind-1", part.IndicatorID)
	assert.Equal(t, "year", part.TimeType)
	assert.Equal(t, "2019", part.TimeValue)
	assert.Equal(t, "county", part.KeyType)
	assert.Equal(t, "rate", part.ColumnName)
	assert.Equal(t, "teen_births.csv", part.FileName)
}

func TestLoadManifest_MissingSlug(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, `
pregen:
  indicators:
    - parts:
        - column_name: rate
          file_name: f.csv
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty slug")
}

func TestLoadManifest_MissingColumn(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, `
pregen:
  indicators:
    - slug: x
      parts:
        - time_type: year
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column_name or file_name")
}

func TestLoadManifest_FileMissing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadManifest_BadYAML(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "pregen: [whoops"))
	require.Error(t, err)
}
