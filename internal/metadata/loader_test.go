package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metro-datahub/catalog-cli/internal/model"
	"github.com/metro-datahub/catalog-cli/internal/pregen"
	"github.com/metro-datahub/catalog-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func openRows(t *testing.T, content string) pregen.RowReader {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.csv"), []byte(content), 0o644))
	rows, err := pregen.NewDirResolver(dir).Open("metadata.csv")
	require.NoError(t, err)
	t.Cleanup(func() { rows.Close() })
	return rows
}

func TestLoad(t *testing.T) {
	st := newTestStore(t)
	loader := NewLoader(st)

	rows := openRows(t, `name,display_name,file_name,short_definition,min,max,unit,data_levels,suppression_numerator
Teen Births,Teen Births per 1000,teen_births.csv,Births to mothers 15-19,0,1000,rate,county;tract,5
Median Income,,,"Household income, inflation adjusted",,,dollars,county,
`)

	result, err := loader.Load(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Loaded)
	assert.Zero(t, result.Skipped)

	ind, err := st.GetIndicator(context.Background(), "teen-births")
	require.NoError(t, err)
	assert.Equal(t, "Teen Births per 1000", ind.DisplayName)
	assert.Equal(t, model.SourcePregen, ind.Source())
	assert.Equal(t, []string{"county", "tract"}, ind.DataLevels)
	require.NotNil(t, ind.Max)
	assert.InDelta(t, 1000, *ind.Max, 1e-9)
	require.NotNil(t, ind.SuppressionNumerator)
	assert.Equal(t, 5, *ind.SuppressionNumerator)

	ind, err = st.GetIndicator(context.Background(), "median-income")
	require.NoError(t, err)
	assert.Equal(t, model.SourceCore, ind.Source())
	assert.Equal(t, "Household income, inflation adjusted", ind.ShortDefinition)
	assert.Nil(t, ind.Min)
	assert.Nil(t, ind.SuppressionNumerator)
}

func TestLoad_IsIdempotent(t *testing.T) {
	st := newTestStore(t)
	loader := NewLoader(st)

	content := "name,notes\nPoverty Rate,v1\n"
	_, err := loader.Load(context.Background(), openRows(t, content))
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), openRows(t, "name,notes\nPoverty Rate,v2\n"))
	require.NoError(t, err)

	all, err := st.ListIndicators(context.Background(), store.IndicatorFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "v2", all[0].Notes)
}

func TestLoad_SkipsNamelessRows(t *testing.T) {
	st := newTestStore(t)
	loader := NewLoader(st)

	result, err := loader.Load(context.Background(), openRows(t, "name,notes\n,orphan row\nReal One,ok\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Loaded)
	assert.Equal(t, 1, result.Skipped)
}

func TestLoad_UnknownColumnsIgnored(t *testing.T) {
	st := newTestStore(t)
	loader := NewLoader(st)

	result, err := loader.Load(context.Background(), openRows(t, "name,owner_team,jira_ticket\nSome Metric,growth,DH-42\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Loaded)
}

func TestLoad_MissingNameColumn(t *testing.T) {
	loader := NewLoader(newTestStore(t))

	_, err := loader.Load(context.Background(), openRows(t, "slug,notes\nx,y\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name column")
}

func TestLoad_EmptyFile(t *testing.T) {
	loader := NewLoader(newTestStore(t))

	result, err := loader.Load(context.Background(), openRows(t, ""))
	require.NoError(t, err)
	assert.Zero(t, result.Loaded)
}
