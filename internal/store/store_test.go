package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metro-datahub/catalog-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }

func seedIndicator(t *testing.T, s Store, ind model.Indicator) *model.Indicator {
	t.Helper()
	out, err := s.UpsertIndicator(context.Background(), ind)
	require.NoError(t, err)
	return out
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("UpsertAndGetIndicator", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ind, err := s.UpsertIndicator(ctx, model.Indicator{
			Name:            "Teen Births",
			FileName:        "teen_births.csv",
			ShortDefinition: "Births to mothers aged 15-19",
			Min:             floatPtr(0),
			Max:             floatPtr(100),
			Unit:            "rate per 1,000",
			DataLevels:      []string{"county", "tract"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, ind.ID)
		assert.Equal(t, "teen-births", ind.Slug)
		assert.Equal(t, model.SourcePregen, ind.Source())

		got, err := s.GetIndicator(ctx, "teen-births")
		require.NoError(t, err)
		assert.Equal(t, ind.ID, got.ID)
		assert.Equal(t, "Teen Births", got.Name)
		assert.Equal(t, []string{"county", "tract"}, got.DataLevels)
		require.NotNil(t, got.Max)
		assert.InDelta(t, 100, *got.Max, 1e-9)
	})

	t.Run("UpsertIndicatorUpdatesBySlug", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := seedIndicator(t, s, model.Indicator{Name: "Poverty Rate", Notes: "v1"})
		second, err := s.UpsertIndicator(ctx, model.Indicator{Name: "Poverty Rate", Notes: "v2"})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID, "upsert must not create a duplicate")
		assert.Equal(t, "v2", second.Notes)

		all, err := s.ListIndicators(ctx, IndicatorFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("GetIndicatorNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetIndicator(context.Background(), "nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListIndicatorsBySource", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedIndicator(t, s, model.Indicator{Name: "Pregen One", FileName: "one.csv"})
		seedIndicator(t, s, model.Indicator{Name: "Core One"})

		pregen, err := s.ListIndicators(ctx, IndicatorFilter{Source: model.SourcePregen})
		require.NoError(t, err)
		require.Len(t, pregen, 1)
		assert.Equal(t, "Pregen One", pregen[0].Name)

		core, err := s.ListIndicators(ctx, IndicatorFilter{Source: model.SourceCore})
		require.NoError(t, err)
		require.Len(t, core, 1)
		assert.Equal(t, "Core One", core[0].Name)
	})

	t.Run("ListIndicatorsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedIndicator(t, s, model.Indicator{Name: "Published A", Published: true})
		seedIndicator(t, s, model.Indicator{Name: "Draft B", Notes: "needs review"})

		published, err := s.ListIndicators(ctx, IndicatorFilter{Published: boolPtr(true)})
		require.NoError(t, err)
		require.Len(t, published, 1)
		assert.Equal(t, "Published A", published[0].Name)

		found, err := s.ListIndicators(ctx, IndicatorFilter{Search: "review"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "Draft B", found[0].Name)

		limited, err := s.ListIndicators(ctx, IndicatorFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("SetPublished", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedIndicator(t, s, model.Indicator{Name: "A"})
		seedIndicator(t, s, model.Indicator{Name: "B"})
		seedIndicator(t, s, model.Indicator{Name: "C"})

		n, err := s.SetPublished(ctx, []string{"a", "b"}, true)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := s.GetIndicator(ctx, "a")
		require.NoError(t, err)
		assert.True(t, got.Published)

		got, err = s.GetIndicator(ctx, "c")
		require.NoError(t, err)
		assert.False(t, got.Published)

		n, err = s.SetPublished(ctx, []string{"a"}, false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.SetPublished(ctx, nil, true)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("MarkLoadCompleted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ind := seedIndicator(t, s, model.Indicator{Name: "Loaded", LoadPending: true})

		at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.MarkLoadCompleted(ctx, ind.ID, at))

		got, err := s.GetIndicator(ctx, ind.Slug)
		require.NoError(t, err)
		assert.False(t, got.LoadPending)
		require.NotNil(t, got.LastLoadCompleted)
		assert.WithinDuration(t, at, *got.LastLoadCompleted, time.Second)

		err = s.MarkLoadCompleted(ctx, "missing-id", at)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("ReplaceAndListParts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ind := seedIndicator(t, s, model.Indicator{Name: "With Parts", FileName: "x.csv"})

		parts := []model.PregenPart{
			{TimeType: "year", TimeValue: "2019", KeyType: "county", ColumnName: "rate", FileName: "a.csv"},
			{TimeType: "year", TimeValue: "2020", KeyType: "county", ColumnName: "rate", FileName: "b.csv"},
		}
		require.NoError(t, s.ReplaceParts(ctx, ind.ID, parts))

		got, err := s.ListParts(ctx, ind.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, ind.ID, got[0].IndicatorID)
		assert.NotEmpty(t, got[0].ID)

		// Replacing again swaps the set, never accumulates.
		require.NoError(t, s.ReplaceParts(ctx, ind.ID, parts[:1]))
		got, err = s.ListParts(ctx, ind.ID)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("ReplaceObservations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ind := seedIndicator(t, s, model.Indicator{Name: "Obs", FileName: "x.csv"})

		obs := []model.Observation{
			{TimeType: "year", TimeKey: "2019", KeyUnitType: "county", KeyValue: "12.5", DataType: model.DataTypeNumeric, Numeric: floatPtr(12.5)},
			{TimeType: "year", TimeKey: "2019", KeyUnitType: "county", KeyValue: "n/a", DataType: model.DataTypeString, String: strPtr("n/a")},
		}

		n, err := s.ReplaceObservations(ctx, ind.ID, obs)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		count, err := s.CountObservations(ctx, ind.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		got, err := s.ListObservations(ctx, ind.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)

		numeric := got[0]
		assert.Equal(t, model.DataTypeNumeric, numeric.DataType)
		require.NotNil(t, numeric.Numeric)
		assert.InDelta(t, 12.5, *numeric.Numeric, 1e-9)
		assert.Nil(t, numeric.String)

		str := got[1]
		assert.Equal(t, model.DataTypeString, str.DataType)
		require.NotNil(t, str.String)
		assert.Equal(t, "n/a", *str.String)
		assert.Nil(t, str.Numeric)
	})

	t.Run("ReplaceObservationsIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ind := seedIndicator(t, s, model.Indicator{Name: "Idem", FileName: "x.csv"})

		obs := []model.Observation{
			{TimeKey: "2019", KeyValue: "1", DataType: model.DataTypeNumeric, Numeric: floatPtr(1)},
			{TimeKey: "2019", KeyValue: "2", DataType: model.DataTypeNumeric, Numeric: floatPtr(2)},
			{TimeKey: "2019", KeyValue: "3", DataType: model.DataTypeNumeric, Numeric: floatPtr(3)},
		}

		_, err := s.ReplaceObservations(ctx, ind.ID, obs)
		require.NoError(t, err)
		_, err = s.ReplaceObservations(ctx, ind.ID, obs)
		require.NoError(t, err)

		count, err := s.CountObservations(ctx, ind.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, count, "replace must not accumulate duplicates")
	})

	t.Run("ReplaceObservationsScopedToIndicator", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := seedIndicator(t, s, model.Indicator{Name: "A", FileName: "a.csv"})
		b := seedIndicator(t, s, model.Indicator{Name: "B", FileName: "b.csv"})

		_, err := s.ReplaceObservations(ctx, a.ID, []model.Observation{
			{TimeKey: "2019", KeyValue: "1", DataType: model.DataTypeNumeric, Numeric: floatPtr(1)},
		})
		require.NoError(t, err)
		_, err = s.ReplaceObservations(ctx, b.ID, []model.Observation{
			{TimeKey: "2019", KeyValue: "2", DataType: model.DataTypeNumeric, Numeric: floatPtr(2)},
			{TimeKey: "2019", KeyValue: "3", DataType: model.DataTypeNumeric, Numeric: floatPtr(3)},
		})
		require.NoError(t, err)

		countA, err := s.CountObservations(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, countA, "another indicator's replace must not touch this one")

		countB, err := s.CountObservations(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, countB)
	})

	t.Run("DataSources", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ds, err := s.UpsertDataSource(ctx, model.DataSource{ShortName: "ACS", Name: "American Community Survey"})
		require.NoError(t, err)
		assert.NotEmpty(t, ds.ID)

		updated, err := s.UpsertDataSource(ctx, model.DataSource{ShortName: "ACS", Name: "ACS 5-Year", URL: "https://census.gov"})
		require.NoError(t, err)
		assert.Equal(t, ds.ID, updated.ID)
		assert.Equal(t, "ACS 5-Year", updated.Name)

		all, err := s.ListDataSources(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
