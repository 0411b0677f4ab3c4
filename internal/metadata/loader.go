// Package metadata loads indicator metadata from operator-maintained
// delimited files or workbooks into the catalog store.
package metadata

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/metro-datahub/catalog-cli/internal/model"
	"github.com/metro-datahub/catalog-cli/internal/pregen"
	"github.com/metro-datahub/catalog-cli/internal/store"
)

// LoadResult summarizes one metadata load.
type LoadResult struct {
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}

// Loader upserts indicator metadata rows into the store.
type Loader struct {
	store store.Store
}

// NewLoader creates a Loader writing through the given store.
func NewLoader(st store.Store) *Loader {
	return &Loader{store: st}
}

// Load reads a header-mapped metadata table and upserts one indicator per
// row, keyed by slug (derived from the name when the file has no slug
// column). Rows without a name are skipped with a warning. Columns the
// loader does not know are ignored, so operators can keep extra bookkeeping
// columns in the same file.
func (l *Loader) Load(ctx context.Context, rows pregen.RowReader) (*LoadResult, error) {
	header, err := rows.Header()
	if err == io.EOF {
		return &LoadResult{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "metadata: read header")
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[normalizeColumn(h)] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, eris.New("metadata: file has no name column")
	}

	result := &LoadResult{}
	line := 1
	for {
		row, err := rows.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "metadata: read row")
		}
		line++

		ind := indicatorFromRow(cols, row)
		if ind.Name == "" {
			zap.L().Warn("skipping metadata row without a name", zap.Int("line", line))
			result.Skipped++
			continue
		}

		if _, err := l.store.UpsertIndicator(ctx, ind); err != nil {
			return nil, eris.Wrapf(err, "metadata: upsert indicator %q", ind.Name)
		}
		result.Loaded++
	}

	zap.L().Info("metadata load complete",
		zap.Int("loaded", result.Loaded),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func indicatorFromRow(cols map[string]int, row []string) model.Indicator {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	ind := model.Indicator{
		Name:            cell("name"),
		Slug:            cell("slug"),
		DisplayName:     cell("display_name"),
		FileName:        cell("file_name"),
		ShortDefinition: cell("short_definition"),
		LongDefinition:  cell("long_definition"),
		Purpose:         cell("purpose"),
		Universe:        cell("universe"),
		Limitations:     cell("limitations"),
		RoutineUse:      cell("routine_use"),
		Unit:            cell("unit"),
		DataType:        cell("data_type"),
		Notes:           cell("notes"),
		QueryLevel:      cell("query_level"),
	}

	ind.Min = parseFloat(cell("min"))
	ind.Max = parseFloat(cell("max"))
	ind.SuppressionNumerator = parseInt(cell("suppression_numerator"))
	ind.SuppressionDenominator = parseInt(cell("suppression_denominator"))

	if levels := cell("data_levels"); levels != "" {
		for _, level := range strings.Split(levels, ";") {
			if level = strings.TrimSpace(level); level != "" {
				ind.DataLevels = append(ind.DataLevels, level)
			}
		}
	}
	return ind
}

func normalizeColumn(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

// parseFloat is lenient: metadata files carry blanks and placeholders in
// numeric columns, and those simply mean "not set".
func parseFloat(raw string) *float64 {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return &f
	}
	return nil
}

func parseInt(raw string) *int {
	if n, err := strconv.Atoi(raw); err == nil {
		return &n
	}
	return nil
}
