package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/metro-datahub/catalog-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS indicators (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	slug                    TEXT NOT NULL UNIQUE,
	display_name            TEXT NOT NULL DEFAULT '',
	file_name               TEXT NOT NULL DEFAULT '',
	short_definition        TEXT NOT NULL DEFAULT '',
	long_definition         TEXT NOT NULL DEFAULT '',
	purpose                 TEXT NOT NULL DEFAULT '',
	universe                TEXT NOT NULL DEFAULT '',
	limitations             TEXT NOT NULL DEFAULT '',
	routine_use             TEXT NOT NULL DEFAULT '',
	min_value               REAL,
	max_value               REAL,
	unit                    TEXT NOT NULL DEFAULT '',
	data_type               TEXT NOT NULL DEFAULT '',
	notes                   TEXT NOT NULL DEFAULT '',
	data_levels             TEXT NOT NULL DEFAULT '[]',
	query_level             TEXT NOT NULL DEFAULT '',
	suppression_numerator   INTEGER,
	suppression_denominator INTEGER,
	published               INTEGER NOT NULL DEFAULT 0,
	visible_in_all_lists    INTEGER NOT NULL DEFAULT 0,
	load_pending            INTEGER NOT NULL DEFAULT 0,
	last_load_completed     DATETIME,
	last_audited            DATETIME,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pregen_parts (
	id           TEXT PRIMARY KEY,
	indicator_id TEXT NOT NULL REFERENCES indicators(id),
	time_type    TEXT NOT NULL DEFAULT '',
	time_value   TEXT NOT NULL DEFAULT '',
	key_type     TEXT NOT NULL DEFAULT '',
	column_name  TEXT NOT NULL,
	file_name    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	id            TEXT PRIMARY KEY,
	indicator_id  TEXT NOT NULL REFERENCES indicators(id),
	time_type     TEXT NOT NULL DEFAULT '',
	time_key      TEXT NOT NULL DEFAULT '',
	key_unit_type TEXT NOT NULL DEFAULT '',
	key_value     TEXT NOT NULL DEFAULT '',
	data_type     TEXT NOT NULL,
	numeric_value REAL,
	string_value  TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS data_sources (
	id         TEXT PRIMARY KEY,
	short_name TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	notes      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_indicators_published ON indicators(published);
CREATE INDEX IF NOT EXISTS idx_pregen_parts_indicator ON pregen_parts(indicator_id);
CREATE INDEX IF NOT EXISTS idx_observations_indicator ON observations(indicator_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const indicatorColumns = `id, name, slug, display_name, file_name, short_definition, long_definition,
	purpose, universe, limitations, routine_use, min_value, max_value, unit, data_type, notes,
	data_levels, query_level, suppression_numerator, suppression_denominator,
	published, visible_in_all_lists, load_pending, last_load_completed, last_audited,
	created_at, updated_at`

func (s *SQLiteStore) UpsertIndicator(ctx context.Context, ind model.Indicator) (*model.Indicator, error) {
	if ind.Slug == "" {
		ind.Slug = model.Slugify(ind.Name)
	}
	if ind.Slug == "" {
		return nil, eris.New("sqlite: indicator needs a name or slug")
	}
	id := ind.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	levelsJSON, err := json.Marshal(ind.DataLevels)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal data levels")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO indicators (
			id, name, slug, display_name, file_name, short_definition, long_definition,
			purpose, universe, limitations, routine_use, min_value, max_value, unit, data_type, notes,
			data_levels, query_level, suppression_numerator, suppression_denominator,
			published, visible_in_all_lists, load_pending, last_audited, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			display_name = excluded.display_name,
			file_name = excluded.file_name,
			short_definition = excluded.short_definition,
			long_definition = excluded.long_definition,
			purpose = excluded.purpose,
			universe = excluded.universe,
			limitations = excluded.limitations,
			routine_use = excluded.routine_use,
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			unit = excluded.unit,
			data_type = excluded.data_type,
			notes = excluded.notes,
			data_levels = excluded.data_levels,
			query_level = excluded.query_level,
			suppression_numerator = excluded.suppression_numerator,
			suppression_denominator = excluded.suppression_denominator,
			last_audited = excluded.last_audited,
			updated_at = excluded.updated_at`,
		id, ind.Name, ind.Slug, ind.DisplayName, ind.FileName, ind.ShortDefinition, ind.LongDefinition,
		ind.Purpose, ind.Universe, ind.Limitations, ind.RoutineUse,
		nullFloat(ind.Min), nullFloat(ind.Max), ind.Unit, ind.DataType, ind.Notes,
		string(levelsJSON), ind.QueryLevel, nullInt(ind.SuppressionNumerator), nullInt(ind.SuppressionDenominator),
		ind.Published, ind.VisibleInAllLists, ind.LoadPending, nullTime(ind.LastAudited), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert indicator %s", ind.Slug)
	}

	return s.GetIndicator(ctx, ind.Slug)
}

func (s *SQLiteStore) GetIndicator(ctx context.Context, slug string) (*model.Indicator, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+indicatorColumns+` FROM indicators WHERE slug = ?`, slug)
	ind, err := scanIndicator(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: indicator %s", slug)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get indicator %s", slug)
	}
	return ind, nil
}

func (s *SQLiteStore) ListIndicators(ctx context.Context, filter IndicatorFilter) ([]model.Indicator, error) {
	query := `SELECT ` + indicatorColumns + ` FROM indicators WHERE 1=1`
	var args []any

	switch filter.Source {
	case model.SourcePregen:
		query += ` AND file_name <> ''`
	case model.SourceCore:
		query += ` AND file_name = ''`
	}
	if filter.Published != nil {
		query += ` AND published = ?`
		args = append(args, *filter.Published)
	}
	if filter.LoadPending != nil {
		query += ` AND load_pending = ?`
		args = append(args, *filter.LoadPending)
	}
	if filter.Search != "" {
		query += ` AND (name LIKE ? OR short_definition LIKE ? OR long_definition LIKE ? OR notes LIKE ? OR file_name LIKE ?)`
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern, pattern, pattern)
	}
	query += ` ORDER BY name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list indicators")
	}
	defer rows.Close()

	var indicators []model.Indicator
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan indicator")
		}
		indicators = append(indicators, *ind)
	}
	return indicators, eris.Wrap(rows.Err(), "sqlite: list indicators iterate")
}

func (s *SQLiteStore) SetPublished(ctx context.Context, slugs []string, published bool) (int, error) {
	if len(slugs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(slugs)), ", ")
	args := make([]any, 0, len(slugs)+2)
	args = append(args, published, time.Now().UTC())
	for _, slug := range slugs {
		args = append(args, slug)
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE indicators SET published = ?, updated_at = ? WHERE slug IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: set published")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: set published rows affected")
}

func (s *SQLiteStore) MarkLoadCompleted(ctx context.Context, indicatorID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE indicators SET load_pending = 0, last_load_completed = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), indicatorID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark load completed %s", indicatorID)
	}
	return checkRowsAffected(res, "indicator", indicatorID)
}

func (s *SQLiteStore) ReplaceParts(ctx context.Context, indicatorID string, parts []model.PregenPart) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace parts")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pregen_parts WHERE indicator_id = ?`, indicatorID); err != nil {
		return eris.Wrapf(err, "sqlite: delete parts for %s", indicatorID)
	}

	for _, p := range parts {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pregen_parts (id, indicator_id, time_type, time_value, key_type, column_name, file_name)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, indicatorID, p.TimeType, p.TimeValue, p.KeyType, p.ColumnName, p.FileName,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert part for %s", indicatorID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace parts")
}

func (s *SQLiteStore) ListParts(ctx context.Context, indicatorID string) ([]model.PregenPart, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, indicator_id, time_type, time_value, key_type, column_name, file_name
		 FROM pregen_parts WHERE indicator_id = ? ORDER BY file_name, column_name, time_value`,
		indicatorID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list parts for %s", indicatorID)
	}
	defer rows.Close()

	var parts []model.PregenPart
	for rows.Next() {
		var p model.PregenPart
		if err := rows.Scan(&p.ID, &p.IndicatorID, &p.TimeType, &p.TimeValue, &p.KeyType, &p.ColumnName, &p.FileName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan part")
		}
		parts = append(parts, p)
	}
	return parts, eris.Wrap(rows.Err(), "sqlite: list parts iterate")
}

// ReplaceObservations deletes the indicator's prior observations and inserts
// the new set in one transaction, so partial writes are never visible.
func (s *SQLiteStore) ReplaceObservations(ctx context.Context, indicatorID string, obs []model.Observation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin replace observations")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE indicator_id = ?`, indicatorID); err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete observations for %s", indicatorID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (id, indicator_id, time_type, time_key, key_unit_type, key_value, data_type, numeric_value, string_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert observation")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, o := range obs {
		id := o.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx,
			id, indicatorID, o.TimeType, o.TimeKey, o.KeyUnitType, o.KeyValue,
			string(o.DataType), nullFloat(o.Numeric), nullString(o.String), now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert observation for %s", indicatorID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit replace observations")
	}
	return len(obs), nil
}

func (s *SQLiteStore) ListObservations(ctx context.Context, indicatorID string) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, indicator_id, time_type, time_key, key_unit_type, key_value, data_type, numeric_value, string_value, created_at
		 FROM observations WHERE indicator_id = ? ORDER BY time_key, key_value`,
		indicatorID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list observations for %s", indicatorID)
	}
	defer rows.Close()

	var observations []model.Observation
	for rows.Next() {
		var o model.Observation
		var numeric sql.NullFloat64
		var str sql.NullString
		if err := rows.Scan(&o.ID, &o.IndicatorID, &o.TimeType, &o.TimeKey, &o.KeyUnitType, &o.KeyValue,
			&o.DataType, &numeric, &str, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		if numeric.Valid {
			o.Numeric = &numeric.Float64
		}
		if str.Valid {
			o.String = &str.String
		}
		observations = append(observations, o)
	}
	return observations, eris.Wrap(rows.Err(), "sqlite: list observations iterate")
}

func (s *SQLiteStore) CountObservations(ctx context.Context, indicatorID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observations WHERE indicator_id = ?`, indicatorID,
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count observations for %s", indicatorID)
}

func (s *SQLiteStore) UpsertDataSource(ctx context.Context, ds model.DataSource) (*model.DataSource, error) {
	if ds.ShortName == "" {
		return nil, eris.New("sqlite: data source needs a short name")
	}
	id := ds.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_sources (id, short_name, name, url, notes) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(short_name) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			notes = excluded.notes`,
		id, ds.ShortName, ds.Name, ds.URL, ds.Notes,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert data source %s", ds.ShortName)
	}

	var out model.DataSource
	err = s.db.QueryRowContext(ctx,
		`SELECT id, short_name, name, url, notes FROM data_sources WHERE short_name = ?`, ds.ShortName,
	).Scan(&out.ID, &out.ShortName, &out.Name, &out.URL, &out.Notes)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get data source %s", ds.ShortName)
	}
	return &out, nil
}

func (s *SQLiteStore) ListDataSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, short_name, name, url, notes FROM data_sources ORDER BY short_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list data sources")
	}
	defer rows.Close()

	var sources []model.DataSource
	for rows.Next() {
		var ds model.DataSource
		if err := rows.Scan(&ds.ID, &ds.ShortName, &ds.Name, &ds.URL, &ds.Notes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan data source")
		}
		sources = append(sources, ds)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list data sources iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanIndicator(row scannable) (*model.Indicator, error) {
	var ind model.Indicator
	var minV, maxV sql.NullFloat64
	var suppNum, suppDen sql.NullInt64
	var levelsJSON string
	var lastLoad, lastAudited sql.NullTime

	err := row.Scan(&ind.ID, &ind.Name, &ind.Slug, &ind.DisplayName, &ind.FileName,
		&ind.ShortDefinition, &ind.LongDefinition, &ind.Purpose, &ind.Universe,
		&ind.Limitations, &ind.RoutineUse, &minV, &maxV, &ind.Unit, &ind.DataType, &ind.Notes,
		&levelsJSON, &ind.QueryLevel, &suppNum, &suppDen,
		&ind.Published, &ind.VisibleInAllLists, &ind.LoadPending, &lastLoad, &lastAudited,
		&ind.CreatedAt, &ind.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if minV.Valid {
		ind.Min = &minV.Float64
	}
	if maxV.Valid {
		ind.Max = &maxV.Float64
	}
	if suppNum.Valid {
		v := int(suppNum.Int64)
		ind.SuppressionNumerator = &v
	}
	if suppDen.Valid {
		v := int(suppDen.Int64)
		ind.SuppressionDenominator = &v
	}
	if lastLoad.Valid {
		ind.LastLoadCompleted = &lastLoad.Time
	}
	if lastAudited.Valid {
		ind.LastAudited = &lastAudited.Time
	}
	if levelsJSON != "" {
		if err := json.Unmarshal([]byte(levelsJSON), &ind.DataLevels); err != nil {
			return nil, eris.Wrap(err, "unmarshal data levels")
		}
	}
	return &ind, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}
