package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/metro-datahub/catalog-cli/internal/db"
	"github.com/metro-datahub/catalog-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_indicator":       `SELECT ` + indicatorColumns + ` FROM indicators WHERE slug = $1`,
	"list_parts":          `SELECT id, indicator_id, time_type, time_value, key_type, column_name, file_name FROM pregen_parts WHERE indicator_id = $1 ORDER BY file_name, column_name, time_value`,
	"count_observations":  `SELECT COUNT(*) FROM observations WHERE indicator_id = $1`,
	"delete_observations": `DELETE FROM observations WHERE indicator_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
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
	min_value               DOUBLE PRECISION,
	max_value               DOUBLE PRECISION,
	unit                    TEXT NOT NULL DEFAULT '',
	data_type               TEXT NOT NULL DEFAULT '',
	notes                   TEXT NOT NULL DEFAULT '',
	data_levels             TEXT[] NOT NULL DEFAULT '{}',
	query_level             TEXT NOT NULL DEFAULT '',
	suppression_numerator   INTEGER,
	suppression_denominator INTEGER,
	published               BOOLEAN NOT NULL DEFAULT FALSE,
	visible_in_all_lists    BOOLEAN NOT NULL DEFAULT FALSE,
	load_pending            BOOLEAN NOT NULL DEFAULT FALSE,
	last_load_completed     TIMESTAMPTZ,
	last_audited            TIMESTAMPTZ,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
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
	numeric_value DOUBLE PRECISION,
	string_value  TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
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

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertIndicator(ctx context.Context, ind model.Indicator) (*model.Indicator, error) {
	if ind.Slug == "" {
		ind.Slug = model.Slugify(ind.Name)
	}
	if ind.Slug == "" {
		return nil, eris.New("postgres: indicator needs a name or slug")
	}
	id := ind.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	levels := ind.DataLevels
	if levels == nil {
		levels = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO indicators (
			id, name, slug, display_name, file_name, short_definition, long_definition,
			purpose, universe, limitations, routine_use, min_value, max_value, unit, data_type, notes,
			data_levels, query_level, suppression_numerator, suppression_denominator,
			published, visible_in_all_lists, load_pending, last_audited, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			display_name = EXCLUDED.display_name,
			file_name = EXCLUDED.file_name,
			short_definition = EXCLUDED.short_definition,
			long_definition = EXCLUDED.long_definition,
			purpose = EXCLUDED.purpose,
			universe = EXCLUDED.universe,
			limitations = EXCLUDED.limitations,
			routine_use = EXCLUDED.routine_use,
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value,
			unit = EXCLUDED.unit,
			data_type = EXCLUDED.data_type,
			notes = EXCLUDED.notes,
			data_levels = EXCLUDED.data_levels,
			query_level = EXCLUDED.query_level,
			suppression_numerator = EXCLUDED.suppression_numerator,
			suppression_denominator = EXCLUDED.suppression_denominator,
			last_audited = EXCLUDED.last_audited,
			updated_at = EXCLUDED.updated_at`,
		id, ind.Name, ind.Slug, ind.DisplayName, ind.FileName, ind.ShortDefinition, ind.LongDefinition,
		ind.Purpose, ind.Universe, ind.Limitations, ind.RoutineUse, ind.Min, ind.Max, ind.Unit, ind.DataType, ind.Notes,
		levels, ind.QueryLevel, ind.SuppressionNumerator, ind.SuppressionDenominator,
		ind.Published, ind.VisibleInAllLists, ind.LoadPending, ind.LastAudited, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert indicator %s", ind.Slug)
	}

	return s.GetIndicator(ctx, ind.Slug)
}

func (s *PostgresStore) GetIndicator(ctx context.Context, slug string) (*model.Indicator, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+indicatorColumns+` FROM indicators WHERE slug = $1`, slug)
	ind, err := scanIndicatorPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: indicator %s", slug)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get indicator %s", slug)
	}
	return ind, nil
}

func (s *PostgresStore) ListIndicators(ctx context.Context, filter IndicatorFilter) ([]model.Indicator, error) {
	query := `SELECT ` + indicatorColumns + ` FROM indicators WHERE 1=1`
	var args []any

	switch filter.Source {
	case model.SourcePregen:
		query += ` AND file_name <> ''`
	case model.SourceCore:
		query += ` AND file_name = ''`
	}
	if filter.Published != nil {
		args = append(args, *filter.Published)
		query += ` AND published = ` + placeholder(len(args))
	}
	if filter.LoadPending != nil {
		args = append(args, *filter.LoadPending)
		query += ` AND load_pending = ` + placeholder(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		p := placeholder(len(args))
		query += ` AND (name ILIKE ` + p + ` OR short_definition ILIKE ` + p +
			` OR long_definition ILIKE ` + p + ` OR notes ILIKE ` + p + ` OR file_name ILIKE ` + p + `)`
	}
	query += ` ORDER BY name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT ` + placeholder(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET ` + placeholder(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list indicators")
	}
	defer rows.Close()

	var indicators []model.Indicator
	for rows.Next() {
		ind, err := scanIndicatorPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan indicator")
		}
		indicators = append(indicators, *ind)
	}
	return indicators, eris.Wrap(rows.Err(), "postgres: list indicators iterate")
}

func (s *PostgresStore) SetPublished(ctx context.Context, slugs []string, published bool) (int, error) {
	if len(slugs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE indicators SET published = $1, updated_at = $2 WHERE slug = ANY($3)`,
		published, time.Now().UTC(), slugs,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: set published")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) MarkLoadCompleted(ctx context.Context, indicatorID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE indicators SET load_pending = FALSE, last_load_completed = $1, updated_at = $2 WHERE id = $3`,
		at.UTC(), time.Now().UTC(), indicatorID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark load completed %s", indicatorID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("indicator not found: %s", indicatorID)
	}
	return nil
}

func (s *PostgresStore) ReplaceParts(ctx context.Context, indicatorID string, parts []model.PregenPart) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace parts")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM pregen_parts WHERE indicator_id = $1`, indicatorID); err != nil {
		return eris.Wrapf(err, "postgres: delete parts for %s", indicatorID)
	}

	for _, p := range parts {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO pregen_parts (id, indicator_id, time_type, time_value, key_type, column_name, file_name)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, indicatorID, p.TimeType, p.TimeValue, p.KeyType, p.ColumnName, p.FileName,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert part for %s", indicatorID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace parts")
}

func (s *PostgresStore) ListParts(ctx context.Context, indicatorID string) ([]model.PregenPart, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, indicator_id, time_type, time_value, key_type, column_name, file_name
		 FROM pregen_parts WHERE indicator_id = $1 ORDER BY file_name, column_name, time_value`,
		indicatorID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list parts for %s", indicatorID)
	}
	defer rows.Close()

	var parts []model.PregenPart
	for rows.Next() {
		var p model.PregenPart
		if err := rows.Scan(&p.ID, &p.IndicatorID, &p.TimeType, &p.TimeValue, &p.KeyType, &p.ColumnName, &p.FileName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan part")
		}
		parts = append(parts, p)
	}
	return parts, eris.Wrap(rows.Err(), "postgres: list parts iterate")
}

var observationColumns = []string{
	"id", "indicator_id", "time_type", "time_key", "key_unit_type", "key_value",
	"data_type", "numeric_value", "string_value", "created_at",
}

// ReplaceObservations deletes the indicator's prior observations and COPYs in
// the new set in one transaction, so partial writes are never visible.
func (s *PostgresStore) ReplaceObservations(ctx context.Context, indicatorID string, obs []model.Observation) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin replace observations")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM observations WHERE indicator_id = $1`, indicatorID); err != nil {
		return 0, eris.Wrapf(err, "postgres: delete observations for %s", indicatorID)
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(obs))
	for _, o := range obs {
		id := o.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{
			id, indicatorID, o.TimeType, o.TimeKey, o.KeyUnitType, o.KeyValue,
			string(o.DataType), o.Numeric, o.String, now,
		})
	}

	n, err := db.CopyFrom(ctx, tx, "observations", observationColumns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: copy observations for %s", indicatorID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit replace observations")
	}
	return int(n), nil
}

func (s *PostgresStore) ListObservations(ctx context.Context, indicatorID string) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, indicator_id, time_type, time_key, key_unit_type, key_value, data_type, numeric_value, string_value, created_at
		 FROM observations WHERE indicator_id = $1 ORDER BY time_key, key_value`,
		indicatorID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list observations for %s", indicatorID)
	}
	defer rows.Close()

	var observations []model.Observation
	for rows.Next() {
		var o model.Observation
		if err := rows.Scan(&o.ID, &o.IndicatorID, &o.TimeType, &o.TimeKey, &o.KeyUnitType, &o.KeyValue,
			&o.DataType, &o.Numeric, &o.String, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		observations = append(observations, o)
	}
	return observations, eris.Wrap(rows.Err(), "postgres: list observations iterate")
}

func (s *PostgresStore) CountObservations(ctx context.Context, indicatorID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM observations WHERE indicator_id = $1`, indicatorID,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count observations for %s", indicatorID)
}

func (s *PostgresStore) UpsertDataSource(ctx context.Context, ds model.DataSource) (*model.DataSource, error) {
	if ds.ShortName == "" {
		return nil, eris.New("postgres: data source needs a short name")
	}
	id := ds.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO data_sources (id, short_name, name, url, notes) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (short_name) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			notes = EXCLUDED.notes`,
		id, ds.ShortName, ds.Name, ds.URL, ds.Notes,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert data source %s", ds.ShortName)
	}

	var out model.DataSource
	err = s.pool.QueryRow(ctx,
		`SELECT id, short_name, name, url, notes FROM data_sources WHERE short_name = $1`, ds.ShortName,
	).Scan(&out.ID, &out.ShortName, &out.Name, &out.URL, &out.Notes)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get data source %s", ds.ShortName)
	}
	return &out, nil
}

func (s *PostgresStore) ListDataSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, short_name, name, url, notes FROM data_sources ORDER BY short_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list data sources")
	}
	defer rows.Close()

	var sources []model.DataSource
	for rows.Next() {
		var ds model.DataSource
		if err := rows.Scan(&ds.ID, &ds.ShortName, &ds.Name, &ds.URL, &ds.Notes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan data source")
		}
		sources = append(sources, ds)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list data sources iterate")
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func scanIndicatorPG(row scannable) (*model.Indicator, error) {
	var ind model.Indicator
	err := row.Scan(&ind.ID, &ind.Name, &ind.Slug, &ind.DisplayName, &ind.FileName,
		&ind.ShortDefinition, &ind.LongDefinition, &ind.Purpose, &ind.Universe,
		&ind.Limitations, &ind.RoutineUse, &ind.Min, &ind.Max, &ind.Unit, &ind.DataType, &ind.Notes,
		&ind.DataLevels, &ind.QueryLevel, &ind.SuppressionNumerator, &ind.SuppressionDenominator,
		&ind.Published, &ind.VisibleInAllLists, &ind.LoadPending, &ind.LastLoadCompleted, &ind.LastAudited,
		&ind.CreatedAt, &ind.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ind, nil
}
