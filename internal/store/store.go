package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/metro-datahub/catalog-cli/internal/model"
)

// ErrNotFound reports a lookup that matched nothing. Callers test for it
// with errors.Is.
var ErrNotFound = eris.New("not found")

// IndicatorFilter specifies criteria for listing indicators.
type IndicatorFilter struct {
	Source      model.IndicatorSource `json:"source,omitempty"`
	Published   *bool                 `json:"published,omitempty"`
	LoadPending *bool                 `json:"load_pending,omitempty"`
	Search      string                `json:"search,omitempty"`
	Limit       int                   `json:"limit,omitempty"`
	Offset      int                   `json:"offset,omitempty"`
}

// Store defines the persistence interface for the catalog.
type Store interface {
	// Indicators
	UpsertIndicator(ctx context.Context, ind model.Indicator) (*model.Indicator, error)
	GetIndicator(ctx context.Context, slug string) (*model.Indicator, error)
	ListIndicators(ctx context.Context, filter IndicatorFilter) ([]model.Indicator, error)
	SetPublished(ctx context.Context, slugs []string, published bool) (int, error)
	MarkLoadCompleted(ctx context.Context, indicatorID string, at time.Time) error

	// Pregen parts
	ReplaceParts(ctx context.Context, indicatorID string, parts []model.PregenPart) error
	ListParts(ctx context.Context, indicatorID string) ([]model.PregenPart, error)

	// Observations
	ReplaceObservations(ctx context.Context, indicatorID string, obs []model.Observation) (int, error)
	ListObservations(ctx context.Context, indicatorID string) ([]model.Observation, error)
	CountObservations(ctx context.Context, indicatorID string) (int, error)

	// Data sources
	UpsertDataSource(ctx context.Context, ds model.DataSource) (*model.DataSource, error)
	ListDataSources(ctx context.Context) ([]model.DataSource, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
