// Package importer converts pre-generated delimited files into observation
// records, replacing an indicator's prior observation set wholesale.
package importer

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/metro-datahub/catalog-cli/internal/model"
	"github.com/metro-datahub/catalog-cli/internal/pregen"
)

// ObservationStore is the storage gateway the importer writes through.
// ReplaceObservations must delete the indicator's prior observations and
// insert the new set inside a single transaction.
type ObservationStore interface {
	ReplaceObservations(ctx context.Context, indicatorID string, obs []model.Observation) (int, error)
}

// Importer reads pregen files via a resolver and replaces observations
// through a store. Collaborators are passed in at construction; the importer
// holds no other state and is safe to share across indicators.
type Importer struct {
	resolver pregen.Resolver
	store    ObservationStore
}

// New creates an Importer with its collaborators.
func New(resolver pregen.Resolver, store ObservationStore) *Importer {
	return &Importer{resolver: resolver, store: store}
}

// Run imports all pregen parts for one indicator.
//
// Rows are accumulated fully in memory across every part before anything is
// written, so a failure partway never leaves a partial replace. A file that
// cannot be opened aborts the whole run with a *FileOpenError. A part whose
// column is absent from its file's header contributes zero observations and
// is not an error. The replace is only attempted when at least one
// observation was produced; an all-empty result leaves prior data untouched.
//
// Callers must not run two imports of the same indicator concurrently.
func (imp *Importer) Run(ctx context.Context, ind model.Indicator, parts []model.PregenPart) (*Result, error) {
	if len(parts) == 0 {
		return &Result{Applied: false, Reason: ReasonNoParts}, nil
	}

	var observations []model.Observation
	for _, part := range parts {
		obs, err := imp.readPart(ind, part)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs...)
	}

	if len(observations) == 0 {
		return &Result{Applied: false, Reason: ReasonNoMatchingColumns}, nil
	}

	count, err := imp.store.ReplaceObservations(ctx, ind.ID, observations)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: replace observations for %s", ind.Slug)
	}

	zap.L().Info("replaced indicator observations",
		zap.String("indicator", ind.Slug),
		zap.Int("count", count),
	)
	return &Result{Applied: true, Count: count}, nil
}

func (imp *Importer) readPart(ind model.Indicator, part model.PregenPart) ([]model.Observation, error) {
	rows, err := imp.resolver.Open(part.FileName)
	if err != nil {
		return nil, &FileOpenError{Path: part.FileName, Err: err}
	}
	defer rows.Close()

	header, err := rows.Header()
	if err == io.EOF {
		// No header row at all, so the bound column cannot match.
		zap.L().Debug("pregen file is empty, skipping part",
			zap.String("indicator", ind.Slug),
			zap.String("file", part.FileName),
		)
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "importer: read %s", part.FileName)
	}

	col := columnIndex(header, part.ColumnName)
	if col < 0 {
		zap.L().Debug("column not found in pregen file, skipping part",
			zap.String("indicator", ind.Slug),
			zap.String("file", part.FileName),
			zap.String("column", part.ColumnName),
		)
		return nil, nil
	}

	var observations []model.Observation
	for {
		row, err := rows.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "importer: read %s", part.FileName)
		}

		// Workbook rows can be ragged; a missing trailing cell reads as empty.
		val := ""
		if col < len(row) {
			val = row[col]
		}
		observations = append(observations, model.NewObservation(ind.ID, part, val))
	}
	return observations, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
