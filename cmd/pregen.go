package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/metro-datahub/catalog-cli/internal/importer"
	"github.com/metro-datahub/catalog-cli/internal/model"
	"github.com/metro-datahub/catalog-cli/internal/pregen"
	"github.com/metro-datahub/catalog-cli/internal/store"
)

var pregenCmd = &cobra.Command{
	Use:   "pregen",
	Short: "Manage pre-generated indicator data",
	Long:  "Commands for importing pre-generated observation files and maintaining their part bindings.",
}

// -- pregen import --

var (
	importAll     bool
	importPending bool
)

var pregenImportCmd = &cobra.Command{
	Use:   "import [slug]",
	Short: "Import pregen files into indicator observations",
	Long:  "Replaces an indicator's observation set from its bound pregen file columns. With --all, imports every pregen-backed indicator.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if importAll == (len(args) == 1) {
			return eris.New("pregen import: pass exactly one of <slug> or --all")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		imp := importer.New(newResolver(), st)

		if !importAll {
			ind, err := st.GetIndicator(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "pregen import")
			}
			result, err := importIndicator(ctx, st, imp, *ind)
			if err != nil {
				return err
			}
			printImportResult(os.Stdout, ind.Slug, result)
			return nil
		}

		return importAllIndicators(ctx, st, imp)
	},
}

// importIndicator runs the import for one indicator and stamps its load state
// when observations were replaced.
func importIndicator(ctx context.Context, st store.Store, imp *importer.Importer, ind model.Indicator) (*importer.Result, error) {
	parts, err := st.ListParts(ctx, ind.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "pregen import: list parts for %s", ind.Slug)
	}

	result, err := imp.Run(ctx, ind, parts)
	if err != nil {
		return nil, err
	}

	if result.Applied {
		if err := st.MarkLoadCompleted(ctx, ind.ID, time.Now().UTC()); err != nil {
			return nil, eris.Wrapf(err, "pregen import: mark load completed for %s", ind.Slug)
		}
	}
	return result, nil
}

// importAllIndicators imports every pregen-backed indicator concurrently.
// Individual failures are logged and counted rather than aborting the batch.
func importAllIndicators(ctx context.Context, st store.Store, imp *importer.Importer) error {
	filter := store.IndicatorFilter{Source: model.SourcePregen}
	if importPending {
		pending := true
		filter.LoadPending = &pending
	}

	indicators, err := st.ListIndicators(ctx, filter)
	if err != nil {
		return eris.Wrap(err, "pregen import: list indicators")
	}
	if len(indicators) == 0 {
		zap.L().Info("no pregen indicators to import")
		return nil
	}

	concurrency := cfg.Pregen.MaxConcurrent
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("importing pregen indicators",
		zap.Int("indicators", len(indicators)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var replaced, skipped, failed atomic.Int64

	for _, ind := range indicators {
		g.Go(func() error {
			log := zap.L().With(zap.String("indicator", ind.Slug))

			result, err := importIndicator(gctx, st, imp, ind)
			if err != nil {
				failed.Add(1)
				log.Error("import failed", zap.Error(err))
				return nil // keep importing the rest
			}

			if result.Applied {
				replaced.Add(1)
			} else {
				skipped.Add(1)
				log.Info("import skipped", zap.String("reason", string(result.Reason)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "pregen import")
	}

	zap.L().Info("pregen import complete",
		zap.Int64("replaced", replaced.Load()),
		zap.Int64("skipped", skipped.Load()),
		zap.Int64("failed", failed.Load()),
	)
	if n := failed.Load(); n > 0 {
		return eris.Errorf("pregen import: %d indicator(s) failed", n)
	}
	return nil
}

// printImportResult writes a one-line human summary of a single import.
func printImportResult(out io.Writer, slug string, r *importer.Result) {
	switch {
	case r.Applied:
		fmt.Fprintf(out, "%s: replaced %d observations\n", slug, r.Count)
	case r.Reason == importer.ReasonNoParts:
		fmt.Fprintf(out, "%s: no part bindings, nothing to import\n", slug)
	case r.Reason == importer.ReasonNoMatchingColumns:
		fmt.Fprintf(out, "%s: no bound columns matched, existing observations kept\n", slug)
	default:
		fmt.Fprintf(out, "%s: not applied (%s)\n", slug, r.Reason)
	}
}

// -- pregen sync --

var syncManifest string

var pregenSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync part bindings from a manifest file",
	Long:  "Replaces each listed indicator's part bindings with the ones declared in the manifest.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		manifest, err := pregen.LoadManifest(syncManifest)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		synced, skipped, err := syncParts(ctx, st, manifest)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "synced part bindings for %d indicator(s), %d unknown slug(s) skipped\n", synced, skipped)
		return nil
	},
}

// syncParts applies the manifest's part bindings. Slugs not present in the
// store are skipped with a warning so a shared manifest can run against
// partially-loaded catalogs.
func syncParts(ctx context.Context, st store.Store, manifest *pregen.Manifest) (synced, skipped int, err error) {
	for _, entry := range manifest.Indicators {
		ind, err := st.GetIndicator(ctx, entry.Slug)
		if errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("manifest slug not in catalog, skipping", zap.String("slug", entry.Slug))
			skipped++
			continue
		}
		if err != nil {
			return synced, skipped, eris.Wrapf(err, "pregen sync: get %s", entry.Slug)
		}

		parts := make([]model.PregenPart, 0, len(entry.Parts))
		for _, p := range entry.Parts {
			parts = append(parts, p.Part(ind.ID))
		}
		if err := st.ReplaceParts(ctx, ind.ID, parts); err != nil {
			return synced, skipped, eris.Wrapf(err, "pregen sync: replace parts for %s", entry.Slug)
		}
		synced++
	}
	return synced, skipped, nil
}

// -- pregen parts --

var pregenPartsCmd = &cobra.Command{
	Use:   "parts <slug>",
	Short: "List an indicator's part bindings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ind, err := st.GetIndicator(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "pregen parts")
		}

		parts, err := st.ListParts(ctx, ind.ID)
		if err != nil {
			return eris.Wrap(err, "pregen parts")
		}
		if len(parts) == 0 {
			fmt.Fprintln(os.Stderr, "No part bindings.")
			return nil
		}

		formatPartsList(os.Stdout, parts)
		return nil
	},
}

// formatPartsList writes a tabular list of part bindings to out.
func formatPartsList(out io.Writer, parts []model.PregenPart) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tCOLUMN\tTIME\tKEY")
	_, _ = fmt.Fprintln(w, "----\t------\t----\t---")
	for _, p := range parts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\n",
			p.FileName, p.ColumnName, p.TimeType, p.TimeValue, p.KeyType)
	}
	_ = w.Flush()
}

func init() {
	pregenImportCmd.Flags().BoolVar(&importAll, "all", false, "import every pregen-backed indicator")
	pregenImportCmd.Flags().BoolVar(&importPending, "pending", false, "with --all, only indicators flagged load-pending")

	pregenSyncCmd.Flags().StringVar(&syncManifest, "manifest", "pregen.yaml", "path to the part-binding manifest")

	pregenCmd.AddCommand(pregenImportCmd)
	pregenCmd.AddCommand(pregenSyncCmd)
	pregenCmd.AddCommand(pregenPartsCmd)
	rootCmd.AddCommand(pregenCmd)
}
