package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/metro-datahub/catalog-cli/internal/model"
	"github.com/metro-datahub/catalog-cli/internal/store"
)

var indicatorsCmd = &cobra.Command{
	Use:   "indicators",
	Short: "Browse and publish catalog indicators",
	Long:  "Commands for listing indicators, inspecting their metadata, and flipping publication state.",
}

// -- indicators list --

var indicatorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indicators",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		source, _ := cmd.Flags().GetString("source")
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := store.IndicatorFilter{
			Source: model.IndicatorSource(source),
			Search: search,
			Limit:  limit,
			Offset: offset,
		}
		if cmd.Flags().Changed("published") {
			published, _ := cmd.Flags().GetBool("published")
			filter.Published = &published
		}
		if cmd.Flags().Changed("load-pending") {
			pending, _ := cmd.Flags().GetBool("load-pending")
			filter.LoadPending = &pending
		}

		indicators, err := st.ListIndicators(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "indicators list")
		}

		if len(indicators) == 0 {
			fmt.Fprintln(os.Stderr, "No indicators found.")
			return nil
		}

		formatIndicatorsList(os.Stdout, indicators)
		return nil
	},
}

// -- indicators show --

var indicatorsShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Show full indicator metadata",
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
			return eris.Wrap(err, "indicators show")
		}

		count, err := st.CountObservations(ctx, ind.ID)
		if err != nil {
			return eris.Wrap(err, "indicators show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			model.Indicator
			Observations int `json:"observations"`
		}{*ind, count})
	},
}

// -- indicators publish / unpublish --

var indicatorsPublishCmd = &cobra.Command{
	Use:   "publish <slug>...",
	Short: "Publish indicators",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPublished(cmd, args, true)
	},
}

var indicatorsUnpublishCmd = &cobra.Command{
	Use:   "unpublish <slug>...",
	Short: "Unpublish indicators",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPublished(cmd, args, false)
	},
}

func setPublished(cmd *cobra.Command, slugs []string, published bool) error {
	ctx := cmd.Context()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	n, err := st.SetPublished(ctx, slugs, published)
	if err != nil {
		return eris.Wrap(err, "indicators publish")
	}

	verb := "published"
	if !published {
		verb = "unpublished"
	}
	fmt.Fprintf(os.Stdout, "%s %d of %d indicator(s)\n", verb, n, len(slugs))
	return nil
}

// formatIndicatorsList writes a tabular list of indicators to out.
func formatIndicatorsList(out io.Writer, indicators []model.Indicator) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SLUG\tNAME\tSOURCE\tPUBLISHED\tLAST_LOAD")
	_, _ = fmt.Fprintln(w, "----\t----\t------\t---------\t---------")

	for _, ind := range indicators {
		name := ind.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}

		lastLoad := ""
		if ind.LastLoadCompleted != nil {
			lastLoad = ind.LastLoadCompleted.Format("2006-01-02 15:04")
		}
		if ind.LoadPending {
			lastLoad += " (pending)"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			ind.Slug, name, ind.Source(), ind.Published, lastLoad)
	}
	_ = w.Flush()
}

func init() {
	indicatorsListCmd.Flags().String("source", "", "filter by source (pregen, core)")
	indicatorsListCmd.Flags().Bool("published", false, "filter by publication state")
	indicatorsListCmd.Flags().Bool("load-pending", false, "filter by load-pending flag")
	indicatorsListCmd.Flags().String("search", "", "substring match on name, definitions, notes, file name")
	indicatorsListCmd.Flags().Int("limit", 100, "max number of indicators to display")
	indicatorsListCmd.Flags().Int("offset", 0, "number of indicators to skip")

	indicatorsCmd.AddCommand(indicatorsListCmd)
	indicatorsCmd.AddCommand(indicatorsShowCmd)
	indicatorsCmd.AddCommand(indicatorsPublishCmd)
	indicatorsCmd.AddCommand(indicatorsUnpublishCmd)
	rootCmd.AddCommand(indicatorsCmd)
}
