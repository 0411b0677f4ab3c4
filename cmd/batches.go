package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/metro-datahub/catalog-cli/internal/batch"
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect debug-batch output folders",
	Long:  "Commands for listing batch runs, viewing their logs, and archiving finished runs.",
}

// -- batches list --

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batch runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		infos, err := batch.Collect(cfg.Batch.Dir)
		if err != nil {
			return eris.Wrap(err, "batches list")
		}
		if len(infos) == 0 {
			fmt.Fprintln(os.Stderr, "No batch runs found.")
			return nil
		}

		formatBatchList(os.Stdout, infos)
		return nil
	},
}

// -- batches show --

var batchesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one batch run and its log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := batch.Stat(cfg.Batch.Dir, args[0])
		if err != nil {
			return eris.Wrap(err, "batches show")
		}

		log, err := batch.ReadLog(cfg.Batch.Dir, args[0])
		if err != nil {
			return eris.Wrap(err, "batches show")
		}

		formatBatchList(os.Stdout, []batch.Info{*info})
		if log != "" {
			fmt.Fprintln(os.Stdout)
			fmt.Fprint(os.Stdout, log)
		}
		return nil
	},
}

// -- batches archive --

var batchesArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a finished batch run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := batch.Archive(cfg.Batch.Dir, args[0])
		if err != nil {
			return eris.Wrap(err, "batches archive")
		}
		fmt.Fprintf(os.Stdout, "archived to %s\n", path)
		return nil
	},
}

// formatBatchList writes a tabular list of batch runs to out.
func formatBatchList(out io.Writer, infos []batch.Info) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINDICATORS\tSTARTED\tSTATE")
	_, _ = fmt.Fprintln(w, "--\t----------\t-------\t-----")
	for _, info := range infos {
		state := "running"
		if info.Finished {
			state = "finished"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			info.ID, info.Indicators, info.StartedAt.Format("2006-01-02 15:04"), state)
	}
	_ = w.Flush()
}

func init() {
	batchesCmd.AddCommand(batchesListCmd)
	batchesCmd.AddCommand(batchesShowCmd)
	batchesCmd.AddCommand(batchesArchiveCmd)
	rootCmd.AddCommand(batchesCmd)
}
