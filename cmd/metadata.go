package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/metro-datahub/catalog-cli/internal/metadata"
	"github.com/metro-datahub/catalog-cli/internal/pregen"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Load indicator metadata",
}

var metadataFile string

var metadataLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load indicator metadata from a delimited file",
	Long:  "Upserts indicators by slug from a metadata spreadsheet. Rows without a name are skipped, unknown columns are ignored.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path := metadataFile
		if path == "" {
			path = cfg.Metadata.File
		}
		if path == "" {
			return eris.New("metadata load: no file given (use --file or set metadata.file)")
		}

		opts := []pregen.Option{pregen.WithDelimiter(cfg.DelimiterRune())}
		if cfg.Pregen.Charset != "" {
			opts = append(opts, pregen.WithCharset(cfg.Pregen.Charset))
		}
		rows, err := pregen.NewDirResolver(filepath.Dir(path), opts...).Open(filepath.Base(path))
		if err != nil {
			return eris.Wrapf(err, "metadata load: open %s", path)
		}
		defer rows.Close()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		result, err := metadata.NewLoader(st).Load(ctx, rows)
		if err != nil {
			return eris.Wrap(err, "metadata load")
		}

		fmt.Fprintf(os.Stdout, "loaded %d indicator(s), skipped %d row(s)\n", result.Loaded, result.Skipped)
		return nil
	},
}

func init() {
	metadataLoadCmd.Flags().StringVar(&metadataFile, "file", "", "path to the metadata file (csv or xlsx)")

	metadataCmd.AddCommand(metadataLoadCmd)
	rootCmd.AddCommand(metadataCmd)
}
