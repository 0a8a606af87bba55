package main

import (
	"github.com/spf13/cobra"

	"github.com/meridian-steel/registry-cli/internal/importer"
)

var importSource string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load companies from a CSV or XLSX extract",
	Long:  "Loads company rows from a local file or an http(s)/ftp URL. ZIP archives are extracted first. Rows with invalid ABNs or ABNs already registered are skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		im := importer.New(st, importer.Options{
			TempDir: cfg.Import.TempDir,
			Workers: cfg.Import.Workers,
		})

		_, err = im.Run(ctx, importSource)
		return err
	},
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "file path or URL (required)")
	_ = importCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(importCmd)
}
