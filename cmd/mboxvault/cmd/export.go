package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/export"
	"github.com/wesm/mboxvault/internal/query"
)

var (
	exportOutput  string
	exportGroupBy string
)

var exportCmd = &cobra.Command{
	Use:   "export <format> [query]",
	Short: "Export matching emails as CSV, JSON, EML or a browsable site",
	Long: `Export the emails matching a search query.

Formats:
  csv         One row per email (email_report.csv)
  json        Full records as a JSON array (email_dump.json)
  eml         A zip of .eml files (eml_export.zip)
  organized   A zip of HTML pages grouped into folders (organized_website.zip)

The query uses the same syntax as 'search'. With no query every email
outside the bin is exported, up to 1000 records.

Examples:
  mboxvault export csv from:alice@example.com
  mboxvault export organized in:inbox --group-by domain -o inbox.zip`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(args[0])
		if err != nil {
			return err
		}
		groupBy, err := export.ParseGroupBy(exportGroupBy)
		if err != nil {
			return err
		}
		path := exportOutput
		if path == "" {
			path = format.DefaultFilename()
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		f := query.ParseSearch(strings.Join(args[1:], " "))
		emails, err := query.NewSQLiteEngine(s, logger).Search(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		stats, err := export.ToFile(path, format, emails, export.Options{GroupBy: groupBy})
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		logger.Debug("export written", "format", format, "emails", stats.Count, "bytes", stats.Size)
		fmt.Fprintln(cmd.OutOrStdout(), export.FormatExportResult(stats))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default depends on format)")
	exportCmd.Flags().StringVar(&exportGroupBy, "group-by", "year", "Grouping for organized exports: year, domain or tag")
}
