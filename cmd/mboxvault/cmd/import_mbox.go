package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/importer"
	"github.com/wesm/mboxvault/internal/importer/mboxzip"
	"github.com/wesm/mboxvault/internal/store"
)

var (
	importMboxWorkers    int
	importMboxNoProgress bool
)

var importMboxCmd = &cobra.Command{
	Use:   "import-mbox <export-file>...",
	Short: "Import mbox files into the archive",
	Long: `Import one or more mbox files into the archive.

Each argument may be a plain .mbox file or a Google Takeout .zip containing
one or more .mbox files. Archives are extracted once into the cache
directory and reused on later runs.

Every file is imported in a single transaction: it lands completely or not
at all. Messages already in the archive (same Message-ID) are skipped, so
re-importing a growing export only adds the new mail.

Examples:
  mboxvault init-db
  mboxvault import-mbox ~/Downloads/All\ mail\ Including\ Spam\ and\ Trash.mbox
  mboxvault import-mbox ~/Downloads/takeout-20240101.zip --workers 4`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		showProgress := !importMboxNoProgress && stderrIsTerminal()
		out := cmd.OutOrStdout()

		var failed int
		for _, path := range args {
			var progress importer.ProgressFunc
			if showProgress {
				progress = progressPrinter(cmd.ErrOrStderr(), path)
			}
			sum, err := importExport(cmd.Context(), s, path, progress)
			if showProgress {
				fmt.Fprint(cmd.ErrOrStderr(), "\r\033[K")
			}
			if err != nil {
				if cmd.Context().Err() != nil {
					fmt.Fprintln(out, "Import interrupted; the current file was rolled back.")
					return context.Canceled
				}
				failed++
				fmt.Fprintf(out, "Import failed: %s\n  %v\n", path, err)
				continue
			}
			printSummary(out, sum)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d imports failed", failed, len(args))
		}
		return nil
	},
}

// importExport imports path, extracting a Takeout archive first. Each mbox
// inside an archive is its own transaction; the returned summary is their
// sum, and on error it covers the files committed before the failure.
func importExport(ctx context.Context, s *store.Store, path string, progress importer.ProgressFunc) (*importer.Summary, error) {
	files, err := mboxzip.Resolve(path, cfg.CacheDir(), logger)
	if err != nil {
		return nil, err
	}

	workers := cfg.Import.Workers
	if importMboxWorkers > 0 {
		workers = importMboxWorkers
	}

	total := &importer.Summary{Path: path}
	start := time.Now()
	for _, f := range files {
		sum, err := importer.ImportMbox(ctx, s, f, importer.MboxImportOptions{
			Workers:          workers,
			ProgressInterval: cfg.Import.ProgressInterval,
			MaxMessageBytes:  cfg.Import.MaxMessageBytes,
			Progress:         progress,
			Logger:           logger,
		})
		if err != nil {
			total.Duration = time.Since(start)
			return total, err
		}
		total.Total += sum.Total
		total.Processed += sum.Processed
		total.Imported += sum.Imported
		total.Duplicates += sum.Duplicates
		total.Failed += sum.Failed
	}
	total.Duration = time.Since(start)
	return total, nil
}

func progressPrinter(w io.Writer, path string) importer.ProgressFunc {
	return func(processed, total int) {
		pct := 0
		if total > 0 {
			pct = processed * 100 / total
		}
		fmt.Fprintf(w, "\r\033[K%s: %d/%d messages (%d%%)", truncate(path, 40), processed, total, pct)
	}
}

func printSummary(out io.Writer, sum *importer.Summary) {
	if sum.Failed > 0 {
		fmt.Fprintln(out, "Import complete (with errors).")
	} else {
		fmt.Fprintln(out, "Import complete.")
	}
	fmt.Fprintf(out, "  File:           %s\n", sum.Path)
	fmt.Fprintf(out, "  Processed:      %d messages\n", sum.Processed)
	fmt.Fprintf(out, "  Imported:       %d messages\n", sum.Imported)
	fmt.Fprintf(out, "  Duplicates:     %d messages\n", sum.Duplicates)
	fmt.Fprintf(out, "  Failed:         %d messages\n", sum.Failed)
	fmt.Fprintf(out, "  Duration:       %s\n", sum.Duration.Round(time.Millisecond))
}

func init() {
	rootCmd.AddCommand(importMboxCmd)

	importMboxCmd.Flags().IntVar(&importMboxWorkers, "workers", 0, "Messages normalized in parallel (default from config)")
	importMboxCmd.Flags().BoolVar(&importMboxNoProgress, "no-progress", false, "Do not print progress")
}
