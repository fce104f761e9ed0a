package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/query"
)

var (
	searchFolder string
	searchSort   string
	searchLimit  int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the archive using Gmail-like query syntax",
	Long: `Search your email archive using Gmail-like query syntax.

Supported operators:
  from:        Sender name or address
  to:          Recipient (To, Cc or Bcc)
  domain:      Sender domain (-domain: excludes)
  subject:     Subject text
  in:          Folder (inbox, sent, spam, bin, all, ...)
  category:    Inbox category (primary, social, promotions, updates)
  is:          starred, read, unread, newsletter, deleted
  has:         attachment, links
  filename:    Attachment name
  filetype:    Attachment extension (pdf, docx, ...)
  day:         Weekday (monday, ...)
  before:      Messages before date (YYYY-MM-DD)
  after:       Messages on or after date (YYYY-MM-DD)
  older_than:  Relative date (7d, 2w, 1m, 1y)
  newer_than:  Relative date
  larger:      Size filter (5M, 100K)
  smaller:     Size filter

Bare words and "quoted phrases" perform full-text search; -word excludes.
With no query the newest mail is listed.

Examples:
  mboxvault search from:alice@example.com has:attachment
  mboxvault search subject:meeting after:2024-01-01
  mboxvault search invoice in:inbox is:unread --sort size_desc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := query.ParseSearch(strings.Join(args, " "))
		if err := applySearchFlags(&f); err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		engine := query.NewSQLiteEngine(s, logger)
		results, err := engine.Search(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		out := cmd.OutOrStdout()
		if searchJSON {
			return outputSearchResultsJSON(out, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No emails found.")
			return nil
		}
		return outputSearchResultsTable(out, results)
	},
}

// applySearchFlags lets flags override the scope, order and limit parsed from
// the query string.
func applySearchFlags(f *query.Filter) error {
	if searchFolder != "" {
		folder := strings.ToLower(searchFolder)
		switch folder {
		case "all":
			f.Scope = query.Scope{Mode: query.ScopeAll}
		case "bin", "trash":
			// Everything in the bin is soft-deleted.
			f.Scope = query.Scope{Mode: query.ScopeFolder, Value: "bin"}
			f.IncludeDeleted = true
		default:
			f.Scope = query.Scope{Mode: query.ScopeFolder, Value: folder}
		}
	}
	if searchSort != "" {
		order := query.SortOrder(strings.ToLower(searchSort))
		if !order.Valid() {
			return fmt.Errorf("unknown sort order %q", searchSort)
		}
		f.Sort = order
	}
	if searchLimit < 0 || searchLimit > query.MaxResults {
		return fmt.Errorf("--limit must be between 0 (no limit) and %d", query.MaxResults)
	}
	f.Limit = searchLimit
	return nil
}

func outputSearchResultsTable(out io.Writer, results []query.Email) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tFROM\tSUBJECT\tFOLDER\tSIZE")
	fmt.Fprintln(w, "──\t────\t────\t───────\t──────\t────")

	for _, e := range results {
		date := "-"
		if e.Timestamp > 0 {
			date = truncate(e.DateStr, 16)
		}
		mark := " "
		if !e.IsRead {
			mark = "*"
		}
		fmt.Fprintf(w, "%s%d\t%s\t%s\t%s\t%s\t%s\n",
			mark, e.ID, date, truncate(e.SenderAddr, 30), truncate(e.Subject, 50), e.Folder, formatSize(e.SizeBytes))
	}

	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nShowing %d results\n", len(results))
	return nil
}

func outputSearchResultsJSON(out io.Writer, results []query.Email) error {
	if results == nil {
		results = []query.Email{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVar(&searchFolder, "folder", "", "Restrict to a folder (overrides in:)")
	searchCmd.Flags().StringVar(&searchSort, "sort", "", "Order: date_desc, date_asc, size_desc, subject_asc, links_desc, sender_asc, att_desc")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 50, "Maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output results as JSON")
}
