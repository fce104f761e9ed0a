package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/mime"
	"github.com/wesm/mboxvault/internal/query"
)

var (
	showMessageJSON    bool
	showMessageHeaders bool
)

var showMessageCmd = &cobra.Command{
	Use:   "show-message <id>",
	Short: "Show the full content of one email",
	Long: `Show the full content of one email by its archive ID.

The plain-text body is printed; for HTML-only mail a text rendering of the
HTML is shown instead. Use --json for the complete record.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid email ID %q", args[0])
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := query.NewSQLiteEngine(s, logger).GetEmail(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get email: %w", err)
		}
		if e == nil {
			return fmt.Errorf("email %d not found", id)
		}

		out := cmd.OutOrStdout()
		if showMessageJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(e)
		}
		printEmail(out, e, showMessageHeaders)
		return nil
	},
}

func printEmail(out io.Writer, e *query.Email, withHeaders bool) {
	fmt.Fprintf(out, "From:     %s\n", e.Sender)
	fmt.Fprintf(out, "To:       %s\n", e.Recipient)
	if e.Cc != "" {
		fmt.Fprintf(out, "Cc:       %s\n", e.Cc)
	}
	if e.ReplyTo != "" {
		fmt.Fprintf(out, "Reply-To: %s\n", e.ReplyTo)
	}
	fmt.Fprintf(out, "Subject:  %s\n", e.Subject)
	fmt.Fprintf(out, "Date:     %s\n", e.DateStr)
	fmt.Fprintf(out, "Folder:   %s", e.Folder)
	if e.Folder == "inbox" && e.Category != "" {
		fmt.Fprintf(out, " (%s)", e.Category)
	}
	fmt.Fprintln(out)
	if e.Tags != "" {
		fmt.Fprintf(out, "Tags:     %s\n", strings.Join(e.TagList(), ", "))
	}
	if e.HasAttachment {
		fmt.Fprintf(out, "Attached: %s\n", e.AttachmentNames)
	}

	if withHeaders && len(e.Headers) > 0 {
		fmt.Fprintln(out)
		keys := make([]string, 0, len(e.Headers))
		for k := range e.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%s: %s\n", k, e.Headers[k])
		}
	}

	body := e.Body
	if strings.TrimSpace(body) == "" && e.HTMLBody != "" {
		body = mime.StripHTML(e.HTMLBody)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.TrimRight(body, "\n"))
}

func init() {
	rootCmd.AddCommand(showMessageCmd)

	showMessageCmd.Flags().BoolVar(&showMessageJSON, "json", false, "Output the record as JSON")
	showMessageCmd.Flags().BoolVar(&showMessageHeaders, "headers", false, "Also print the stored headers")
}
