package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/wesm/mboxvault/internal/query"
)

// CSVHeader is the first row of every CSV export.
var CSVHeader = []string{"ID", "From", "To", "Subject", "Date", "Size", "Folder", "Category", "Tags"}

// CSV writes one row per email: id, sender address, recipients, subject,
// the verbatim date header, size in bytes, folder, category and tags.
func CSV(w io.Writer, emails []query.Email) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range emails {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.SenderAddr,
			e.Recipient,
			e.Subject,
			e.DateStr,
			strconv.FormatInt(e.SizeBytes, 10),
			e.Folder,
			e.Category,
			e.Tags,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// JSON writes the full records as an indented JSON array. An empty result
// is written as [].
func JSON(w io.Writer, emails []query.Email) error {
	if emails == nil {
		emails = []query.Email{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(emails); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
