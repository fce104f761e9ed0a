package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jhillyerd/enmime"

	"github.com/wesm/mboxvault/internal/query"
	"github.com/wesm/mboxvault/internal/testutil"
)

func sampleEmails() []query.Email {
	a := testutil.NewEmail().
		Subject("Quarterly report, final").
		From("Alice", "alice@example.com", "example.com").
		Recipient("bob@corp.test").
		Size(2048).
		Tags("work urgent").
		At(time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)).
		Body("plain <text>").
		Build()
	a.ID = 1
	b := testutil.NewEmail().
		Subject("Héllo wörld!").
		From("", "news@shop.test", "shop.test").
		HTML("<p>Sale</p>").
		Body("Sale").
		Folder("spam").
		Category("promotions").
		NoDate().
		Build()
	b.ID = 2
	return []query.Email{*a, *b}
}

func zipEntries(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	testutil.MustNoErr(t, err, "zip.NewReader")
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		testutil.MustNoErr(t, err, "open entry")
		b, err := io.ReadAll(rc)
		rc.Close()
		testutil.MustNoErr(t, err, "read entry")
		out[f.Name] = string(b)
	}
	return out
}

func entryNames(m map[string]string) []string {
	var names []string
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "JSON", " eml ", "Organized"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) error = %v", s, err)
		}
	}
	if _, err := ParseFormat("pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(pdf) error = %v, want ErrUnknownFormat", err)
	}
	if got := FormatEML.ContentType(); got != "application/zip" {
		t.Errorf("eml content type = %q", got)
	}
	if got := FormatCSV.DefaultFilename(); got != "email_report.csv" {
		t.Errorf("csv filename = %q", got)
	}
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	testutil.MustNoErr(t, CSV(&buf, sampleEmails()), "CSV")

	rows, err := csv.NewReader(&buf).ReadAll()
	testutil.MustNoErr(t, err, "read csv")
	want := [][]string{
		CSVHeader,
		{"1", "alice@example.com", "bob@corp.test", "Quarterly report, final", "Sat, 06 May 2023 07:08:09 +0000", "2048", "inbox", "primary", "work urgent"},
		{"2", "news@shop.test", "recipient@example.com", "Héllo wörld!", "", "1000", "spam", "promotions", ""},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	testutil.MustNoErr(t, JSON(&buf, sampleEmails()), "JSON")

	var got []map[string]any
	testutil.MustNoErr(t, json.Unmarshal(buf.Bytes(), &got), "unmarshal")
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if got[0]["subject"] != "Quarterly report, final" || got[1]["html_body"] != "<p>Sale</p>" {
		t.Errorf("unexpected records: %v", got)
	}

	buf.Reset()
	testutil.MustNoErr(t, JSON(&buf, nil), "JSON empty")
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty export = %q, want []", buf.String())
	}
}

func TestEMLZip(t *testing.T) {
	var buf bytes.Buffer
	n, err := EMLZip(&buf, sampleEmails())
	testutil.MustNoErr(t, err, "EMLZip")
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	entries := zipEntries(t, buf.Bytes())
	testutil.AssertStrings(t, entryNames(entries), "Héllowörld_2.eml", "Quarterlyreportfinal_1.eml")

	env, err := enmime.ReadEnvelope(strings.NewReader(entries["Quarterlyreportfinal_1.eml"]))
	testutil.MustNoErr(t, err, "ReadEnvelope")
	if got := env.GetHeader("Subject"); got != "Quarterly report, final" {
		t.Errorf("Subject = %q", got)
	}
	if got := env.GetHeader("To"); got != "bob@corp.test" {
		t.Errorf("To = %q", got)
	}
	if !strings.Contains(env.Text, "plain <text>") {
		t.Errorf("Text = %q", env.Text)
	}

	env, err = enmime.ReadEnvelope(strings.NewReader(entries["Héllowörld_2.eml"]))
	testutil.MustNoErr(t, err, "ReadEnvelope")
	if got := env.GetHeader("Subject"); got != "Héllo wörld!" {
		t.Errorf("encoded Subject = %q", got)
	}
	if !strings.Contains(env.HTML, "<p>Sale</p>") {
		t.Errorf("HTML = %q", env.HTML)
	}
}

func TestOrganizedZip(t *testing.T) {
	tests := []struct {
		by   GroupBy
		want []string
	}{
		{GroupByYear, []string{"2023/Quarterlyreportfinal_1.html", "Unknown/Héllowörld_2.html"}},
		{GroupByDomain, []string{"example.com/Quarterlyreportfinal_1.html", "shop.test/Héllowörld_2.html"}},
		{GroupByTag, []string{"Untagged/Héllowörld_2.html", "work/Quarterlyreportfinal_1.html"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.by), func(t *testing.T) {
			var buf bytes.Buffer
			_, err := OrganizedZip(&buf, sampleEmails(), tt.by)
			testutil.MustNoErr(t, err, "OrganizedZip")
			testutil.AssertStrings(t, entryNames(zipEntries(t, buf.Bytes())), tt.want...)
		})
	}
}

func TestOrganizedZip_PageContent(t *testing.T) {
	var buf bytes.Buffer
	_, err := OrganizedZip(&buf, sampleEmails(), GroupByYear)
	testutil.MustNoErr(t, err, "OrganizedZip")
	entries := zipEntries(t, buf.Bytes())

	testutil.AssertContainsAll(t, entries["2023/Quarterlyreportfinal_1.html"],
		"<h1>Quarterly report, final</h1>", "From: Alice &lt;alice@example.com&gt;", "plain &lt;text&gt;")
	testutil.AssertContainsAll(t, entries["Unknown/Héllowörld_2.html"], "<p>Sale</p>")
}

func TestParseGroupBy(t *testing.T) {
	if g, err := ParseGroupBy(""); err != nil || g != GroupByYear {
		t.Errorf("ParseGroupBy(\"\") = %q, %v", g, err)
	}
	if g, err := ParseGroupBy("Domain"); err != nil || g != GroupByDomain {
		t.Errorf("ParseGroupBy(Domain) = %q, %v", g, err)
	}
	if _, err := ParseGroupBy("month"); err == nil {
		t.Error("ParseGroupBy(month) succeeded")
	}
}

func TestEntryStem(t *testing.T) {
	e := &query.Email{ID: 42, Subject: strings.Repeat("ab ", 40)}
	if got, want := entryStem(e), strings.Repeat("ab", 15)+"_42"; got != want {
		t.Errorf("entryStem = %q, want %q", got, want)
	}
	if got := entryStem(&query.Email{ID: 7, Subject: "../../"}); got != "_7" {
		t.Errorf("entryStem(path) = %q, want _7", got)
	}
}

func TestToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	stats, err := ToFile(path, FormatCSV, sampleEmails(), Options{})
	testutil.MustNoErr(t, err, "ToFile")

	info, err := os.Stat(path)
	testutil.MustNoErr(t, err, "stat")
	if stats.Count != 2 || stats.Size != info.Size() || stats.Path != path {
		t.Errorf("stats = %+v, file size %d", stats, info.Size())
	}
	testutil.AssertContainsAll(t, FormatExportResult(stats), "Exported 2 email(s)", path)
}

func TestToFile_UnknownFormatRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	_, err := ToFile(path, Format("pdf"), sampleEmails(), Options{})
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("ToFile error = %v, want ErrUnknownFormat", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("partial file left behind: %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"report.pdf", "report.pdf"},
		{"a/b\\c:d", "a_b_c_d"},
		{"what?*<>|\"", "what______"},
		{"tab\there", "tab_here"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatBytesLong(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 << 20, "5.00 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytesLong(tt.in); got != tt.want {
			t.Errorf("FormatBytesLong(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
