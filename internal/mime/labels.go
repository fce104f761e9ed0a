package mime

import "strings"

// Folder and category values derived from labels.
const (
	FolderAll       = "all"
	FolderInbox     = "inbox"
	FolderBin       = "bin"
	CategoryPrimary = "primary"
)

// folderLabels is checked in order; the first label present decides the
// folder.
var folderLabels = []struct{ label, folder string }{
	{"Inbox", "inbox"},
	{"Sent", "sent"},
	{"Trash", "bin"},
	{"Spam", "spam"},
	{"Drafts", "drafts"},
	{"Important", "important"},
	{"Starred", "starred"},
	{"Snoozed", "snoozed"},
	{"Scheduled", "scheduled"},
}

var categoryLabels = []struct{ label, category string }{
	{"Category Promotions", "promotions"},
	{"Category Social", "social"},
	{"Category Updates", "updates"},
	{"Category Forums", "forums"},
	{"Category Purchases", "purchases"},
}

// Classification is the mailbox state implied by a label list.
type Classification struct {
	Folder   string
	Category string
	Starred  bool
	Read     bool
}

// ClassifyLabels interprets a comma-separated X-Gmail-Labels value. An empty
// list yields folder all, category primary, unstarred and read.
func ClassifyLabels(raw string) Classification {
	c := Classification{Folder: FolderAll, Category: CategoryPrimary, Read: true}
	if strings.TrimSpace(raw) == "" {
		return c
	}

	set := make(map[string]bool)
	for _, l := range strings.Split(raw, ",") {
		set[strings.TrimSpace(l)] = true
	}

	for _, fl := range folderLabels {
		if set[fl.label] {
			c.Folder = fl.folder
			break
		}
	}
	for _, cl := range categoryLabels {
		if set[cl.label] {
			c.Category = cl.category
			break
		}
	}
	c.Starred = set["Starred"]
	c.Read = !set["Unread"]
	return c
}
