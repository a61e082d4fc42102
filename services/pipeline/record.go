package pipeline

import (
	"regexp"
	"strings"
)

// Status is the per-record outcome, set by stages 2 and 3. Per-record
// failures land here instead of aborting the batch.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusFound    Status = "Found"
	StatusNotFound Status = "NotFound"
	StatusError    Status = "Error"
)

// Record is one catalog row flowing through all three stages. Each
// stage enriches it in place and serializes it back to a CSV
// checkpoint; there is no in-memory state across stage boundaries.
type Record struct {
	BibID      string
	Title      string
	ISBNs      []string
	LCCN       string
	Status     Status
	Content505 string

	// stage 1 scrape error message, carried in the stage 1 checkpoint
	// so a later run can tell why identifiers are missing
	Err string
}

const isbnSeparator = "; "

func (r Record) JoinedISBNs() string {
	return strings.Join(r.ISBNs, isbnSeparator)
}

func splitISBNs(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(joined, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

var bibidDigits = regexp.MustCompile(`\d+`)

// normalizeBibID digs the numeric id out of noisy cells like
// "Record #123" exported from the ILS.
func normalizeBibID(raw string) string {
	return bibidDigits.FindString(raw)
}
