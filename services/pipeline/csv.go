package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// checkpoint column names, an externally observable contract: user
// scripts feed and consume these files between stages
const (
	colBibID   = "BibID"
	colTitle   = "Title"
	colISBN    = "ISBN"
	colLCCN    = "LCCN"
	colStatus  = "Status"
	colContent = "Content_505"
	colError   = "Error"
)

var (
	stage1Columns = []string{colBibID, colTitle, colISBN, colLCCN, colError}
	stage2Columns = []string{colBibID, colTitle, colISBN, colLCCN}
	outputColumns = []string{colBibID, colTitle, colISBN, colLCCN, colStatus, colContent}
)

// ConfigError marks unrecoverable configuration problems (missing
// files, missing required columns). These abort the run before any
// network call; everything else is contained per-record.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

func configErrorf(format string, args ...any) ConfigError {
	return ConfigError{Message: fmt.Sprintf(format, args...)}
}

// readInputCSV parses the user-supplied seed CSV. Header matching is
// deliberately loose: any column containing "BibID" and any column
// containing "title" (case-insensitive) will do, since these files
// come straight out of ILS report exports.
func readInputCSV(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, configErrorf("input file %q not found", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, configErrorf("failed to read header of %q: %s", path, err)
	}

	bibidCol := -1
	titleCol := -1
	for i, header := range headers {
		switch {
		case strings.Contains(header, colBibID):
			bibidCol = i
		case strings.Contains(strings.ToLower(header), "title"):
			titleCol = i
		}
	}
	if bibidCol < 0 || titleCol < 0 {
		return nil, configErrorf("could not find BibID and/or title columns in %q", path)
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		if len(row) <= bibidCol || len(row) <= titleCol {
			continue
		}
		bibid := normalizeBibID(strings.TrimSpace(row[bibidCol]))
		if bibid == "" {
			continue
		}
		records = append(records, Record{
			BibID:  bibid,
			Title:  strings.TrimSpace(row[titleCol]),
			Status: StatusPending,
		})
	}

	if len(records) == 0 {
		return nil, configErrorf("no valid records found in %q", path)
	}
	return records, nil
}

// readCheckpointCSV parses a stage checkpoint (or a user-supplied
// stand-in for a skipped stage), failing fast when a column the next
// stage depends on is absent.
func readCheckpointCSV(path string, required []string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, configErrorf("input file %q not found", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, configErrorf("failed to read header of %q: %s", path, err)
	}

	cols := map[string]int{}
	for i, header := range headers {
		cols[strings.TrimSpace(header)] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, configErrorf("required column %q not found in %q", name, path)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		record := Record{
			BibID:      cell(row, colBibID),
			Title:      cell(row, colTitle),
			ISBNs:      splitISBNs(cell(row, colISBN)),
			LCCN:       cell(row, colLCCN),
			Content505: cell(row, colContent),
			Err:        cell(row, colError),
			Status:     StatusPending,
		}
		if status := cell(row, colStatus); status != "" {
			record.Status = Status(status)
		}
		records = append(records, record)
	}
	return records, nil
}

func writeCSV(path string, columns []string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	err = writer.Write(columns)
	if err != nil {
		return err
	}

	for _, record := range records {
		row := make([]string, 0, len(columns))
		for _, col := range columns {
			switch col {
			case colBibID:
				row = append(row, record.BibID)
			case colTitle:
				row = append(row, record.Title)
			case colISBN:
				row = append(row, record.JoinedISBNs())
			case colLCCN:
				row = append(row, record.LCCN)
			case colStatus:
				row = append(row, string(record.Status))
			case colContent:
				row = append(row, record.Content505)
			case colError:
				row = append(row, record.Err)
			}
		}
		err = writer.Write(row)
		if err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
