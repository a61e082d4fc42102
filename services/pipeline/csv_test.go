package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestReadInputCSVLooseHeaders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	writeTestCSV(t, path, [][]string{
		{"Export BibID Column", "Item title (full)"},
		{"Record #123", "  A title  "},
		{"", "row without a bibid is skipped"},
		{"#456", "Another"},
	})

	records, err := readInputCSV(path)
	require.NoError(t, err)

	want := []Record{
		{BibID: "123", Title: "A title", Status: StatusPending},
		{BibID: "456", Title: "Another", Status: StatusPending},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestReadInputCSVMissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	writeTestCSV(t, path, [][]string{
		{"Identifier", "Name"},
		{"123", "A title"},
	})

	_, err := readInputCSV(path)
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.csv")

	records := []Record{
		{
			BibID:      "123",
			Title:      `Commas, and "quotes", and more`,
			ISBNs:      []string{"9780743273565", "074327356X"},
			LCCN:       "n99009999",
			Status:     StatusFound,
			Content505: "Line one\nLine two",
		},
		{
			BibID:  "456",
			Title:  "Plain",
			Status: StatusNotFound,
		},
	}

	require.NoError(t, writeCSV(path, outputColumns, records))

	got, err := readCheckpointCSV(path, outputColumns)
	require.NoError(t, err)
	if diff := cmp.Diff(records, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCheckpointCSVMissingRequired(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.csv")
	writeTestCSV(t, path, [][]string{
		{"BibID", "Title"},
		{"123", "A title"},
	})

	_, err := readCheckpointCSV(path, []string{colBibID, colTitle, colLCCN})
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestSplitISBNs(t *testing.T) {
	require.Nil(t, splitISBNs("  "))
	require.Equal(t, []string{"123"}, splitISBNs("123"))
	require.Equal(t, []string{"123", "456X"}, splitISBNs("123; 456X"))
	require.Equal(t, []string{"123"}, splitISBNs("123; ; "))
}
