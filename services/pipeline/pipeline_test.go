package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"tocfetch/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const gatsbyOpacPage = `
<html><body><table class="marc_table">
<tr>
	<th class="marc_tag_col">020</th>
	<td class="marc_subfields"><span class="marc_subfield_code">&#8225;a</span>9780743273565 (pbk.)</td>
</tr>
</table></body></html>`

const gatsbyRecordDisplay = `
<html><body><div class="content-container">
<div class="items-wrapper">
	<h3 class="item-title">LCCN</h3>
	<ul class="item-description"><li><span dir="ltr">n99009999</span></li></ul>
</div>
</div></body></html>`

const gatsbyMarcxml = `<?xml version="1.0" encoding="UTF-8"?>
<record xmlns="http://www.loc.gov/MARC21/slim">
	<datafield tag="505" ind1="0" ind2="0">
		<subfield code="a">Chapter 1 -- Chapter 2.</subfield>
	</datafield>
</record>`

// fakeRemotes serves all three upstream services for an end-to-end run.
type fakeRemotes struct {
	opac      *httptest.Server
	catalog   *httptest.Server
	permalink *httptest.Server
}

func newFakeRemotes(t *testing.T) fakeRemotes {
	opac := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/eg/opac/record/12345":
			w.Write([]byte(gatsbyOpacPage))
		default:
			w.Write([]byte("<html><body>no marc</body></html>"))
		}
	}))
	t.Cleanup(opac.Close)

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("searchArg1") == "9780743273565" {
			w.Write([]byte(gatsbyRecordDisplay))
			return
		}
		// empty browse list: nothing found
		w.Write([]byte(`<html><body><table class="browseList"></table></body></html>`))
	}))
	t.Cleanup(catalog.Close)

	permalink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/n99009999/marcxml" {
			w.Write([]byte(gatsbyMarcxml))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(permalink.Close)

	return fakeRemotes{opac: opac, catalog: catalog, permalink: permalink}
}

func (f fakeRemotes) endpoints() Endpoints {
	return Endpoints{
		OpacBaseUrl:      f.opac.URL,
		CatalogBaseUrl:   f.catalog.URL,
		PermalinkBaseUrl: f.permalink.URL,
	}
}

func writeTestCSV(t *testing.T, path string, rows [][]string) {
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	writer := csv.NewWriter(file)
	require.NoError(t, writer.WriteAll(rows))
}

func readTestCSV(t *testing.T, path string) [][]string {
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func newTestPipeline(t *testing.T, opts Options) *Pipeline {
	opts.ConsoleOut = io.Discard
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

func TestRunEndToEnd(t *testing.T) {
	defer telemetry.SetupForTesting(t, "pipeline")()

	remotes := newFakeRemotes(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "input.csv")
	output := filepath.Join(dir, "output.csv")

	writeTestCSV(t, input, [][]string{
		{"BibID", "Title"},
		{"12345", "The Great Gatsby"},
		{"Record #678", "Unknown, a \"quoted\" title"},
	})

	p := newTestPipeline(t, Options{
		Input:      input,
		Output:     output,
		MaxRetries: 1,
		Endpoints:  remotes.endpoints(),
	})
	require.NoError(t, p.Run(context.Background()))

	rows := readTestCSV(t, output)
	require.Equal(t, []string{"BibID", "Title", "ISBN", "LCCN", "Status", "Content_505"}, rows[0])
	require.Len(t, rows, 3, "every input row must survive to the output")

	gatsby := rows[1]
	require.Equal(t, "12345", gatsby[0])
	require.Equal(t, "9780743273565", gatsby[2])
	require.Equal(t, "n99009999", gatsby[3])
	require.Equal(t, "Found", gatsby[4])
	require.Equal(t, "Chapter 1 -- Chapter 2.", gatsby[5])

	unknown := rows[2]
	require.Equal(t, "678", unknown[0], "noisy BibID cells are normalized to digits")
	require.Equal(t, "Unknown, a \"quoted\" title", unknown[1], "csv quoting must round-trip")
	require.Equal(t, "", unknown[3])
	require.Equal(t, "NotFound", unknown[4])
	require.Equal(t, "", unknown[5])

	stats := p.Stats()
	require.Equal(t, 2, stats.TotalRecords)
	require.Equal(t, 1, stats.RecordsWithISBN)
	require.Equal(t, 1, stats.SuccessfulISBNLookups)
	require.Equal(t, 1, stats.Found505)
}

func TestRunAmbiguousTitleLeavesLCCNUnset(t *testing.T) {
	remotes := newFakeRemotes(t)

	// catalog always answers title searches with three candidates
	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("searchArg") != "" {
			w.Write([]byte(`<html><body><table class="browseList">
				<tr><td><a class="browse-result" href="/vwebv/holdingsInfo?bibId=1">a</a></td></tr>
				<tr><td><a class="browse-result" href="/vwebv/holdingsInfo?bibId=2">b</a></td></tr>
				<tr><td><a class="browse-result" href="/vwebv/holdingsInfo?bibId=3">c</a></td></tr>
			</table></body></html>`))
			return
		}
		w.Write([]byte(`<html><body><table class="browseList"></table></body></html>`))
	}))
	t.Cleanup(catalog.Close)

	dir := t.TempDir()
	input := filepath.Join(dir, "stage1.csv")
	output := filepath.Join(dir, "output.csv")
	writeTestCSV(t, input, [][]string{
		{"BibID", "Title", "ISBN", "LCCN", "Error"},
		{"42", "History", "", "", ""},
	})

	endpoints := remotes.endpoints()
	endpoints.CatalogBaseUrl = catalog.URL

	p := newTestPipeline(t, Options{
		Input:      input,
		Output:     output,
		SkipStage1: true,
		MaxRetries: 1,
		Endpoints:  endpoints,
	})
	require.NoError(t, p.Run(context.Background()))

	rows := readTestCSV(t, output)
	require.Len(t, rows, 2)
	require.Equal(t, "", rows[1][3], "ambiguous title search must never set an LCCN")
	require.Equal(t, "NotFound", rows[1][4])
}

func TestRunSkipValidationFailsBeforeNetwork(t *testing.T) {
	var networkCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		networkCalls++
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	input := filepath.Join(dir, "stage2.csv")
	output := filepath.Join(dir, "output.csv")
	// stage 3 needs an LCCN column, this file has none
	writeTestCSV(t, input, [][]string{
		{"BibID", "Title", "ISBN"},
		{"1", "Some book", ""},
	})

	p := newTestPipeline(t, Options{
		Input:      input,
		Output:     output,
		SkipStage1: true,
		SkipStage2: true,
		MaxRetries: 1,
		Endpoints: Endpoints{
			OpacBaseUrl:      server.URL,
			CatalogBaseUrl:   server.URL,
			PermalinkBaseUrl: server.URL,
		},
	})

	err := p.Run(context.Background())
	require.Error(t, err)
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, 0, networkCalls)
}

func TestRunRetriesExhaustedMarksError(t *testing.T) {
	remotes := newFakeRemotes(t)

	var permalinkHits int
	permalink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		permalinkHits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(permalink.Close)

	dir := t.TempDir()
	input := filepath.Join(dir, "stage2.csv")
	output := filepath.Join(dir, "output.csv")
	writeTestCSV(t, input, [][]string{
		{"BibID", "Title", "ISBN", "LCCN"},
		{"1", "Some book", "", "n99009999"},
	})

	endpoints := remotes.endpoints()
	endpoints.PermalinkBaseUrl = permalink.URL

	p := newTestPipeline(t, Options{
		Input:      input,
		Output:     output,
		SkipStage1: true,
		SkipStage2: true,
		MaxRetries: 2,
		Endpoints:  endpoints,
	})
	require.NoError(t, p.Run(context.Background()))

	require.Equal(t, 3, permalinkHits, "one attempt plus two retries")

	rows := readTestCSV(t, output)
	require.Len(t, rows, 2)
	require.Equal(t, "Error", rows[1][4])
	require.Equal(t, "", rows[1][5], "a failed fetch must not leave partial content")
}

func TestRunStage3Idempotent(t *testing.T) {
	remotes := newFakeRemotes(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "stage2.csv")
	writeTestCSV(t, input, [][]string{
		{"BibID", "Title", "ISBN", "LCCN"},
		{"12345", "The Great Gatsby", "9780743273565", "n99009999"},
	})

	var outputs [][][]string
	for i := 0; i < 2; i++ {
		output := filepath.Join(dir, fmt.Sprintf("output%d.csv", i))
		p := newTestPipeline(t, Options{
			Input:      input,
			Output:     output,
			SkipStage1: true,
			SkipStage2: true,
			MaxRetries: 1,
			Endpoints:  remotes.endpoints(),
		})
		require.NoError(t, p.Run(context.Background()))
		outputs = append(outputs, readTestCSV(t, output))
	}
	require.Equal(t, outputs[0], outputs[1])
}

func TestRunCleanTemp(t *testing.T) {
	remotes := newFakeRemotes(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "input.csv")
	output := filepath.Join(dir, "output.csv")
	writeTestCSV(t, input, [][]string{
		{"BibID", "Title"},
		{"12345", "The Great Gatsby"},
	})

	p := newTestPipeline(t, Options{
		Input:      input,
		Output:     output,
		MaxRetries: 1,
		CleanTemp:  true,
		Endpoints:  remotes.endpoints(),
	})
	require.NoError(t, p.Run(context.Background()))

	require.NoFileExists(t, filepath.Join(dir, "temp", "output_stage1.csv"))
	require.NoFileExists(t, filepath.Join(dir, "temp", "output_stage2.csv"))
	require.NoDirExists(t, filepath.Join(dir, "temp"))
	require.FileExists(t, output)
}

func TestRunMissingInput(t *testing.T) {
	remotes := newFakeRemotes(t)
	dir := t.TempDir()

	p := newTestPipeline(t, Options{
		Input:      filepath.Join(dir, "does-not-exist.csv"),
		Output:     filepath.Join(dir, "output.csv"),
		MaxRetries: 1,
		Endpoints:  remotes.endpoints(),
	})
	err := p.Run(context.Background())
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
