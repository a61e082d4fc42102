package marcxml

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const tocRecord = `<?xml version="1.0" encoding="UTF-8"?>
<record xmlns="http://www.loc.gov/MARC21/slim">
	<leader>01234cam a2200301 a 4500</leader>
	<controlfield tag="001">12345678</controlfield>
	<datafield tag="245" ind1="1" ind2="4">
		<subfield code="a">The great Gatsby /</subfield>
		<subfield code="c">F. Scott Fitzgerald.</subfield>
	</datafield>
	<datafield tag="505" ind1="0" ind2="0">
		<subfield code="a">Chapter 1 --</subfield>
		<subfield code="t">Chapter 2 --</subfield>
		<subfield code="r">by the author</subfield>
		<subfield code="x">ignored control subfield</subfield>
	</datafield>
	<datafield tag="505" ind1="8" ind2="0">
		<subfield code="g">Appendix:</subfield>
		<subfield code="t">Notes.</subfield>
	</datafield>
</record>`

const noTocRecord = `<?xml version="1.0" encoding="UTF-8"?>
<record xmlns="http://www.loc.gov/MARC21/slim">
	<datafield tag="245" ind1="1" ind2="0">
		<subfield code="a">Some title</subfield>
	</datafield>
</record>`

const emptyTocRecord = `<?xml version="1.0" encoding="UTF-8"?>
<record xmlns="http://www.loc.gov/MARC21/slim">
	<datafield tag="505" ind1="0" ind2="0">
		<subfield code="a">   </subfield>
	</datafield>
</record>`

func TestExtract505(t *testing.T) {
	content, found, err := Extract505(tocRecord)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Chapter 1 -- Chapter 2 -- by the author\nAppendix: Notes.", content)
}

func TestExtract505Missing(t *testing.T) {
	content, found, err := Extract505(noTocRecord)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, "", content)
}

func TestExtract505PresentButEmpty(t *testing.T) {
	content, found, err := Extract505(emptyTocRecord)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "", content)
}

func TestExtract505UnnamespacedDocument(t *testing.T) {
	content, found, err := Extract505(`<record><datafield tag="505"><subfield code="a">Intro.</subfield></datafield></record>`)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Intro.", content)
}

func TestExtract505Malformed(t *testing.T) {
	_, _, err := Extract505(`<record><datafield tag="505">`)
	require.Error(t, err)
}

func TestFetchRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2002043438/marcxml", r.URL.Path)
		w.Write([]byte(tocRecord))
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{
		BaseUrl:    server.URL,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	client.Fetch.Sleep = func(context.Context, time.Duration) error { return nil }

	body, err := client.FetchRecord(context.Background(), "2002043438")
	require.NoError(t, err)
	require.Equal(t, tocRecord, body)
}
