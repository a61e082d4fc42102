// Package evergreen scrapes ISBN and LCCN identifiers out of the MARC
// HTML view embedded in an Evergreen OPAC record page.
package evergreen

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"tocfetch/lib/fetch"
	"tocfetch/lib/htmlutil"
	"tocfetch/lib/restyutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

type Client struct {
	BaseUrl *url.URL
	Fetch   fetch.Fetcher
}

type ClientOptions struct {
	BaseUrl    string
	Delay      time.Duration
	MaxRetries int
	// raw exchange dumps for --debug, may be nil
	InstrumentOutput restyutil.InstrumentOutput
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(time.Second * 10)
	restyutil.InstrumentClient(client, tracer, opts.InstrumentOutput)

	return &Client{
		BaseUrl: baseUrl,
		Fetch:   fetch.New(client, opts.Delay, opts.MaxRetries),
	}, nil
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Identifiers holds whatever the MARC display yielded. Both slices may
// be empty, that is not an error: the record simply has no 020/010
// fields and stage 2 picks up from there.
type Identifiers struct {
	ISBNs []string
	LCCNs []string
}

// FetchRecord retrieves the OPAC record page for a BibID with the MARC
// HTML view expanded.
func (c *Client) FetchRecord(ctx context.Context, bibid string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "client:FetchRecord")
	defer span.End()

	query := url.Values{}
	query.Set("expand", "marchtml")

	res, err := c.Fetch.Get(ctx, fmt.Sprintf("/eg/opac/record/%s", bibid), query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch record page")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse record html")
		return nil, err
	}
	return doc, nil
}

// Record fetches a BibID's page and extracts its identifiers.
func (c *Client) Record(ctx context.Context, bibid string) (Identifiers, error) {
	doc, err := c.FetchRecord(ctx, bibid)
	if err != nil {
		return Identifiers{}, err
	}
	return ExtractIdentifiers(doc), nil
}

var nonIsbnChars = regexp.MustCompile(`[^\dX]`)

// ExtractIdentifiers walks the embedded MARC display table. Each field
// row carries its tag in a th.marc_tag_col cell; subfield codes sit in
// spans inside td.marc_subfields with the value as the following text
// node.
func ExtractIdentifiers(doc *goquery.Document) Identifiers {
	var ids Identifiers

	doc.Find("th.marc_tag_col").Each(func(_ int, tagCol *goquery.Selection) {
		tag := strings.TrimSpace(tagCol.Text())
		if tag != "020" && tag != "010" {
			return
		}

		row := tagCol.Parent()
		row.Find("td.marc_subfields span").Each(func(_ int, span *goquery.Selection) {
			code := strings.TrimSpace(span.Text())
			if !strings.HasSuffix(code, "a") {
				return
			}
			value := htmlutil.NextSiblingText(span.Nodes[0])
			if value == "" {
				return
			}

			switch tag {
			case "020":
				isbn := nonIsbnChars.ReplaceAllString(value, "")
				if isbn != "" {
					ids.ISBNs = append(ids.ISBNs, isbn)
				}
			case "010":
				// drop trailing qualifiers, keep the first token
				lccn := strings.Fields(value)[0]
				if lccn != "" {
					ids.LCCNs = append(ids.LCCNs, lccn)
				}
			}
		})
	})

	return ids
}
