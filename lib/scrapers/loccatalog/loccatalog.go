// Package loccatalog searches the Library of Congress catalog
// (catalog.loc.gov) for a record's LCCN, by ISBN keyword search or by
// title keyword search.
package loccatalog

import (
	"bytes"
	"context"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"time"
	"tocfetch/lib/fetch"
	"tocfetch/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
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

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)
	restyutil.InstrumentClient(client, tracer, opts.InstrumentOutput)

	return &Client{
		BaseUrl: baseUrl,
		Fetch:   fetch.New(client, opts.Delay, opts.MaxRetries),
	}, nil
}

var nonIsbnChars = regexp.MustCompile(`[^0-9X]`)

// SearchByISBN runs a KNUM keyword search. The catalog either redirects
// straight to the record display or answers with a browse list; in the
// list case the first result is followed. An empty return with nil
// error means no match.
func (c *Client) SearchByISBN(ctx context.Context, isbn string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:SearchByISBN")
	defer span.End()
	span.SetAttributes(attribute.String("isbn", isbn))

	clean := nonIsbnChars.ReplaceAllString(isbn, "")
	if clean == "" {
		return "", nil
	}

	query := url.Values{}
	query.Set("searchArg1", clean)
	query.Set("argType1", "all")
	query.Set("searchCode1", "KNUM")
	query.Set("searchType", "2")
	query.Set("combine2", "and")

	doc, err := c.search(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "isbn search failed")
		return "", err
	}

	results := browseResults(doc)
	if len(results) == 0 {
		// record display page
		return extractLCCN(doc), nil
	}
	return c.followResult(ctx, results[0])
}

// SearchByTitle runs a GKEY keyword search. The LCCN is accepted only
// when the search yields exactly one result; zero or many results leave
// it unset. Never guess among candidates.
func (c *Client) SearchByTitle(ctx context.Context, title string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:SearchByTitle")
	defer span.End()
	span.SetAttributes(attribute.String("title", title))

	query := url.Values{}
	query.Set("searchArg", title)
	query.Set("searchCode", "GKEY^*")
	query.Set("searchType", "0")
	query.Set("recCount", "25")

	doc, err := c.search(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "title search failed")
		return "", err
	}

	results := browseResults(doc)
	if doc.Find("table.browseList").Length() == 0 {
		// the catalog jumped straight to a single record display
		return extractLCCN(doc), nil
	}
	if len(results) != 1 {
		span.SetAttributes(attribute.Int("result_count", len(results)))
		span.AddEvent("ambiguous or empty title search, leaving lccn unset")
		return "", nil
	}
	return c.followResult(ctx, results[0])
}

func (c *Client) search(ctx context.Context, query url.Values) (*goquery.Document, error) {
	res, err := c.Fetch.Get(ctx, "/vwebv/search", query)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

func (c *Client) followResult(ctx context.Context, href string) (string, error) {
	res, err := c.Fetch.Get(ctx, href, nil)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return "", err
	}
	return extractLCCN(doc), nil
}

// browseResults returns the hrefs of the result rows on a browse list
// page, in page order.
func browseResults(doc *goquery.Document) []string {
	var hrefs []string
	doc.Find("table.browseList a.browse-result").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if ok && href != "" {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}
