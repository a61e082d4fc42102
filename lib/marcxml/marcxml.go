// Package marcxml fetches MARCXML records from the LCCN permalink
// service and extracts the 505 (formatted contents note) datafield.
package marcxml

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"tocfetch/lib/fetch"
	"tocfetch/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("tocfetch.lib.marcxml")

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
	client.SetTimeout(time.Second * 30)
	restyutil.InstrumentClient(client, tracer, opts.InstrumentOutput)

	return &Client{
		BaseUrl: baseUrl,
		Fetch:   fetch.New(client, opts.Delay, opts.MaxRetries),
	}, nil
}

// FetchRecord retrieves the MARCXML representation of an LCCN.
func (c *Client) FetchRecord(ctx context.Context, lccn string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchRecord")
	defer span.End()
	span.SetAttributes(attribute.String("lccn", lccn))

	res, err := c.Fetch.Get(ctx, fmt.Sprintf("/%s/marcxml", url.PathEscape(lccn)), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch marcxml")
		return "", err
	}
	return res.String(), nil
}

type subfield struct {
	Code string `xml:"code,attr"`
	Text string `xml:",chardata"`
}

type datafield struct {
	Tag       string     `xml:"tag,attr"`
	Subfields []subfield `xml:"subfield"`
}

// the subfields that carry 505 text: contents, misc info, title,
// statement of responsibility
var tocSubfieldCodes = map[string]bool{
	"a": true,
	"g": true,
	"t": true,
	"r": true,
}

// Extract505 collects every 505 datafield in the document. Subfield
// text is joined with single spaces in document order; repeated 505
// fields are joined with newlines. `found` reports whether any 505
// datafield existed at all, so callers can tell "no TOC field" apart
// from "TOC field present but empty".
func Extract505(xmlContent string) (content string, found bool, err error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlContent))

	var groups []string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false, fmt.Errorf("parse marcxml: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "datafield" {
			continue
		}

		var df datafield
		err = decoder.DecodeElement(&df, &start)
		if err != nil {
			return "", false, fmt.Errorf("parse datafield: %w", err)
		}
		if df.Tag != "505" {
			continue
		}

		found = true
		var parts []string
		for _, sf := range df.Subfields {
			if !tocSubfieldCodes[sf.Code] {
				continue
			}
			text := strings.TrimSpace(sf.Text)
			if text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			groups = append(groups, strings.Join(parts, " "))
		}
	}

	return strings.Join(groups, "\n"), found, nil
}
