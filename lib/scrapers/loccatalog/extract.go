package loccatalog

import (
	"regexp"
	"strings"
	"tocfetch/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

var (
	permalinkLccn = regexp.MustCompile(`lccn\.loc\.gov/(\d+)`)
	coinsLccn     = regexp.MustCompile(`rft\.lccn=(\d+)`)
	bareLccn      = regexp.MustCompile(`\b\d{8,}\b`)
)

// extractLCCN pulls the LCCN out of a record display page. The page
// layout has shifted over the years, so four locations are tried in
// order: the labeled LCCN item block, the LCCN permalink, the Z39.88
// COinS span, and finally any long digit run near an "LCCN" label.
// Returns "" when none hit.
func extractLCCN(doc *goquery.Document) string {
	if lccn := lccnFromItemBlock(doc); lccn != "" {
		return lccn
	}
	if lccn := lccnFromPermalink(doc); lccn != "" {
		return lccn
	}
	if lccn := lccnFromCoins(doc); lccn != "" {
		return lccn
	}
	return lccnFromContentContainer(doc)
}

func lccnFromItemBlock(doc *goquery.Document) string {
	var lccn string
	doc.Find("div.items-wrapper").EachWithBreak(func(_ int, wrapper *goquery.Selection) bool {
		header := wrapper.Find("h3.item-title")
		if strings.TrimSpace(header.Text()) != "LCCN" {
			return true
		}
		value := htmlutil.CleanText(wrapper.Find("ul.item-description span[dir=ltr]").First().Text())
		if value != "" {
			lccn = value
			return false
		}
		return true
	})
	return lccn
}

func lccnFromPermalink(doc *goquery.Document) string {
	var lccn string
	doc.Find("div.items-wrapper").EachWithBreak(func(_ int, wrapper *goquery.Selection) bool {
		header := wrapper.Find("h3.item-title")
		if !strings.Contains(header.Text(), "LCCN Permalink") {
			return true
		}
		href, ok := wrapper.Find("ul.item-description a#permalink").Attr("href")
		if !ok {
			return true
		}
		groups := permalinkLccn.FindStringSubmatch(href)
		if len(groups) == 2 {
			lccn = groups[1]
			return false
		}
		return true
	})
	return lccn
}

func lccnFromCoins(doc *goquery.Document) string {
	title, ok := doc.Find("span.Z3988").Attr("title")
	if !ok {
		return ""
	}
	groups := coinsLccn.FindStringSubmatch(title)
	if len(groups) != 2 {
		return ""
	}
	return groups[1]
}

func lccnFromContentContainer(doc *goquery.Document) string {
	var lccn string
	doc.Find("div.content-container div").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		text := htmlutil.CleanText(div.Text())
		if !strings.Contains(text, "LCCN") {
			return true
		}
		match := bareLccn.FindString(text)
		if match != "" {
			lccn = match
			return false
		}
		return true
	})
	return lccn
}
