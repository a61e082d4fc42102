package htmlutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText collapses inner whitespace and strips non-printable runes,
// the usual cleanup for text pulled out of catalog display markup.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

// NextSiblingText returns the text of the first sibling text node
// following `node`, trimmed. MARC display markup puts subfield values
// as bare text nodes between code spans.
func NextSiblingText(node *html.Node) string {
	if node == nil {
		return ""
	}
	for sib := node.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.TextNode {
			text := strings.Trim(sib.Data, " \t\n")
			if text != "" {
				return text
			}
			continue
		}
		break
	}
	return ""
}
