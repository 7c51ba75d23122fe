package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ListingLinks returns the first anchor href of every card matching
// cardSelector, prefixed with origin. Cards without an href are skipped.
func ListingLinks(body []byte, origin, cardSelector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}
	var links []string
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a").First().Attr("href")
		if !ok {
			return
		}
		links = append(links, origin+href)
	})
	return links, nil
}

// LastPage scans anchors in document order for one named marker and parses
// the last word of its aria-label. Anchors whose label does not end in a
// positive integer are skipped. It returns 0 when nothing matches.
func LastPage(body []byte, marker string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("parse organization page: %w", err)
	}
	pages := 0
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if name, _ := a.Attr("name"); name != marker {
			return true
		}
		label, ok := a.Attr("aria-label")
		if !ok {
			return true
		}
		words := strings.Fields(label)
		if len(words) == 0 {
			return true
		}
		n, err := strconv.Atoi(words[len(words)-1])
		if err != nil || n < 1 {
			return true
		}
		pages = n
		return false
	})
	return pages, nil
}
