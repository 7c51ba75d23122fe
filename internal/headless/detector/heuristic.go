// Package detector decides when an HTTP-fetched page must be re-fetched with
// the headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/review-crawler/internal/crawler"
)

const defaultThreshold = 2048

// Heuristic promotes pages that look like an unrendered script shell.
type Heuristic struct {
	BodyLengthThreshold int
	markers             [][]byte
}

// NewHeuristic creates a detector. markers are byte strings that only appear
// in a shell page, for example a client-side mount point; review pages are
// server rendered, so none are needed by default.
func NewHeuristic(threshold int, markers []string) *Heuristic {
	if threshold == 0 {
		threshold = defaultThreshold
	}
	h := &Heuristic{BodyLengthThreshold: threshold}
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			h.markers = append(h.markers, []byte(m))
		}
	}
	return h
}

// ShouldPromote reports whether resp needs a headless fetch. Only 200
// responses are ever promoted.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range h.markers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover a quarter or more
// of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			// unterminated tag runs to the end
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1
		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
