// Package domfallback implements the DOM Fallback Extractor (§4.5): when
// SSE interception yields zero citations, it walks the rendered answer
// container looking for external anchors and harvests citation fields
// directly from markup. Grounded on antflydb-antfly-go's goquery-based
// HTML processor (docsaf/html.go), repurposed from content chunking to
// citation salvage.
package domfallback

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/geosentry/citation-engine/internal/provider"
)

// CiteMarkerSelector is the CSS selector for the platform's own numeric
// citation-marker element, checked against each anchor's descendants and
// its immediate following sibling. Left as a package variable rather than
// a constant so a provider can override it per platform if a future
// integration needs a different marker shape.
var CiteMarkerSelector = "[data-cite-index], sup, .citation-index"

// Extract walks html, looking within containerSelector (or the whole
// document if empty) for anchor elements pointing off the ownDomains set.
// Anchors are visited in document order; a numeric citation-marker value
// becomes cite_index, otherwise indices are assigned by discovery order
// starting at 1.
func Extract(html string, containerSelector string, ownDomains map[string]bool) ([]provider.Citation, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var scope *goquery.Selection
	if containerSelector != "" {
		scope = doc.Find(containerSelector)
	} else {
		scope = doc.Selection
	}

	var citations []provider.Citation
	discovery := 0

	scope.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, ok := anchor.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if isOwnDomain(href, ownDomains) {
			return
		}

		discovery++
		cit := provider.Citation{
			URL:          href,
			Title:        strings.TrimSpace(anchor.Text()),
			Snippet:      nearbySiblingText(anchor),
			CiteIndex:    discovery,
			HasCiteIndex: true,
		}

		if idx, ok := markerIndex(anchor); ok {
			cit.CiteIndex = idx
		}

		citations = append(citations, cit)
	})

	return citations, nil
}

// markerIndex looks for a numeric citation-marker value among the anchor's
// descendants or its immediate following sibling.
func markerIndex(anchor *goquery.Selection) (int, bool) {
	candidates := anchor.Find(CiteMarkerSelector)
	if n, ok := parseFirstNumeric(candidates); ok {
		return n, true
	}
	sibling := anchor.Next()
	if sibling.Length() == 0 {
		return 0, false
	}
	if sibling.Is(CiteMarkerSelector) {
		if n, ok := parseFirstNumeric(sibling); ok {
			return n, true
		}
	}
	return 0, false
}

func parseFirstNumeric(sel *goquery.Selection) (int, bool) {
	if sel.Length() == 0 {
		return 0, false
	}
	text := strings.TrimSpace(sel.First().Text())
	if text == "" {
		if attr, ok := sel.First().Attr("data-cite-index"); ok {
			text = attr
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}

// nearbySiblingText harvests the text of the anchor's parent node, minus
// the anchor's own text, as a best-effort snippet — the source material
// rarely marks up a dedicated snippet element alongside an inline citation
// link.
func nearbySiblingText(anchor *goquery.Selection) string {
	parent := anchor.Parent()
	if parent.Length() == 0 {
		return ""
	}
	full := strings.TrimSpace(parent.Text())
	anchorText := strings.TrimSpace(anchor.Text())
	snippet := strings.TrimSpace(strings.Replace(full, anchorText, "", 1))
	const maxSnippetLen = 280
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen]
	}
	return snippet
}

func isOwnDomain(href string, ownDomains map[string]bool) bool {
	if len(ownDomains) == 0 {
		return false
	}
	for domain := range ownDomains {
		if domain != "" && strings.Contains(href, domain) {
			return true
		}
	}
	return false
}
