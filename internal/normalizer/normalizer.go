// Package normalizer implements the Result Normalizer (§4.6): it takes the
// raw, possibly-unordered, possibly-duplicated, possibly-mojibake output of
// the interceptor (and, when invoked, the DOM fallback extractor) and
// produces the ordered, de-duplicated, encoding-repaired form the
// Persistence Orchestrator writes.
package normalizer

import (
	"sort"

	"github.com/geosentry/citation-engine/internal/db"
	"github.com/geosentry/citation-engine/internal/domainutil"
	"github.com/geosentry/citation-engine/internal/provider"
)

// Normalized is the Persistence-Orchestrator-ready shape of one unit's
// recovered result.
type Normalized struct {
	AnswerText string
	SubQueries []db.SubQueryInput
	Citations  []db.CitationInput
}

// Normalize de-duplicates citations by URL (first-seen fields win, per the
// interceptor's own accumulation rule — this pass re-applies it in case the
// DOM fallback extractor contributed citations the interceptor already
// saw), keeps each citation's provider-given cite_index (0 when it has
// none; no index is assigned here), orders citations ascending by
// cite_index with unassigned (0) entries tailing the list, orders
// sub-queries by first-seen position, and repairs every extracted string.
func Normalize(res provider.SearchResult) Normalized {
	out := Normalized{
		AnswerText: domainutil.RepairString(res.AnswerText),
	}

	seen := make(map[string]bool, len(res.SubQueries))
	for _, sq := range res.SubQueries {
		text := domainutil.RepairString(sq.Text)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out.SubQueries = append(out.SubQueries, db.SubQueryInput{Text: text})
	}

	type indexed struct {
		cit   db.CitationInput
		first int
	}
	byURL := make(map[string]int) // url -> position in deduped slice
	var deduped []indexed

	for i, c := range res.Citations {
		url := domainutil.RepairString(c.URL)
		if url == "" {
			continue
		}
		if _, ok := byURL[url]; ok {
			continue
		}
		cite := db.CitationInput{
			URL:          url,
			Domain:       domainutil.RegistrableDomain(url),
			Title:        domainutil.RepairString(c.Title),
			Snippet:      domainutil.RepairString(c.Snippet),
			SiteName:     domainutil.RepairString(c.SiteName),
			QueryIndexes: c.QueryIndexes,
		}
		if c.HasCiteIndex {
			cite.CiteIndex = c.CiteIndex
		}
		if cite.SiteName == "" {
			cite.SiteName = cite.Domain
		}
		byURL[url] = len(deduped)
		deduped = append(deduped, indexed{cit: cite, first: i})
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		ci, cj := deduped[i].cit.CiteIndex, deduped[j].cit.CiteIndex
		if ci == 0 && cj == 0 {
			return deduped[i].first < deduped[j].first
		}
		if ci == 0 {
			return false
		}
		if cj == 0 {
			return true
		}
		if ci != cj {
			return ci < cj
		}
		return deduped[i].first < deduped[j].first
	})

	out.Citations = make([]db.CitationInput, 0, len(deduped))
	for _, d := range deduped {
		out.Citations = append(out.Citations, d.cit)
	}
	return out
}

// MergeCitations appends fallback citations (from the DOM extractor) to an
// interceptor result using the same url-uniqueness rule (first-seen wins),
// per §4.5's "merged into the per-session citation set" requirement. The
// fallback is only ever invoked by the caller when the interceptor yielded
// zero citations, but MergeCitations itself stays a pure set-union so it's
// safe to call unconditionally.
func MergeCitations(base []provider.Citation, fallback []provider.Citation) []provider.Citation {
	seen := make(map[string]bool, len(base))
	for _, c := range base {
		seen[c.URL] = true
	}
	out := append([]provider.Citation(nil), base...)
	for _, c := range fallback {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out = append(out, c)
	}
	return out
}
