package normalizer

import (
	"testing"

	"github.com/geosentry/citation-engine/internal/domainutil"
	"github.com/geosentry/citation-engine/internal/provider"
)

func TestNormalize_DeduplicatesByURL(t *testing.T) {
	res := provider.SearchResult{
		Citations: []provider.Citation{
			{URL: "https://x/a", Title: "first"},
			{URL: "https://x/a", Title: "second"},
		},
	}
	out := Normalize(res)
	if len(out.Citations) != 1 {
		t.Fatalf("expected 1 citation after dedup, got %d", len(out.Citations))
	}
	if out.Citations[0].Title != "first" {
		t.Fatalf("expected first-seen title to win, got %q", out.Citations[0].Title)
	}
	if out.Citations[0].Domain != "x" {
		// single-label host has no registrable-suffix form; RegistrableDomain
		// falls back to the bare host.
		t.Fatalf("unexpected domain: %q", out.Citations[0].Domain)
	}
}

func TestNormalize_OrdersByCiteIndexWithUnassignedTailing(t *testing.T) {
	res := provider.SearchResult{
		Citations: []provider.Citation{
			{URL: "https://a/1", HasCiteIndex: false},
			{URL: "https://a/2", CiteIndex: 2, HasCiteIndex: true},
			{URL: "https://a/3", CiteIndex: 1, HasCiteIndex: true},
		},
	}
	out := Normalize(res)
	if len(out.Citations) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(out.Citations))
	}
	wantOrder := []string{"https://a/3", "https://a/2", "https://a/1"}
	for i, want := range wantOrder {
		if out.Citations[i].URL != want {
			t.Fatalf("position %d: want %q, got %q", i, want, out.Citations[i].URL)
		}
	}
}

func TestNormalize_SubQueriesKeepFirstSeenOrderAndDedup(t *testing.T) {
	res := provider.SearchResult{
		SubQueries: []provider.SubQuery{{Text: "q1"}, {Text: "q2"}, {Text: "q1"}},
	}
	out := Normalize(res)
	if len(out.SubQueries) != 2 {
		t.Fatalf("expected 2 unique sub-queries, got %d", len(out.SubQueries))
	}
	if out.SubQueries[0].Text != "q1" || out.SubQueries[1].Text != "q2" {
		t.Fatalf("unexpected order: %+v", out.SubQueries)
	}
}

func TestNormalize_RepairsMojibakeInEveryStringField(t *testing.T) {
	mojibake := string([]byte{0xe4, 0xb8, 0xad, 0xe6, 0x96, 0x87}) // UTF-8 "中文"
	latin1Mangled, _ := toLatin1Mangled(mojibake)

	res := provider.SearchResult{
		AnswerText: latin1Mangled,
		Citations:  []provider.Citation{{URL: "https://a/1", Title: latin1Mangled}},
	}
	out := Normalize(res)
	if out.AnswerText != mojibake {
		t.Fatalf("expected repaired answer text %q, got %q", mojibake, out.AnswerText)
	}
	if out.Citations[0].Title != mojibake {
		t.Fatalf("expected repaired title %q, got %q", mojibake, out.Citations[0].Title)
	}
}

func TestMergeCitations_UnionsWithFirstSeenPrecedence(t *testing.T) {
	base := []provider.Citation{{URL: "https://a/1", Title: "from-stream"}}
	fallback := []provider.Citation{
		{URL: "https://a/1", Title: "from-dom"},
		{URL: "https://a/2", Title: "dom-only"},
	}
	merged := MergeCitations(base, fallback)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged citations, got %d", len(merged))
	}
	if merged[0].Title != "from-stream" {
		t.Fatalf("expected stream citation to win on conflict, got %q", merged[0].Title)
	}
}

// toLatin1Mangled simulates the wire corruption the repair routine
// undoes: UTF-8 bytes reinterpreted one-for-one as Latin-1 code points.
func toLatin1Mangled(s string) (string, bool) {
	runes := make([]rune, 0, len(s))
	for _, b := range []byte(s) {
		runes = append(runes, rune(b))
	}
	out := string(runes)
	// Round-trip through the real repair routine to confirm our fixture
	// is actually reversible before using it as a test input.
	if domainutil.RepairString(out) != s {
		return s, false
	}
	return out, true
}
