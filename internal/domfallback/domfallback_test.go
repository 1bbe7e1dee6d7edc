package domfallback

import "testing"

func TestExtract_FiltersOwnDomainAndAssignsDiscoveryOrder(t *testing.T) {
	html := `<html><body><div class="answer">
		<p>See <a href="https://platform.example/internal">internal</a> and
		<a href="https://external.com/page1">External One</a> for more.</p>
		<p>Also <a href="https://another.com/page2">External Two</a>.</p>
	</div></body></html>`

	cits, err := Extract(html, ".answer", map[string]bool{"platform.example": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cits) != 2 {
		t.Fatalf("expected 2 external citations, got %d: %+v", len(cits), cits)
	}
	if cits[0].URL != "https://external.com/page1" || cits[0].CiteIndex != 1 {
		t.Fatalf("unexpected first citation: %+v", cits[0])
	}
	if cits[1].URL != "https://another.com/page2" || cits[1].CiteIndex != 2 {
		t.Fatalf("unexpected second citation: %+v", cits[1])
	}
}

func TestExtract_UsesNumericMarkerWhenPresent(t *testing.T) {
	html := `<html><body><div class="answer">
		<a href="https://external.com/page1">cite</a><sup>3</sup>
	</div></body></html>`

	cits, err := Extract(html, ".answer", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cits) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(cits))
	}
	if cits[0].CiteIndex != 3 {
		t.Fatalf("expected marker-derived cite_index 3, got %d", cits[0].CiteIndex)
	}
}

func TestExtract_SkipsFragmentOnlyAnchors(t *testing.T) {
	html := `<html><body><div class="answer"><a href="#section1">jump</a></div></body></html>`
	cits, err := Extract(html, ".answer", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cits) != 0 {
		t.Fatalf("expected no citations from fragment-only anchors, got %+v", cits)
	}
}
