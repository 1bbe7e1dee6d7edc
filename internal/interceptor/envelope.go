package interceptor

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/provider"
)

// Result is the neutral triple recovered from one session's stream,
// citations and sub-queries in first-seen order (deduplication and final
// cite_index/ordering is the Result Normalizer's job, per §4.6).
type Result struct {
	AnswerText string
	SubQueries []provider.SubQuery
	Citations  []provider.Citation
}

// Accumulator aggregates decoded envelopes for one session. It is only
// ever touched from a single goroutine (Session.consume); the mutex exists
// solely so tests can call Ingest directly from multiple goroutines without
// surprises.
type Accumulator struct {
	mu          sync.Mutex
	answer      strings.Builder
	citations   []provider.Citation
	citationIdx map[string]int // url -> index into citations, for first-seen de-dup
	subQueries  []provider.SubQuery
	seenSub     map[string]bool
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		citationIdx: make(map[string]int),
		seenSub:     make(map[string]bool),
	}
}

// Result snapshots the accumulated state.
func (a *Accumulator) Result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Result{
		AnswerText: a.answer.String(),
		SubQueries: append([]provider.SubQuery(nil), a.subQueries...),
		Citations:  append([]provider.Citation(nil), a.citations...),
	}
}

// Ingest decodes one SSE data payload and dispatches it to the matching
// envelope-shape handler, per §4.3's five shapes.
func (a *Accumulator) Ingest(payload []byte, logger *zap.Logger) {
	var env map[string]interface{}
	if err := decodeJSON(payload, &env); err != nil {
		if logger != nil {
			logger.Debug("interceptor: unparseable envelope, skipping", zap.Error(err))
		}
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, vIsArray := env["v"].([]interface{})

	switch {
	case env["patch_op"] != nil:
		a.handlePatchOp(env)
	case isString(env["p"]) && env["v"] != nil, env["p"] == nil && vIsArray:
		a.handleIncrementalPath(env)
	case hasWholeFragmentShape(env):
		a.handleWholeFragment(env)
	case env["results"] != nil || env["queries"] != nil:
		a.handleRootResultsLocked(env)
	default:
		a.handleContentOnly(env)
	}
}

// --- Shape 1: whole-fragment envelope ---------------------------------

func hasWholeFragmentShape(env map[string]interface{}) bool {
	v, ok := env["v"].(map[string]interface{})
	if !ok {
		return false
	}
	response, ok := v["response"].(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = response["fragments"].([]interface{})
	return ok
}

func (a *Accumulator) handleWholeFragment(env map[string]interface{}) {
	v := env["v"].(map[string]interface{})
	response := v["response"].(map[string]interface{})
	fragments, _ := response["fragments"].([]interface{})
	for _, f := range fragments {
		frag, ok := f.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _ := frag["type"].(string); !strings.EqualFold(t, "SEARCH") {
			continue
		}
		a.ingestQueriesLocked(frag["queries"])
		a.ingestResultsLocked(frag["results"])
	}
}

// --- Shape 2: incremental path envelope --------------------------------

func (a *Accumulator) handleIncrementalPath(env map[string]interface{}) {
	path, _ := env["p"].(string)
	arr, _ := env["v"].([]interface{})

	switch {
	case strings.HasSuffix(path, "results"):
		a.ingestResultsLocked(arr)
	case strings.HasSuffix(path, "queries"):
		a.ingestQueriesLocked(arr)
	case path == "" && len(arr) > 0:
		if m, ok := arr[0].(map[string]interface{}); ok {
			if _, hasURL := m["url"]; hasURL {
				a.ingestResultsLocked(arr)
				return
			}
		}
		a.ingestQueriesLocked(arr)
	}
}

// --- Shape 3: patch-op envelope (Doubao-style) -------------------------

func (a *Accumulator) handlePatchOp(env map[string]interface{}) {
	ops, _ := env["patch_op"].([]interface{})
	for _, o := range ops {
		op, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		if !isOne(op["patch_object"]) || !isOne(op["patch_type"]) {
			continue
		}
		value, ok := op["patch_value"].(map[string]interface{})
		if !ok {
			continue
		}
		blocks, _ := value["content_block"].([]interface{})
		for _, b := range blocks {
			block, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			a.handleContentBlockLocked(block)
		}
	}
}

func (a *Accumulator) handleContentBlockLocked(block map[string]interface{}) {
	blockType := numberOf(block["block_type"])
	switch blockType {
	case 10000:
		if tb, ok := block["text_block"].(map[string]interface{}); ok {
			if text, ok := tb["text"].(string); ok {
				a.answer.WriteString(text)
			}
		}
	case 10025:
		content, _ := block["content"].(map[string]interface{})
		sqrb, ok := content["search_query_result_block"].(map[string]interface{})
		if !ok {
			return
		}
		a.ingestQueriesLocked(sqrb["queries"])
		results, _ := sqrb["results"].([]interface{})
		for _, r := range results {
			rm, ok := r.(map[string]interface{})
			if !ok {
				continue
			}
			var card map[string]interface{}
			if tc, ok := rm["text_card"].(map[string]interface{}); ok {
				card = tc
			} else if vc, ok := rm["video_card"].(map[string]interface{}); ok {
				card = vc
			} else {
				card = rm
			}
			if cit, ok := citationFromMap(card); ok {
				a.addCitationLocked(cit)
			}
		}
	}
}

// --- Shape 4: root-results envelope ------------------------------------

func (a *Accumulator) handleRootResultsLocked(env map[string]interface{}) {
	a.ingestResultsLocked(env["results"])
	a.ingestQueriesLocked(env["queries"])
}

// --- Shape 5: content-only envelope -------------------------------------

func (a *Accumulator) handleContentOnly(env map[string]interface{}) {
	for _, key := range []string{"content", "text", "message", "answer"} {
		if s, ok := env[key].(string); ok {
			a.answer.WriteString(s)
			return
		}
	}
	if delta, ok := env["delta"].(map[string]interface{}); ok {
		if s, ok := delta["content"].(string); ok {
			a.answer.WriteString(s)
		}
	}
}

// --- shared helpers ------------------------------------------------------

func (a *Accumulator) ingestResultsLocked(raw interface{}) {
	arr, ok := raw.([]interface{})
	if !ok {
		return
	}
	for _, r := range arr {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		if cit, ok := citationFromMap(m); ok {
			a.addCitationLocked(cit)
		}
	}
}

func (a *Accumulator) ingestQueriesLocked(raw interface{}) {
	arr, ok := raw.([]interface{})
	if !ok {
		return
	}
	for _, q := range arr {
		sq, ok := subQueryFromValue(q)
		if !ok || sq.Text == "" || a.seenSub[sq.Text] {
			continue
		}
		a.seenSub[sq.Text] = true
		a.subQueries = append(a.subQueries, sq)
	}
}

// addCitationLocked applies the per-session url-uniqueness rule (first-seen
// fields win) shared with the DOM fallback extractor's merge step.
func (a *Accumulator) addCitationLocked(cit provider.Citation) {
	if idx, ok := a.citationIdx[cit.URL]; ok {
		_ = idx
		return
	}
	a.citationIdx[cit.URL] = len(a.citations)
	a.citations = append(a.citations, cit)
}

// citationFromMap builds a Citation from a generic decoded object per the
// field-fallback rules in §4.3. url is required; everything else is
// optional.
func citationFromMap(m map[string]interface{}) (provider.Citation, bool) {
	url, _ := m["url"].(string)
	if url == "" {
		return provider.Citation{}, false
	}
	cit := provider.Citation{URL: url}
	cit.Title = firstString(m, "title", "name")
	cit.Snippet = firstString(m, "snippet", "description", "summary")
	cit.SiteName = firstString(m, "site_name", "source")

	if idx, ok := numberField(m, "cite_index"); ok {
		cit.CiteIndex, cit.HasCiteIndex = idx, true
	} else if idx, ok := numberField(m, "index"); ok {
		cit.CiteIndex, cit.HasCiteIndex = idx, true
	}

	if raw, ok := m["query_indexes"].([]interface{}); ok {
		for _, v := range raw {
			if n, ok := asInt(v); ok {
				cit.QueryIndexes = append(cit.QueryIndexes, n)
			}
		}
	}
	return cit, true
}

func subQueryFromValue(v interface{}) (provider.SubQuery, bool) {
	switch t := v.(type) {
	case string:
		return provider.SubQuery{Text: t}, true
	case map[string]interface{}:
		text := firstString(t, "query", "text", "content")
		if text == "" {
			return provider.SubQuery{}, false
		}
		return provider.SubQuery{Text: text}, true
	default:
		return provider.SubQuery{}, false
	}
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func numberField(m map[string]interface{}, key string) (int, bool) {
	return asInt(m[key])
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func numberOf(v interface{}) int {
	n, _ := asInt(v)
	return n
}

func isOne(v interface{}) bool {
	n, ok := asInt(v)
	return ok && n == 1
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}
