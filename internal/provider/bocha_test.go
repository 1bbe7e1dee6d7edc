package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/geosentry/citation-engine/internal/circuitbreaker"
	"github.com/geosentry/citation-engine/internal/engineerr"
)

// redirectTransport rewrites every request to target a test server regardless
// of the URL the caller built, since BochaProvider.Search hardcodes
// BochaSearchURL.
type redirectTransport struct {
	target *httptest.Server
}

func (rt *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	target, _ := http.NewRequest(req.Method, rt.target.URL, req.Body)
	clone.URL = target.URL
	clone.Host = target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func newTestBochaProvider(t *testing.T, srv *httptest.Server) *BochaProvider {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second, Transport: &redirectTransport{target: srv}}
	return &BochaProvider{
		http:   circuitbreaker.NewHTTPWrapper(client, "bocha-provider-test", "bocha", zaptest.NewLogger(t)),
		apiKey: "test-key",
		logger: zaptest.NewLogger(t),
	}
}

func TestBochaProvider_Search_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"summary": "running shoes are great",
			"queries": ["best running shoes"],
			"results": [
				{"url": "https://example.com/a", "title": "A", "snippet": "snippet a", "site_name": "Example", "index": 1}
			]
		}`))
	}))
	defer srv.Close()

	p := newTestBochaProvider(t, srv)
	res, err := p.Search(context.Background(), "running shoes", "best running shoes")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.AnswerText != "running shoes are great" {
		t.Errorf("AnswerText = %q", res.AnswerText)
	}
	if len(res.SubQueries) != 1 || res.SubQueries[0].Text != "best running shoes" {
		t.Errorf("SubQueries = %+v", res.SubQueries)
	}
	if len(res.Citations) != 1 || res.Citations[0].URL != "https://example.com/a" || res.Citations[0].CiteIndex != 1 {
		t.Errorf("Citations = %+v", res.Citations)
	}
}

func TestBochaProvider_Search_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newTestBochaProvider(t, srv)
	_, err := p.Search(context.Background(), "k", "p")
	if engineerr.KindOf(err) != engineerr.AuthRequired {
		t.Errorf("KindOf(err) = %q, want %q", engineerr.KindOf(err), engineerr.AuthRequired)
	}
}

func TestBochaProvider_Search_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := newTestBochaProvider(t, srv)
	_, err := p.Search(context.Background(), "k", "p")
	if engineerr.KindOf(err) != engineerr.ProviderError {
		t.Errorf("KindOf(err) = %q, want %q", engineerr.KindOf(err), engineerr.ProviderError)
	}
}
