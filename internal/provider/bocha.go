package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/circuitbreaker"
	"github.com/geosentry/citation-engine/internal/engineerr"
)

// BochaSearchURL is the direct-API provider's search endpoint.
const BochaSearchURL = "https://api.bochaai.com/v1/web-search"

// bochaResponse is the shape of the direct-API provider's JSON response:
// a summary paragraph plus a flat results list, no SSE stream involved.
type bochaResponse struct {
	Summary string `json:"summary"`
	Results []struct {
		URL      string `json:"url"`
		Name     string `json:"name"`
		Title    string `json:"title"`
		Snippet  string `json:"snippet"`
		Summary  string `json:"summary"`
		SiteName string `json:"site_name"`
		Source   string `json:"source"`
		Index    int    `json:"index"`
	} `json:"results"`
	Queries []string `json:"queries"`
}

// BochaProvider implements the direct-API provider variant (§4.2): a
// single authenticated HTTP POST, no browser involved.
type BochaProvider struct {
	http   *circuitbreaker.HTTPWrapper
	apiKey string
	logger *zap.Logger
}

// NewBochaProvider constructs a direct-API provider authenticated with
// apiKey, wrapping its HTTP calls in a circuit breaker per the teacher's
// database/HTTP wrapper idiom.
func NewBochaProvider(apiKey string, timeout time.Duration, logger *zap.Logger) *BochaProvider {
	client := &http.Client{Timeout: timeout}
	return &BochaProvider{
		http:   circuitbreaker.NewHTTPWrapper(client, "bocha-provider", "bocha", logger),
		apiKey: apiKey,
		logger: logger,
	}
}

// Search issues one authenticated POST and parses the JSON response into
// the neutral SearchResult triple.
func (b *BochaProvider) Search(ctx context.Context, keyword, prompt string) (SearchResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query": prompt,
		"count": 10,
	})
	if err != nil {
		return SearchResult{}, engineerr.New(engineerr.ProviderError, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, BochaSearchURL, bytes.NewReader(body))
	if err != nil {
		return SearchResult{}, engineerr.New(engineerr.ProviderError, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return SearchResult{}, engineerr.New(engineerr.Cancelled, ctx.Err())
		}
		return SearchResult{}, engineerr.New(engineerr.Timeout, fmt.Errorf("bocha request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return SearchResult{}, engineerr.New(engineerr.AuthRequired, fmt.Errorf("bocha auth failed: status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return SearchResult{}, engineerr.New(engineerr.ProviderError, fmt.Errorf("bocha error status %d: %s", resp.StatusCode, raw))
	}

	var parsed bochaResponse
	decoded, err := io.ReadAll(resp.Body)
	if err != nil {
		return SearchResult{}, engineerr.New(engineerr.ProviderError, fmt.Errorf("read bocha response: %w", err))
	}
	if err := json.Unmarshal(decoded, &parsed); err != nil {
		return SearchResult{}, engineerr.New(engineerr.ProviderError, fmt.Errorf("parse bocha response: %w", err))
	}

	result := SearchResult{AnswerText: parsed.Summary}
	for _, q := range parsed.Queries {
		if q != "" {
			result.SubQueries = append(result.SubQueries, SubQuery{Text: q})
		}
	}
	for i, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		cit := Citation{
			URL:      r.URL,
			Title:    firstNonEmpty(r.Title, r.Name),
			Snippet:  firstNonEmpty(r.Snippet, r.Summary),
			SiteName: firstNonEmpty(r.SiteName, r.Source),
		}
		if r.Index > 0 {
			cit.CiteIndex, cit.HasCiteIndex = r.Index, true
		} else {
			cit.CiteIndex, cit.HasCiteIndex = i+1, true
		}
		result.Citations = append(result.Citations, cit)
	}
	return result, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
