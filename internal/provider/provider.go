// Package provider implements the Provider Abstraction (§4.2): a uniform
// contract every chat-platform or direct-API integration exposes to the
// Task Engine, plus the case-insensitive registry that resolves a
// submitted platform name to an implementation.
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/geosentry/citation-engine/internal/engineerr"
)

// Citation is a raw, not-yet-normalized citation as recovered from a
// provider session.
type Citation struct {
	URL          string
	Title        string
	Snippet      string
	SiteName     string
	CiteIndex    int
	HasCiteIndex bool
	QueryIndexes []int
}

// SubQuery is a raw sub-query the platform issued while answering.
type SubQuery struct {
	Text string
}

// SearchResult is the neutral triple every provider produces.
type SearchResult struct {
	AnswerText string
	SubQueries []SubQuery
	Citations  []Citation
}

// Provider is the contract every platform integration implements.
type Provider interface {
	// Search drives one unit of work: enter prompt, wait for completion,
	// recover sub-queries and citations. Errors are always wrapped with an
	// engineerr.Kind (provider_error, timeout, auth_required, cancelled).
	Search(ctx context.Context, keyword, prompt string) (SearchResult, error)
}

// Registry resolves a platform name (matched case-insensitively) to a
// registered Provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under the given platform name.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(name)] = p
}

// Resolve looks up a provider by platform name, case-insensitively.
// Returns a provider_error if no provider is registered for that name, per
// §4.2: "Unknown platform yields a per-unit failure with message
// 'no provider for <name>'."
func (r *Registry) Resolve(platform string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(platform)]
	if !ok {
		return nil, engineerr.New(engineerr.ProviderError, fmt.Errorf("no provider for %s", platform))
	}
	return p, nil
}

// Names returns the currently registered platform names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}
