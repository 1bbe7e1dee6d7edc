// Package domainutil implements the pure, idempotent helpers every layer of
// the engine funnels text through before it reaches persistence: registrable
// domain extraction and mojibake/encoding repair. Grounded on
// original_source/geo_server/utils/{url,encoding}.py.
package domainutil

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// UnknownDomain is returned when the registrable domain cannot be determined.
const UnknownDomain = "unknown"

// RegistrableDomain returns the registered-domain form of a URL's host
// (e.g. "www.example.co.uk" -> "example.co.uk"). Returns UnknownDomain on
// any parse failure, per §4.4.
func RegistrableDomain(rawURL string) string {
	if rawURL == "" {
		return UnknownDomain
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return UnknownDomain
	}

	host := u.Hostname()
	if host == "" {
		// Allow bare-host input (no scheme) for defensive callers.
		host = strings.TrimSpace(rawURL)
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return UnknownDomain
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// A bare single-label host (e.g. "localhost") has no suffix+1 form;
		// fall back to the host itself rather than failing outright.
		if !strings.Contains(host, ".") {
			return host
		}
		return UnknownDomain
	}
	return domain
}
