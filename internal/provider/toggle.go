package provider

import (
	"context"
	"strings"
)

// ToggleStrategy ensures a hosted chat platform's "web search" affordance
// is on before a prompt is submitted. Per the Open Question resolution
// recorded in DESIGN.md: the DOM-sniffing heuristic the source used (CSS
// class names and computed colors) is brittle and platform-specific, so
// this is modeled as one strategy implementation per provider rather than
// a single generalized detector. Adding a new hosted-chat provider means
// writing a new ToggleStrategy, not extending an existing one.
type ToggleStrategy interface {
	// EnsureOn inspects the page via session and, if the web-search
	// affordance is not already active, clicks it once. Mirrors the
	// source's single try/except around the whole detect-then-click
	// sequence: there is no retry loop, and failing to confirm or click
	// is never fatal — the unit proceeds without forcing it on.
	EnsureOn(ctx context.Context, session BrowserSession) error
}

// BrowserSession is the minimal surface ToggleStrategy and the generation-
// stability poller need from a driven browser tab. Implemented by
// *chromeSession in hostedchat.go; kept as an interface so toggle
// strategies and tests do not need a live chromedp context.
type BrowserSession interface {
	// HasClass reports whether the element matching selector carries the
	// given CSS class.
	HasClass(ctx context.Context, selector, class string) (bool, error)
	// ComputedColor returns the CSS computed color (e.g. "rgb(0, 0, 0)")
	// of the element matching selector.
	ComputedColor(ctx context.Context, selector string) (string, error)
	// Click clicks the element matching selector.
	Click(ctx context.Context, selector string) error
	// Exists reports whether an element matches selector.
	Exists(ctx context.Context, selector string) (bool, error)
}

// attemptToggle runs the given detect-then-click attempt once. The source
// toggle-detection code (deepseek_web.py, doubao_web.py) wraps the whole
// sequence in a single try/except and proceeds regardless of the outcome —
// there is no retry loop in the original. attemptToggle mirrors that: it
// never returns an error, since failing to confirm or click the toggle is
// not fatal to the unit (§9 Design Note #1).
func attemptToggle(ctx context.Context, click func(ctx context.Context) error) error {
	_ = click(ctx)
	return nil
}

// activeByHeuristic applies the two-part "is it already on" check the
// source uses for both platforms: first a class-name keyword match, then
// (if inconclusive) a computed-color check. keywords and activeColor are
// platform-specific.
func activeByHeuristic(ctx context.Context, session BrowserSession, selector string, keywords []string, isActiveColor func(color string) bool) bool {
	for _, kw := range keywords {
		has, err := session.HasClass(ctx, selector, kw)
		if err == nil && has {
			return true
		}
	}
	color, err := session.ComputedColor(ctx, selector)
	if err == nil && isActiveColor(color) {
		return true
	}
	return false
}

// DeepseekToggleStrategy ensures DeepSeek's "联网搜索" (web search) toggle
// is on, grounded on deepseek_web.py's toggle-detection block: a
// checked/active class-name check, then a computed-color check that treats
// the platform's active blue (rgb(36, 127, 255)), or any color other than
// black, as active.
type DeepseekToggleStrategy struct {
	Selector string
}

// NewDeepseekToggleStrategy uses a CSS attribute selector rather than the
// source's Playwright `div:has-text('联网搜索')` locator — chromeSession
// drives the DOM via plain `document.querySelector`, which has no
// text-content pseudo-selector. Callers with a confirmed DOM should
// override Selector directly.
func NewDeepseekToggleStrategy() *DeepseekToggleStrategy {
	return &DeepseekToggleStrategy{Selector: "[class*='search']"}
}

func (s *DeepseekToggleStrategy) EnsureOn(ctx context.Context, session BrowserSession) error {
	return attemptToggle(ctx, func(ctx context.Context) error {
		exists, err := session.Exists(ctx, s.Selector)
		if err != nil || !exists {
			return nil
		}
		if activeByHeuristic(ctx, session, s.Selector, []string{"checked", "active"}, isDeepseekActiveColor) {
			return nil
		}
		return session.Click(ctx, s.Selector)
	})
}

func isDeepseekActiveColor(color string) bool {
	return strings.Contains(color, "rgb(36, 127, 255)") || !strings.Contains(color, "rgb(0, 0, 0)")
}

// DoubaoToggleStrategy ensures Doubao's web-search toggle is on, grounded
// on doubao_web.py's toggle-detection block: a checked/active/on/enabled
// class-name check, then a computed-color check that treats anything
// other than the default black/gray as active.
type DoubaoToggleStrategy struct {
	Selector string
}

// NewDoubaoToggleStrategy uses a CSS attribute selector for the same reason
// NewDeepseekToggleStrategy does — see its comment.
func NewDoubaoToggleStrategy() *DoubaoToggleStrategy {
	return &DoubaoToggleStrategy{Selector: "[class*='search']"}
}

func (s *DoubaoToggleStrategy) EnsureOn(ctx context.Context, session BrowserSession) error {
	return attemptToggle(ctx, func(ctx context.Context) error {
		exists, err := session.Exists(ctx, s.Selector)
		if err != nil || !exists {
			return nil
		}
		if activeByHeuristic(ctx, session, s.Selector, []string{"checked", "active", "on", "enabled"}, isDoubaoActiveColor) {
			return nil
		}
		return session.Click(ctx, s.Selector)
	})
}

func isDoubaoActiveColor(color string) bool {
	return !strings.Contains(color, "rgb(0, 0, 0)") && !strings.Contains(color, "rgb(128")
}
