package provider

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/domfallback"
	"github.com/geosentry/citation-engine/internal/engineerr"
	"github.com/geosentry/citation-engine/internal/interceptor"
)

// HostedChatConfig describes one hosted chat platform integration
// (DeepSeek-style, Doubao-style). Each platform gets its own config value;
// the selectors are platform-specific and brittle by nature (§9 Open
// Question 1), so they live entirely in data rather than code branches.
type HostedChatConfig struct {
	Platform                string
	ChatURL                 string
	ProfileRootDir          string
	PromptSelector          string
	SubmitSelector          string
	AnswerContainerSelector string
	StopGenerationSelector  string
	APIURLSubstring         string // e.g. "chat/completions" — matched against observed response URLs
	OwnDomains              map[string]bool
	Toggle                  ToggleStrategy
	Headless                bool
	StabilityPollInterval   time.Duration
	MaxWaitBudget           time.Duration
}

// HostedChatProvider drives a persistent, per-platform browser profile
// through a chat session and recovers sub-queries/citations from the
// intercepted SSE stream, falling back to DOM scraping when the stream
// yields nothing (§4.2, §4.5).
type HostedChatProvider struct {
	cfg    HostedChatConfig
	logger *zap.Logger
}

// NewHostedChatProvider constructs a hosted-chat provider for one platform.
func NewHostedChatProvider(cfg HostedChatConfig, logger *zap.Logger) *HostedChatProvider {
	if cfg.StabilityPollInterval == 0 {
		cfg.StabilityPollInterval = 1500 * time.Millisecond
	}
	if cfg.MaxWaitBudget == 0 {
		// Must stay below the per-unit TimeoutMs the engine wraps Search's
		// ctx with (internal/engine/activities.go), or waitForStability's
		// own engineerr.Timeout can never fire before the ancestor ctx
		// deadline does — 20s leaves headroom under the engine's 30s
		// default.
		cfg.MaxWaitBudget = 20 * time.Second
	}
	return &HostedChatProvider{cfg: cfg, logger: logger}
}

// Search drives one unit of work end-to-end: navigate, toggle web search
// on, submit the prompt, wait for generation to stabilize while
// intercepting network responses, and fall back to DOM scraping if
// interception produced zero citations.
func (p *HostedChatProvider) Search(ctx context.Context, keyword, prompt string) (SearchResult, error) {
	profileDir := filepath.Join(p.cfg.ProfileRootDir, p.cfg.Platform)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("headless", p.cfg.Headless),
	)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	session := interceptor.NewSession(browserCtx, p.logger)
	p.attachNetworkListener(browserCtx, session)

	if err := chromedp.Run(browserCtx, chromedp.Navigate(p.cfg.ChatURL)); err != nil {
		return SearchResult{}, classifyBrowserErr(browserCtx, err)
	}

	cs := &chromeSession{ctx: browserCtx}
	if p.cfg.Toggle != nil {
		_ = p.cfg.Toggle.EnsureOn(browserCtx, cs)
	}

	if err := chromedp.Run(browserCtx,
		chromedp.WaitVisible(p.cfg.PromptSelector, chromedp.ByQuery),
		chromedp.SendKeys(p.cfg.PromptSelector, prompt, chromedp.ByQuery),
		chromedp.Click(p.cfg.SubmitSelector, chromedp.ByQuery),
	); err != nil {
		return SearchResult{}, classifyBrowserErr(browserCtx, err)
	}

	if err := p.waitForStability(browserCtx, cs); err != nil {
		return SearchResult{}, classifyBrowserErr(browserCtx, err)
	}

	var renderedHTML string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML(p.cfg.AnswerContainerSelector, &renderedHTML, chromedp.ByQuery)); err != nil {
		p.logger.Warn("hostedchat: failed to capture rendered answer HTML", zap.Error(err), zap.String("platform", p.cfg.Platform))
	}

	streamResult := session.Close()

	result := SearchResult{
		AnswerText: streamResult.AnswerText,
		SubQueries: streamResult.SubQueries,
		Citations:  streamResult.Citations,
	}

	if len(result.Citations) == 0 && renderedHTML != "" {
		fallback, err := domfallback.Extract(renderedHTML, p.cfg.AnswerContainerSelector, p.cfg.OwnDomains)
		if err != nil {
			p.logger.Warn("hostedchat: DOM fallback extraction failed", zap.Error(err), zap.String("platform", p.cfg.Platform))
		} else {
			result.Citations = fallback
		}
	}

	return result, nil
}

// attachNetworkListener taps every network response whose URL matches the
// platform's chat/completion endpoint and whose content-type indicates an
// SSE stream, feeding the response body into the interceptor session.
func (p *HostedChatProvider) attachNetworkListener(ctx context.Context, session *interceptor.Session) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		if !strings.Contains(resp.Response.URL, p.cfg.APIURLSubstring) {
			return
		}
		contentType := resp.Response.Headers["content-type"]
		if ct, ok := contentType.(string); !ok || !strings.Contains(ct, "text/event-stream") {
			return
		}

		requestID := resp.RequestID
		go func() {
			body, err := network.GetResponseBody(requestID).Do(ctx)
			if err != nil {
				return
			}
			session.FeedSSE(body)
		}()
	})
}

// waitForStability polls the answer container until its content is
// unchanged across two consecutive samples AND the stop-generation
// affordance is absent, per §4.2, bounded by MaxWaitBudget.
func (p *HostedChatProvider) waitForStability(ctx context.Context, cs *chromeSession) error {
	deadline := time.Now().Add(p.cfg.MaxWaitBudget)
	var previous string

	for {
		if time.Now().After(deadline) {
			return engineerr.Newf(engineerr.Timeout, fmt.Sprintf("generation did not stabilize within %s", p.cfg.MaxWaitBudget))
		}

		var current string
		if err := chromedp.Run(ctx, chromedp.Text(p.cfg.AnswerContainerSelector, &current, chromedp.ByQuery)); err != nil {
			return err
		}

		stopPresent := false
		if p.cfg.StopGenerationSelector != "" {
			present, err := cs.Exists(ctx, p.cfg.StopGenerationSelector)
			if err == nil {
				stopPresent = present
			}
		}

		if current == previous && current != "" && !stopPresent {
			return nil
		}
		previous = current

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.StabilityPollInterval):
		}
	}
}

// classifyBrowserErr distinguishes an ancestor-cancelled ctx (an explicit
// upstream cancellation, e.g. the Temporal workflow being cancelled) from
// this unit's own deadline elapsing (the per-unit TimeoutMs ctx, or
// waitForStability's MaxWaitBudget) — per §7, only the former is
// engineerr.Cancelled; a deadline is always engineerr.Timeout.
func classifyBrowserErr(ctx context.Context, err error) error {
	if kind := engineerr.KindOf(err); kind != "" {
		// Already classified by the caller (e.g. waitForStability's own
		// Timeout) — don't reclassify it against ctx.Err().
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return engineerr.New(engineerr.Timeout, ctx.Err())
	}
	if ctx.Err() != nil {
		return engineerr.New(engineerr.Cancelled, ctx.Err())
	}
	return engineerr.New(engineerr.ProviderError, err)
}

// chromeSession implements BrowserSession against a live chromedp context.
type chromeSession struct {
	ctx context.Context
}

func (c *chromeSession) HasClass(ctx context.Context, selector, class string) (bool, error) {
	var has bool
	err := chromedp.Run(ctx, chromedp.EvaluateAsDevTools(
		fmt.Sprintf(`document.querySelector(%q)?.classList.contains(%q) || false`, selector, class), &has,
	))
	return has, err
}

func (c *chromeSession) ComputedColor(ctx context.Context, selector string) (string, error) {
	var color string
	err := chromedp.Run(ctx, chromedp.EvaluateAsDevTools(
		fmt.Sprintf(`window.getComputedStyle(document.querySelector(%q) || document.body).color`, selector), &color,
	))
	return color, err
}

func (c *chromeSession) Click(ctx context.Context, selector string) error {
	return chromedp.Run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (c *chromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	var exists bool
	err := chromedp.Run(ctx, chromedp.EvaluateAsDevTools(
		fmt.Sprintf(`document.querySelector(%q) !== null`, selector), &exists,
	))
	return exists, err
}
