package page

import (
	"context"
	"fmt"
	"strings"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"sjsage522/discountworker/helpers"
	"sjsage522/discountworker/logger"
)

// hideWebdriverJS masks the automation flag before any site script runs
const hideWebdriverJS = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// ChromeOptions configures the headless browser
type ChromeOptions struct {
	ExecPath          string
	UserAgent         string
	NavigationTimeout time.Duration
	Settle            time.Duration
	ScrollSettle      time.Duration
}

// ChromePage drives one tab of a headless Chrome via chromedp.
type ChromePage struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cancelAlloc context.CancelFunc
	opts        ChromeOptions
	doc         *Document
	log         *logger.Logger
}

// NewChromePage launches the browser and opens a tab
func NewChromePage(parent context.Context, opts ChromeOptions) (*ChromePage, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = helpers.RandomUserAgent()
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.ScrollSettle <= 0 {
		opts.ScrollSettle = 3 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)

	// Suppress chromedp log noise
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(hideWebdriverJS).Do(ctx)
		return err
	}))
	if err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &ChromePage{
		ctx:         ctx,
		cancel:      cancel,
		cancelAlloc: cancelAlloc,
		opts:        opts,
		log:         logger.ForPage(),
	}, nil
}

// Navigate implements Page
func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	p.doc = nil
	if err := ctx.Err(); err != nil {
		return err
	}

	p.log.Debug().Str("url", url).Msg("Navigating")

	tctx, cancel := context.WithTimeout(p.ctx, p.opts.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(tctx, chromedp.Navigate(url), chromedp.Sleep(p.opts.Settle)); err != nil {
		return fmt.Errorf("failed to load %s: %w", url, err)
	}

	return p.snapshot(tctx)
}

// Scroll implements Page
func (p *ChromePage) Scroll(ctx context.Context, offset int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(p.ctx, p.opts.NavigationTimeout)
	defer cancel()

	err := chromedp.Run(tctx,
		chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d);", offset), nil),
		chromedp.Sleep(p.opts.ScrollSettle),
	)
	if err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}

	return p.snapshot(tctx)
}

func (p *ChromePage) snapshot(ctx context.Context) error {
	var title, body string
	err := chromedp.Run(ctx,
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &body, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to capture DOM: %w", err)
	}

	doc, err := NewDocument(strings.NewReader(body))
	if err != nil {
		return err
	}
	if title != "" {
		doc.title = title
	}

	p.doc = doc
	return nil
}

// Title implements Page
func (p *ChromePage) Title() string {
	return p.doc.Title()
}

// FindAll implements Page
func (p *ChromePage) FindAll(selector string) []Element {
	return p.doc.FindAll(selector)
}

// Close implements Page
func (p *ChromePage) Close() error {
	p.cancel()
	p.cancelAlloc()
	return nil
}
