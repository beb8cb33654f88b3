package page

import (
	"context"
	"io"

	"sjsage522/discountworker/helpers"
)

// FetchFunc retrieves the raw HTML of url
type FetchFunc func(ctx context.Context, url string) (io.Reader, error)

// HTTPPage loads pages with a plain GET. Scripts never run, so it only suits
// catalogs that render their cards server-side.
type HTTPPage struct {
	fetch FetchFunc
	doc   *Document
}

// NewHTTPPage creates a page using browser-like request headers
func NewHTTPPage() *HTTPPage {
	return &HTTPPage{fetch: helpers.FetchWithRandomHeaders}
}

// Navigate implements Page
func (p *HTTPPage) Navigate(ctx context.Context, url string) error {
	p.doc = nil

	body, err := p.fetch(ctx, url)
	if err != nil {
		return err
	}

	doc, err := NewDocument(body)
	if err != nil {
		return err
	}
	p.doc = doc
	return nil
}

// Scroll is a no-op: the static document has no viewport.
func (p *HTTPPage) Scroll(ctx context.Context, offset int) error {
	return ctx.Err()
}

// Title implements Page
func (p *HTTPPage) Title() string {
	return p.doc.Title()
}

// FindAll implements Page
func (p *HTTPPage) FindAll(selector string) []Element {
	return p.doc.FindAll(selector)
}

// Close implements Page
func (p *HTTPPage) Close() error {
	return nil
}
