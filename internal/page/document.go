package page

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed DOM snapshot queried with goquery.
type Document struct {
	doc   *goquery.Document
	title string
}

// NewDocument parses HTML from r
func NewDocument(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("HTML parsing error: %w", err)
	}

	return &Document{
		doc:   doc,
		title: strings.TrimSpace(doc.Find("title").First().Text()),
	}, nil
}

// Title returns the text of the <title> element
func (d *Document) Title() string {
	if d == nil {
		return ""
	}
	return d.title
}

// FindAll returns every element matching selector
func (d *Document) FindAll(selector string) []Element {
	if d == nil {
		return nil
	}
	return wrapAll(d.doc.Find(selector))
}

type selectionElement struct {
	sel *goquery.Selection
}

func (e selectionElement) Text() string {
	return VisibleText(e.sel)
}

func (e selectionElement) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e selectionElement) Find(selector string) (Element, bool) {
	found := e.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, false
	}
	return selectionElement{sel: found}, true
}

func (e selectionElement) FindAll(selector string) []Element {
	return wrapAll(e.sel.Find(selector))
}

func wrapAll(sel *goquery.Selection) []Element {
	if sel.Length() == 0 {
		return nil
	}

	elements := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, selectionElement{sel: s})
	})
	return elements
}

// StaticPage serves fixed HTML per URL. It backs offline runs and tests.
type StaticPage struct {
	pages   map[string]string
	current *Document

	// Visited records every navigated URL in order
	Visited []string
	// Scrolls counts Scroll calls
	Scrolls int
}

// NewStaticPage creates a page serving html keyed by URL
func NewStaticPage(pages map[string]string) *StaticPage {
	return &StaticPage{pages: pages}
}

// Navigate implements Page
func (p *StaticPage) Navigate(ctx context.Context, url string) error {
	p.Visited = append(p.Visited, url)
	p.current = nil

	if err := ctx.Err(); err != nil {
		return err
	}

	body, ok := p.pages[url]
	if !ok {
		return fmt.Errorf("no page registered for %s", url)
	}

	doc, err := NewDocument(strings.NewReader(body))
	if err != nil {
		return err
	}
	p.current = doc
	return nil
}

// Scroll implements Page
func (p *StaticPage) Scroll(ctx context.Context, offset int) error {
	p.Scrolls++
	return ctx.Err()
}

// Title implements Page
func (p *StaticPage) Title() string {
	return p.current.Title()
}

// FindAll implements Page
func (p *StaticPage) FindAll(selector string) []Element {
	return p.current.FindAll(selector)
}

// Close implements Page
func (p *StaticPage) Close() error {
	return nil
}
