// Package page abstracts the rendered page a crawler extracts listings from.
//
// A Page is navigated to a catalog URL, optionally scrolled so lazy cards
// load, and then queried with CSS selectors. Implementations keep a parsed
// snapshot of the current DOM; elements returned by FindAll belong to that
// snapshot and are invalidated by the next Navigate or Scroll.
package page

import "context"

// Page is a single browser-like tab.
type Page interface {
	// Navigate loads url and replaces the current snapshot
	Navigate(ctx context.Context, url string) error

	// Scroll moves the viewport to the given vertical offset and refreshes the snapshot
	Scroll(ctx context.Context, offset int) error

	// Title returns the document title of the current snapshot
	Title() string

	// FindAll returns every element matching selector
	FindAll(selector string) []Element

	// Close releases the underlying browser resources
	Close() error
}

// Element is one node of the current snapshot.
type Element interface {
	// Text returns the visible text, one line per block-level element
	Text() string

	// Attr returns the value of the named attribute
	Attr(name string) (string, bool)

	// Find returns the first descendant matching selector
	Find(selector string) (Element, bool)

	// FindAll returns every descendant matching selector
	FindAll(selector string) []Element
}
