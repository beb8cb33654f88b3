package crawler

import (
	"context"
	"fmt"

	"sjsage522/discountworker/internal/page"
)

// Source identifies the marketplace a listing was scraped from
type Source string

const (
	SourceWildberries  Source = "wildberries"
	SourceOzon         Source = "ozon"
	SourceYandexMarket Source = "yandex"
)

// ParseSource validates a configured source tag
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceWildberries, SourceOzon, SourceYandexMarket:
		return Source(s), nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

// Label returns the display name used in alerts
func (s Source) Label() string {
	switch s {
	case SourceWildberries:
		return "WILDBERRIES"
	case SourceOzon:
		return "OZON"
	case SourceYandexMarket:
		return "YANDEX MARKET"
	default:
		return string(s)
	}
}

// Icon returns the marker shown in front of alerts
func (s Source) Icon() string {
	switch s {
	case SourceWildberries:
		return "🟣"
	case SourceOzon:
		return "🔵"
	case SourceYandexMarket:
		return "🟡"
	default:
		return "🛒"
	}
}

// Strategy selects how listings are extracted from a page
type Strategy string

const (
	// StrategySelector reads each field from a dedicated element
	StrategySelector Strategy = "selector"
	// StrategyTextPattern scans container text for price mentions
	StrategyTextPattern Strategy = "text"
)

// Listing represents one scraped candidate item. Prices are whole roubles.
type Listing struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Price    int      `json:"price"`
	OldPrice int      `json:"old_price"`
	Rating   *float64 `json:"rating,omitempty"`
	Reviews  *int     `json:"reviews,omitempty"`
	Source   Source   `json:"source"`
}

// Discount returns floor((OldPrice-Price)/OldPrice*100), or 0 without a reference price
func (l Listing) Discount() int {
	if l.OldPrice <= 0 || l.OldPrice <= l.Price {
		return 0
	}
	return (l.OldPrice - l.Price) * 100 / l.OldPrice
}

// Crawler interface defines the contract for all extraction strategies
type Crawler interface {
	// FetchListings loads the source's catalog page into p and extracts candidates.
	// Candidates that fail to parse are dropped; a returned error means the
	// whole source is skipped for this pass.
	FetchListings(ctx context.Context, p page.Page) ([]Listing, error)

	// GetName returns the crawler's name for logging and identification
	GetName() string

	// GetSource returns the marketplace the crawler scans
	GetSource() Source

	// AlertCap bounds qualifying alerts per pass; 0 means unlimited
	AlertCap() int
}

// ProcessorFunc turns one container element into a listing
type ProcessorFunc func(page.Element) (*Listing, error)

// Selectors contains CSS selectors for the elements of a listing card
type Selectors struct {
	Container string
	Link      string
	Title     string
	Price     string
	OldPrice  string
	Rating    string
	Reviews   string
}

// CrawlerConfig contains configuration for a crawler
type CrawlerConfig struct {
	Name      string
	Source    Source
	Strategy  Strategy
	URL       string
	BaseURL   string
	Selectors Selectors

	// BlockMarkers are page-title substrings of challenge/interstitial pages
	BlockMarkers []string
	CacheKey     string
	BlockTime    int

	ScrollOffset     int
	AlertCap         int
	RequireHost      string
	AcceptBareRating bool
	MinTitleLength   int
}
