package crawler

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"sjsage522/discountworker/helpers"
	"sjsage522/discountworker/internal/page"
	"sjsage522/discountworker/pkg/errors"
	"sjsage522/discountworker/services/cache"
)

const (
	// MinTitleLength is the shortest first line accepted as a title
	MinTitleLength = 5

	placeholderSuffix = "item"
)

// TextPatternCrawler extracts listings from the visible text of generic
// containers. Used where markup is obfuscated and class names rotate.
type TextPatternCrawler struct {
	BaseCrawler
	placeholder string
}

// NewTextPatternCrawler creates a text-scanning crawler
func NewTextPatternCrawler(config CrawlerConfig, cacheSvc cache.CacheService) *TextPatternCrawler {
	config.Strategy = StrategyTextPattern
	if config.MinTitleLength <= 0 {
		config.MinTitleLength = MinTitleLength
	}
	return &TextPatternCrawler{
		BaseCrawler: newBaseCrawler(config, cacheSvc),
		placeholder: PlaceholderTitle(config.Source),
	}
}

// PlaceholderTitle is used when a card's first line is too short to be a name
func PlaceholderTitle(source Source) string {
	switch source {
	case SourceOzon:
		return "Товар Ozon"
	case SourceYandexMarket:
		return "Товар Яндекс Маркет"
	case SourceWildberries:
		return "Товар Wildberries"
	default:
		return source.Label() + " " + placeholderSuffix
	}
}

// FetchListings implements Crawler
func (c *TextPatternCrawler) FetchListings(ctx context.Context, p page.Page) ([]Listing, error) {
	if err := c.load(ctx, p); err != nil {
		return nil, err
	}

	containers := p.FindAll(c.Selectors.Container)
	return c.collect(containers, c.processListing), nil
}

func (c *TextPatternCrawler) processListing(el page.Element) (*Listing, error) {
	text := el.Text()
	if !strings.Contains(text, helpers.CurrencySymbol) {
		return nil, errors.NewExtraction(c.Name, "no currency mention")
	}

	prices := helpers.ParsePriceMentions(text)
	if len(prices) < 2 {
		return nil, errors.NewExtraction(c.Name, "fewer than two price mentions")
	}
	price, oldPrice := slices.Min(prices), slices.Max(prices)
	if price <= 0 {
		return nil, errors.NewExtraction(c.Name, "price is not a positive amount")
	}

	href, ok := c.linkOf(el)
	if !ok {
		return nil, errors.NewExtraction(c.Name, "link not found")
	}
	id, err := c.ResolveURL(href)
	if err != nil {
		return nil, errors.NewExtraction(c.Name, err.Error())
	}

	lines := strings.Split(text, "\n")
	title := strings.TrimSpace(lines[0])
	if utf8.RuneCountInString(title) < c.MinTitleLength {
		title = c.placeholder
	}

	listing := &Listing{
		ID:       id,
		Title:    title,
		Price:    price,
		OldPrice: oldPrice,
		Source:   c.Source,
	}

	if rating, reviews, ok := helpers.ParseRatingReviews(text); ok {
		listing.Rating = &rating
		listing.Reviews = &reviews
	} else if c.AcceptBareRating && len(lines) > 1 {
		// The title line is skipped so "15.6" style specs are not read as ratings
		if rating, ok := helpers.ParseBareRating(strings.Join(lines[1:], "\n")); ok {
			listing.Rating = &rating
		}
	}

	return listing, nil
}

// linkOf returns the container's own href or that of its first link child
func (c *TextPatternCrawler) linkOf(el page.Element) (string, bool) {
	if c.Selectors.Link == "" {
		return el.Attr("href")
	}
	link, ok := el.Find(c.Selectors.Link)
	if !ok {
		return "", false
	}
	return link.Attr("href")
}
