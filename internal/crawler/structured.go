package crawler

import (
	"context"
	"strings"

	"sjsage522/discountworker/helpers"
	"sjsage522/discountworker/internal/page"
	"sjsage522/discountworker/pkg/errors"
	"sjsage522/discountworker/services/cache"
)

// StructuredCrawler reads every field of a card from its own element
type StructuredCrawler struct {
	BaseCrawler
}

// NewStructuredCrawler creates a selector-driven crawler
func NewStructuredCrawler(config CrawlerConfig, cacheSvc cache.CacheService) *StructuredCrawler {
	config.Strategy = StrategySelector
	return &StructuredCrawler{BaseCrawler: newBaseCrawler(config, cacheSvc)}
}

// FetchListings implements Crawler
func (c *StructuredCrawler) FetchListings(ctx context.Context, p page.Page) ([]Listing, error) {
	if err := c.load(ctx, p); err != nil {
		return nil, err
	}

	cards := p.FindAll(c.Selectors.Container)
	return c.collect(cards, c.processListing), nil
}

func (c *StructuredCrawler) processListing(card page.Element) (*Listing, error) {
	link, ok := card.Find(c.Selectors.Link)
	if !ok {
		return nil, errors.NewExtraction(c.Name, "link element not found")
	}
	href, _ := link.Attr("href")
	id, err := c.ResolveURL(href)
	if err != nil {
		return nil, errors.NewExtraction(c.Name, err.Error())
	}

	titleEl, ok := card.Find(c.Selectors.Title)
	if !ok {
		return nil, errors.NewExtraction(c.Name, "title element not found")
	}
	title := strings.TrimSpace(titleEl.Text())
	if title == "" {
		return nil, errors.NewExtraction(c.Name, "empty title")
	}

	priceEl, ok := card.Find(c.Selectors.Price)
	if !ok {
		return nil, errors.NewExtraction(c.Name, "price element not found")
	}
	price := helpers.ParseAmount(priceEl.Text())
	if price <= 0 {
		return nil, errors.NewExtraction(c.Name, "price is not a positive amount")
	}

	// Without a struck-through price the item is not discounted
	oldPrice := price
	if c.Selectors.OldPrice != "" {
		if el, ok := card.Find(c.Selectors.OldPrice); ok {
			if v := helpers.ParseAmount(el.Text()); v > price {
				oldPrice = v
			}
		}
	}

	listing := &Listing{
		ID:       id,
		Title:    title,
		Price:    price,
		OldPrice: oldPrice,
		Source:   c.Source,
	}

	if c.Selectors.Rating != "" {
		if el, ok := card.Find(c.Selectors.Rating); ok {
			if r := helpers.ParseRating(el.Text()); r > 0 && r <= 5 {
				listing.Rating = &r
			}
		}
	}
	if c.Selectors.Reviews != "" {
		if el, ok := card.Find(c.Selectors.Reviews); ok {
			if n := helpers.ParseAmount(el.Text()); n > 0 {
				listing.Reviews = &n
			}
		}
	}

	return listing, nil
}
