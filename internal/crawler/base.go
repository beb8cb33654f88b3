package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"sjsage522/discountworker/internal/page"
	"sjsage522/discountworker/logger"
	"sjsage522/discountworker/pkg/errors"
	"sjsage522/discountworker/services/cache"
)

// BaseCrawler provides common functionality for all crawlers
type BaseCrawler struct {
	CrawlerConfig
	CacheSvc cache.CacheService
	log      *logger.Logger
}

func newBaseCrawler(config CrawlerConfig, cacheSvc cache.CacheService) BaseCrawler {
	if config.Name == "" {
		config.Name = config.Source.Label()
	}
	return BaseCrawler{
		CrawlerConfig: config,
		CacheSvc:      cacheSvc,
		log:           logger.ForSource(config.Name),
	}
}

// GetName returns the crawler name
func (c *BaseCrawler) GetName() string {
	return c.Name
}

// GetSource returns the marketplace
func (c *BaseCrawler) GetSource() Source {
	return c.Source
}

// AlertCap returns the per-pass alert limit
func (c *BaseCrawler) AlertCap() int {
	return c.CrawlerConfig.AlertCap
}

// load navigates p to the catalog page and checks it is not a challenge page
func (c *BaseCrawler) load(ctx context.Context, p page.Page) error {
	// Check if the source is backing off after a block page
	if c.CacheSvc != nil && c.CacheKey != "" {
		if _, err := c.CacheSvc.Get(c.CacheKey); err == nil {
			return errors.NewBlocked(c.Name, fmt.Sprintf("backing off for up to %ds after a block page", c.BlockTime))
		}
	}

	if err := p.Navigate(ctx, c.URL); err != nil {
		return errors.NewNavigation(c.Name, "failed to load catalog page", err)
	}

	if c.ScrollOffset > 0 {
		if err := p.Scroll(ctx, c.ScrollOffset); err != nil {
			c.log.Warn().Err(err).Msg("Scroll failed, extracting from the initial viewport")
		}
	}

	if marker := c.blockMarker(p.Title()); marker != "" {
		c.markBlocked()
		return errors.NewBlocked(c.Name, fmt.Sprintf("challenge page detected (title contains %q)", marker))
	}

	return nil
}

func (c *BaseCrawler) blockMarker(title string) string {
	lower := strings.ToLower(title)
	for _, marker := range c.BlockMarkers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return marker
		}
	}
	return ""
}

func (c *BaseCrawler) markBlocked() {
	if c.CacheSvc == nil || c.CacheKey == "" || c.BlockTime <= 0 {
		return
	}

	blockTime := time.Duration(c.BlockTime) * time.Second
	if err := c.CacheSvc.Set(c.CacheKey, []byte(fmt.Sprintf("%d", c.BlockTime)), blockTime); err != nil {
		c.log.Warn().Err(err).Msg("Failed to store block backoff")
	}
}

// ResolveURL turns a card link into the canonical listing identifier:
// absolute, without query string or fragment.
func (c *BaseCrawler) ResolveURL(href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty link")
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}

	base := c.BaseURL
	if base == "" {
		base = c.URL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}

	abs := baseURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", fmt.Errorf("unsupported link scheme %q", abs.Scheme)
	}
	if c.RequireHost != "" && !hostMatches(abs.Hostname(), c.RequireHost) {
		return "", fmt.Errorf("link %s is outside %s", abs.Host, c.RequireHost)
	}

	abs.RawQuery = ""
	abs.ForceQuery = false
	abs.Fragment = ""
	return abs.String(), nil
}

func hostMatches(host, required string) bool {
	host = strings.ToLower(host)
	required = strings.ToLower(required)
	return host == required || strings.HasSuffix(host, "."+required)
}

// collect runs processor over every element in page order. Failed candidates
// are dropped and repeated identifiers keep their first occurrence.
func (c *BaseCrawler) collect(elements []page.Element, processor ProcessorFunc) []Listing {
	seen := make(map[string]struct{}, len(elements))
	var listings []Listing
	dropped := 0

	for _, el := range elements {
		listing, err := processor(el)
		if err != nil {
			dropped++
			if logger.IsDebugEnabled() {
				c.log.Debug().Err(err).Msg("Candidate dropped")
			}
			continue
		}

		if _, dup := seen[listing.ID]; dup {
			continue
		}
		seen[listing.ID] = struct{}{}
		listings = append(listings, *listing)
	}

	c.log.Debug().
		Int("containers", len(elements)).
		Int("listings", len(listings)).
		Int("dropped", dropped).
		Msg("Extraction finished")

	return listings
}
