package crawler

import (
	"fmt"

	"sjsage522/discountworker/config"
	"sjsage522/discountworker/logger"
	"sjsage522/discountworker/services/cache"
)

// Preset returns the built-in extraction settings for a marketplace
func Preset(source Source) CrawlerConfig {
	switch source {
	case SourceWildberries:
		return CrawlerConfig{
			Source:   SourceWildberries,
			Strategy: StrategySelector,
			BaseURL:  "https://www.wildberries.ru",
			Selectors: Selectors{
				Container: ".product-card",
				Link:      ".product-card__link",
				Title:     ".product-card__name",
				Price:     ".price__lower-price",
				OldPrice:  "del",
				Rating:    ".address-rate-mini",
				Reviews:   ".product-card__count",
			},
			ScrollOffset: 1000,
		}
	case SourceOzon:
		return CrawlerConfig{
			Source:   SourceOzon,
			Strategy: StrategyTextPattern,
			BaseURL:  "https://www.ozon.ru",
			Selectors: Selectors{
				Container: "a",
			},
			BlockMarkers: []string{"Access denied", "Captcha"},
			AlertCap:     config.DefaultOzonAlertCap,
			RequireHost:  "ozon.ru",
		}
	case SourceYandexMarket:
		return CrawlerConfig{
			Source:   SourceYandexMarket,
			Strategy: StrategyTextPattern,
			BaseURL:  "https://market.yandex.ru",
			Selectors: Selectors{
				Container: `[data-auto="product-card"]`,
				Link:      "a",
			},
			BlockMarkers: []string{"Captcha"},
		}
	default:
		return CrawlerConfig{Source: source, Strategy: StrategyTextPattern}
	}
}

// CreateCrawlers creates all the crawlers based on the configuration
func CreateCrawlers(cfg *config.Config, cacheSvc cache.CacheService) ([]Crawler, error) {
	crawlers := make([]Crawler, 0, len(cfg.Sources))

	for _, sc := range cfg.Sources {
		crawlerConfig, err := buildConfig(cfg, sc)
		if err != nil {
			return nil, err
		}

		var c Crawler
		switch crawlerConfig.Strategy {
		case StrategySelector:
			c = NewStructuredCrawler(crawlerConfig, cacheSvc)
		case StrategyTextPattern:
			c = NewTextPatternCrawler(crawlerConfig, cacheSvc)
		default:
			return nil, fmt.Errorf("source %s: unknown strategy %q", sc.Source, crawlerConfig.Strategy)
		}
		crawlers = append(crawlers, c)

		logger.ForSource(c.GetName()).Debug().
			Str("strategy", string(crawlerConfig.Strategy)).
			Str("url", crawlerConfig.URL).
			Int("alert_cap", c.AlertCap()).
			Msg("Crawler created")
	}

	logger.Info("Created %d crawlers", len(crawlers))
	return crawlers, nil
}

// buildConfig overlays a configured task on its marketplace preset
func buildConfig(cfg *config.Config, sc config.SourceConfig) (CrawlerConfig, error) {
	source, err := ParseSource(sc.Source)
	if err != nil {
		return CrawlerConfig{}, err
	}

	c := Preset(source)
	if source == SourceOzon {
		c.AlertCap = cfg.OzonAlertCap
	}

	c.Name = sc.Name
	c.URL = sc.URL
	if sc.Strategy != "" {
		c.Strategy = Strategy(sc.Strategy)
	}
	if sc.BaseURL != "" {
		c.BaseURL = sc.BaseURL
	}
	if sc.BlockMarkers != nil {
		c.BlockMarkers = sc.BlockMarkers
	}
	if sc.ScrollOffset != nil {
		c.ScrollOffset = *sc.ScrollOffset
	}
	if sc.AlertCap != nil {
		c.AlertCap = *sc.AlertCap
	}
	if sc.RequireHost != "" {
		c.RequireHost = sc.RequireHost
	}
	overlaySelectors(&c.Selectors, sc.Selectors)

	c.AcceptBareRating = cfg.AcceptBareRating
	c.MinTitleLength = MinTitleLength
	c.CacheKey = fmt.Sprintf("%s_blocked", source)
	c.BlockTime = cfg.BlockTime

	return c, nil
}

func overlaySelectors(dst *Selectors, src config.Selectors) {
	set := func(field *string, value string) {
		if value != "" {
			*field = value
		}
	}
	set(&dst.Container, src.Container)
	set(&dst.Link, src.Link)
	set(&dst.Title, src.Title)
	set(&dst.Price, src.Price)
	set(&dst.OldPrice, src.OldPrice)
	set(&dst.Rating, src.Rating)
	set(&dst.Reviews, src.Reviews)
}
