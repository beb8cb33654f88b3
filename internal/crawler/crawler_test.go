package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/discountworker/config"
	"sjsage522/discountworker/internal/page"
	"sjsage522/discountworker/pkg/errors"
	"sjsage522/discountworker/services/cache"
)

// mockCacheService implements a simple in-memory cache for testing
type mockCacheService struct {
	data map[string][]byte
	ttl  map[string]time.Duration
}

var _ cache.CacheService = (*mockCacheService)(nil)

func newMockCacheService() *mockCacheService {
	return &mockCacheService{
		data: make(map[string][]byte),
		ttl:  make(map[string]time.Duration),
	}
}

func (m *mockCacheService) Get(key string) ([]byte, error) {
	if val, ok := m.data[key]; ok {
		return val, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *mockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.data[key] = value
	m.ttl[key] = expiration
	return nil
}

const (
	wbURL     = "https://www.wildberries.ru/catalog/0/search.aspx?search=laptop"
	ozonURL   = "https://www.ozon.ru/category/noutbuki-15692/?sorting=discount"
	yandexURL = "https://market.yandex.ru/catalog--noutbuki/54544/list"
)

const wbHTML = `<html><head><title>Ноутбуки - Wildberries</title></head><body>
<div class="product-card">
	<a class="product-card__link" href="/catalog/123/detail.aspx?targetUrl=XS"></a>
	<span class="product-card__name">Ноутбук ASUS VivoBook 15</span>
	<ins class="price__lower-price">29 990 ₽</ins> <del>59 990 ₽</del>
	<span class="address-rate-mini">4,7</span>
	<span class="product-card__count">1 234 оценки</span>
</div>
<div class="product-card">
	<a class="product-card__link" href="https://www.wildberries.ru/catalog/456/detail.aspx"></a>
	<span class="product-card__name">Ноутбук Lenovo IdeaPad</span>
	<ins class="price__lower-price">45 000 ₽</ins>
</div>
<div class="product-card">
	<a class="product-card__link" href="/catalog/789/detail.aspx"></a>
	<span class="product-card__name">Ноутбук HP 250</span>
</div>
<div class="product-card">
	<span class="product-card__name">Ноутбук без ссылки</span>
	<ins class="price__lower-price">15 000 ₽</ins>
</div>
</body></html>`

const ozonHTML = `<html><head><title>Ноутбуки купить на OZON</title></head><body>
<div class="tile">
	<a href="/product/noutbuk-acer-aspire-7-123456/?asb=xyz"><div>Ноутбук Acer Aspire 7</div><div><span>49 990 ₽</span> <span>99 990 ₽</span></div><div>4.8</div></a>
	<a href="/product/noutbuk-acer-aspire-7-123456/"><img src="acer.jpg"></a>
	<a href="/product/noutbuk-acer-aspire-7-123456/?from=dup">Ноутбук Acer Aspire: 49 990 ₽ 99 990 ₽</a>
</div>
<div class="tile">
	<a href="https://www.ozon.ru/product/mysh-111/"><div>Мышь</div><div>2 990 ₽ 3 990 ₽</div></a>
</div>
<div class="tile">
	<a href="https://partner.example.com/item/1"><div>Ноутбук партнера</div><div>10 000 ₽ 30 000 ₽</div></a>
</div>
<div class="tile">
	<a href="/product/one-price/"><div>Ноутбук HP 250 G9</div><div>35 000 ₽</div></a>
</div>
<div class="tile">
	<a href="/product/noutbuk-msi-222/"><div>Ноутбук MSI Katana</div><div>80 000 ₽</div><div>120 000 ₽</div><div>4,9 (1 250 отзывов)</div></a>
</div>
</body></html>`

const yandexHTML = `<html><head><title>Ноутбуки на Яндекс Маркете</title></head><body>
<div data-auto="product-card">
	<a href="/product--noutbuk-huawei-matebook/123?sku=1&cpc=abc"><img src="h.jpg"></a>
	<h3>Ноутбук HUAWEI MateBook D 16</h3>
	<div>54 990 ₽</div><div>89 990 ₽</div>
	<div>4,8 (120 отзывов)</div>
</div>
<div data-auto="product-card">
	<h3>Ноутбук без ссылки</h3>
	<div>54 990 ₽</div><div>89 990 ₽</div>
</div>
</body></html>`

func testCrawlerConfig(source Source, url string) CrawlerConfig {
	c := Preset(source)
	c.URL = url
	c.AcceptBareRating = true
	c.CacheKey = string(source) + "_blocked"
	c.BlockTime = 600
	return c
}

func TestStructuredCrawler_FetchListings(t *testing.T) {
	p := page.NewStaticPage(map[string]string{wbURL: wbHTML})
	c := NewStructuredCrawler(testCrawlerConfig(SourceWildberries, wbURL), nil)

	listings, err := c.FetchListings(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, 1, p.Scrolls)

	asus := listings[0]
	assert.Equal(t, "https://www.wildberries.ru/catalog/123/detail.aspx", asus.ID)
	assert.Equal(t, "Ноутбук ASUS VivoBook 15", asus.Title)
	assert.Equal(t, 29990, asus.Price)
	assert.Equal(t, 59990, asus.OldPrice)
	assert.Equal(t, 50, asus.Discount())
	assert.Equal(t, SourceWildberries, asus.Source)
	require.NotNil(t, asus.Rating)
	assert.InDelta(t, 4.7, *asus.Rating, 0.001)
	require.NotNil(t, asus.Reviews)
	assert.Equal(t, 1234, *asus.Reviews)

	lenovo := listings[1]
	assert.Equal(t, 45000, lenovo.Price)
	assert.Equal(t, lenovo.Price, lenovo.OldPrice)
	assert.Equal(t, 0, lenovo.Discount())
	assert.Nil(t, lenovo.Rating)
	assert.Nil(t, lenovo.Reviews)
}

func TestTextPatternCrawler_Ozon(t *testing.T) {
	p := page.NewStaticPage(map[string]string{ozonURL: ozonHTML})
	c := NewTextPatternCrawler(testCrawlerConfig(SourceOzon, ozonURL), nil)

	listings, err := c.FetchListings(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, listings, 3)
	assert.Equal(t, 0, p.Scrolls)
	assert.Equal(t, config.DefaultOzonAlertCap, c.AlertCap())

	acer := listings[0]
	assert.Equal(t, "https://www.ozon.ru/product/noutbuk-acer-aspire-7-123456/", acer.ID)
	assert.Equal(t, "Ноутбук Acer Aspire 7", acer.Title)
	assert.Equal(t, 49990, acer.Price)
	assert.Equal(t, 99990, acer.OldPrice)
	require.NotNil(t, acer.Rating)
	assert.InDelta(t, 4.8, *acer.Rating, 0.001)
	assert.Nil(t, acer.Reviews)

	mouse := listings[1]
	assert.Equal(t, "Товар Ozon", mouse.Title)
	assert.Equal(t, 2990, mouse.Price)
	assert.Equal(t, 3990, mouse.OldPrice)
	assert.Nil(t, mouse.Rating)

	msi := listings[2]
	assert.Equal(t, "https://www.ozon.ru/product/noutbuk-msi-222/", msi.ID)
	assert.Equal(t, 80000, msi.Price)
	assert.Equal(t, 120000, msi.OldPrice)
	require.NotNil(t, msi.Rating)
	assert.InDelta(t, 4.9, *msi.Rating, 0.001)
	require.NotNil(t, msi.Reviews)
	assert.Equal(t, 1250, *msi.Reviews)
}

func TestTextPatternCrawler_BareRatingDisabled(t *testing.T) {
	p := page.NewStaticPage(map[string]string{ozonURL: ozonHTML})
	cfg := testCrawlerConfig(SourceOzon, ozonURL)
	cfg.AcceptBareRating = false
	c := NewTextPatternCrawler(cfg, nil)

	listings, err := c.FetchListings(context.Background(), p)
	require.NoError(t, err)
	require.NotEmpty(t, listings)
	assert.Nil(t, listings[0].Rating)
}

func TestTextPatternCrawler_Yandex(t *testing.T) {
	p := page.NewStaticPage(map[string]string{yandexURL: yandexHTML})
	c := NewTextPatternCrawler(testCrawlerConfig(SourceYandexMarket, yandexURL), nil)

	listings, err := c.FetchListings(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, listings, 1)

	l := listings[0]
	assert.Equal(t, "https://market.yandex.ru/product--noutbuk-huawei-matebook/123", l.ID)
	assert.Equal(t, "Ноутбук HUAWEI MateBook D 16", l.Title)
	assert.Equal(t, 54990, l.Price)
	assert.Equal(t, 89990, l.OldPrice)
	assert.Equal(t, 38, l.Discount())
	require.NotNil(t, l.Reviews)
	assert.Equal(t, 120, *l.Reviews)
	assert.Equal(t, 0, c.AlertCap())
}

func TestBlockPageBacksOff(t *testing.T) {
	mockCache := newMockCacheService()
	p := page.NewStaticPage(map[string]string{
		ozonURL: `<html><head><title>Access Denied</title></head><body><a href="/x">1 ₽ 2 ₽</a></body></html>`,
	})
	c := NewTextPatternCrawler(testCrawlerConfig(SourceOzon, ozonURL), mockCache)

	listings, err := c.FetchListings(context.Background(), p)
	assert.Nil(t, listings)
	assert.True(t, errors.IsBlocked(err))
	assert.Contains(t, mockCache.data, "ozon_blocked")
	assert.Equal(t, 600*time.Second, mockCache.ttl["ozon_blocked"])

	// While backing off the page is not loaded at all
	_, err = c.FetchListings(context.Background(), p)
	assert.True(t, errors.IsBlocked(err))
	assert.Len(t, p.Visited, 1)
}

func TestBlockPageWithoutCache(t *testing.T) {
	p := page.NewStaticPage(map[string]string{
		yandexURL: `<html><head><title>Captcha</title></head><body></body></html>`,
	})
	c := NewTextPatternCrawler(testCrawlerConfig(SourceYandexMarket, yandexURL), nil)

	_, err := c.FetchListings(context.Background(), p)
	assert.True(t, errors.IsBlocked(err))

	_, err = c.FetchListings(context.Background(), p)
	assert.True(t, errors.IsBlocked(err))
	assert.Len(t, p.Visited, 2)
}

func TestNavigationError(t *testing.T) {
	p := page.NewStaticPage(map[string]string{})
	c := NewStructuredCrawler(testCrawlerConfig(SourceWildberries, wbURL), nil)

	_, err := c.FetchListings(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeNavigation, errors.TypeOf(err))
}

func TestResolveURL(t *testing.T) {
	c := NewTextPatternCrawler(testCrawlerConfig(SourceOzon, ozonURL), nil)

	tests := []struct {
		href    string
		want    string
		wantErr bool
	}{
		{href: "/product/a-1/?asb=1#reviews", want: "https://www.ozon.ru/product/a-1/"},
		{href: "https://www.ozon.ru/product/a-1/", want: "https://www.ozon.ru/product/a-1/"},
		{href: "//seller.ozon.ru/product/a-1?x=1", want: "https://seller.ozon.ru/product/a-1"},
		{href: "https://notozon.ru/product/a-1/", wantErr: true},
		{href: "javascript:void(0)", wantErr: true},
		{href: "  ", wantErr: true},
	}

	for _, tt := range tests {
		got, err := c.ResolveURL(tt.href)
		if tt.wantErr {
			assert.Error(t, err, tt.href)
			continue
		}
		assert.NoError(t, err, tt.href)
		assert.Equal(t, tt.want, got)
	}
}

func TestSourceLabels(t *testing.T) {
	assert.Equal(t, "WILDBERRIES", SourceWildberries.Label())
	assert.Equal(t, "🔵", SourceOzon.Icon())
	assert.Equal(t, "YANDEX MARKET", SourceYandexMarket.Label())

	_, err := ParseSource("avito")
	assert.Error(t, err)
}

func TestCreateCrawlers(t *testing.T) {
	alertCap := 5
	scroll := 0
	cfg := &config.Config{
		OzonAlertCap:     config.DefaultOzonAlertCap,
		AcceptBareRating: true,
		BlockTime:        300,
		Sources: []config.SourceConfig{
			{Source: "wildberries", URL: wbURL, ScrollOffset: &scroll},
			{Source: "ozon", URL: ozonURL},
			{Source: "yandex", URL: yandexURL, AlertCap: &alertCap, Selectors: config.Selectors{Link: "a.link"}},
		},
	}

	crawlers, err := CreateCrawlers(cfg, newMockCacheService())
	require.NoError(t, err)
	require.Len(t, crawlers, 3)

	wb, ok := crawlers[0].(*StructuredCrawler)
	require.True(t, ok)
	assert.Equal(t, 0, wb.ScrollOffset)
	assert.Equal(t, "WILDBERRIES", wb.GetName())

	ozon, ok := crawlers[1].(*TextPatternCrawler)
	require.True(t, ok)
	assert.Equal(t, 3, ozon.AlertCap())
	assert.Equal(t, "ozon_blocked", ozon.CacheKey)
	assert.Equal(t, 300, ozon.BlockTime)

	yandex, ok := crawlers[2].(*TextPatternCrawler)
	require.True(t, ok)
	assert.Equal(t, 5, yandex.AlertCap())
	assert.Equal(t, "a.link", yandex.Selectors.Link)
	assert.Equal(t, `[data-auto="product-card"]`, yandex.Selectors.Container)

	cfg.Sources = []config.SourceConfig{{Source: "avito", URL: "https://avito.ru"}}
	_, err = CreateCrawlers(cfg, nil)
	assert.Error(t, err)
}
