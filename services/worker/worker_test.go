package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/discountworker/internal/crawler"
	"sjsage522/discountworker/internal/filter"
	"sjsage522/discountworker/internal/ledger"
	"sjsage522/discountworker/internal/page"
	"sjsage522/discountworker/pkg/errors"
	"sjsage522/discountworker/services/publisher"
)

// MockCrawler implements the crawler.Crawler interface for testing
type MockCrawler struct {
	name     string
	listings []crawler.Listing
	fetchErr error
	panicMsg string
	cap      int
	calls    int
	onFetch  func()
}

// Ensure MockCrawler implements crawler.Crawler
var _ crawler.Crawler = (*MockCrawler)(nil)

func (m *MockCrawler) FetchListings(ctx context.Context, p page.Page) ([]crawler.Listing, error) {
	m.calls++
	if m.onFetch != nil {
		m.onFetch()
	}
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.listings, m.fetchErr
}

func (m *MockCrawler) GetName() string {
	return m.name
}

func (m *MockCrawler) GetSource() crawler.Source {
	return crawler.SourceOzon
}

func (m *MockCrawler) AlertCap() int {
	return m.cap
}

// MockNotifier records notified listings
type MockNotifier struct {
	mu       sync.Mutex
	notified []string
}

var _ Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, l crawler.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, l.ID)
}

// MockPublisher counts stream trims
type MockPublisher struct {
	trims    int
	panicMsg string
}

var _ publisher.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, key string, message []byte) error {
	return nil
}

func (m *MockPublisher) TrimStreams(ctx context.Context) error {
	m.trims++
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// MockStore is an in-memory ledger.Store counting saves
type MockStore struct {
	ids        []string
	saves      int
	panicSaves int
}

var _ ledger.Store = (*MockStore)(nil)

func (m *MockStore) Load(ctx context.Context) ([]string, error) {
	return m.ids, nil
}

func (m *MockStore) Save(ctx context.Context, ids []string) error {
	m.saves++
	if m.saves <= m.panicSaves {
		panic("disk on fire")
	}
	m.ids = append([]string(nil), ids...)
	return nil
}

// fakeClock advances only when slept on or moved explicitly
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	cancel context.CancelFunc
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return ctx.Err()
}

func criteria() filter.Criteria {
	return filter.Criteria{
		MinDiscountPercent: 40,
		MinPrice:           2000,
		MinRating:          4.0,
		MinReviewCount:     5,
		ExcludedKeywords:   []string{"чехол"},
	}
}

func deal(i int) crawler.Listing {
	return crawler.Listing{
		ID:       fmt.Sprintf("https://www.ozon.ru/product/%d/", i),
		Title:    fmt.Sprintf("Ноутбук %d", i),
		Price:    5000,
		OldPrice: 10000,
		Source:   crawler.SourceOzon,
	}
}

func newTestWorker(crawlers []crawler.Crawler, store *MockStore, n *MockNotifier, clock Clock) *Worker {
	l := ledger.Load(context.Background(), store, ledger.DefaultLimit)
	cfg := Config{
		WorkDuration: 10 * time.Minute,
		PassInterval: 2 * time.Minute,
		Criteria:     criteria(),
	}
	return NewWorker(crawlers, page.NewStaticPage(nil), l, n, cfg).WithClock(clock)
}

func TestRunStopsWhenBudgetIsSpent(t *testing.T) {
	c := &MockCrawler{name: "ozon"}
	clock := newFakeClock()
	pub := &MockPublisher{}
	w := newTestWorker([]crawler.Crawler{c}, &MockStore{}, &MockNotifier{}, clock).WithPublisher(pub)

	err := w.Run(context.Background())
	require.NoError(t, err)

	// Passes at t=0,2,4,6,8; the budget is spent after the fifth sleep
	assert.Equal(t, 5, c.calls)
	assert.Len(t, clock.sleeps, 5)
	assert.Equal(t, 5, pub.trims)

	status := w.Status()
	assert.Equal(t, StateExpired, status.State)
	assert.Equal(t, 5, status.Passes)
}

func TestRunSkipsSleepAfterFinalPass(t *testing.T) {
	clock := newFakeClock()
	c := &MockCrawler{name: "ozon", onFetch: func() { clock.advance(5 * time.Minute) }}
	w := newTestWorker([]crawler.Crawler{c}, &MockStore{}, &MockNotifier{}, clock)
	w.config.PassInterval = time.Minute
	w.config.WorkDuration = 8 * time.Minute

	// t=0 pass, t=5 sleep, t=6 pass, t=11 budget spent without sleeping again
	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 2, c.calls)
	assert.Len(t, clock.sleeps, 1)
}

func TestRunDeduplicatesAcrossPasses(t *testing.T) {
	c := &MockCrawler{name: "ozon", listings: []crawler.Listing{deal(1), deal(2)}}
	n := &MockNotifier{}
	store := &MockStore{}
	w := newTestWorker([]crawler.Crawler{c}, store, n, newFakeClock())

	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, []string{deal(1).ID, deal(2).ID}, n.notified)
	assert.Equal(t, []string{deal(1).ID, deal(2).ID}, store.ids)
	assert.Equal(t, 2, w.Status().Alerts)
	assert.Equal(t, 2, w.Status().LedgerSize)
}

func TestRunSkipsListingsFromPreviousRun(t *testing.T) {
	c := &MockCrawler{name: "ozon", listings: []crawler.Listing{deal(1), deal(2)}}
	n := &MockNotifier{}
	store := &MockStore{ids: []string{deal(1).ID}}
	w := newTestWorker([]crawler.Crawler{c}, store, n, newFakeClock())

	w.RunPass(context.Background())
	assert.Equal(t, []string{deal(2).ID}, n.notified)
}

func TestRunPassAppliesFilter(t *testing.T) {
	cheap := deal(1)
	cheap.Price = 1500
	cheap.OldPrice = 9000
	accessory := deal(2)
	accessory.Title = "Чехол для ноутбука"
	noDiscount := deal(3)
	noDiscount.OldPrice = noDiscount.Price

	c := &MockCrawler{name: "ozon", listings: []crawler.Listing{cheap, accessory, noDiscount, deal(4)}}
	n := &MockNotifier{}
	store := &MockStore{}
	w := newTestWorker([]crawler.Crawler{c}, store, n, newFakeClock())

	alerts := w.RunPass(context.Background())
	assert.Equal(t, 1, alerts)
	assert.Equal(t, []string{deal(4).ID}, n.notified)
	// Rejected listings are not remembered
	assert.Equal(t, []string{deal(4).ID}, store.ids)
}

func TestRunPassAlertCap(t *testing.T) {
	var listings []crawler.Listing
	for i := 1; i <= 5; i++ {
		listings = append(listings, deal(i))
	}
	c := &MockCrawler{name: "ozon", listings: listings, cap: 3}
	n := &MockNotifier{}
	w := newTestWorker([]crawler.Crawler{c}, &MockStore{}, n, newFakeClock())

	assert.Equal(t, 3, w.RunPass(context.Background()))
	assert.Equal(t, []string{deal(1).ID, deal(2).ID, deal(3).ID}, n.notified)

	// Capped listings were not recorded and are alerted on the next pass
	assert.Equal(t, 2, w.RunPass(context.Background()))
	assert.Equal(t, []string{deal(4).ID, deal(5).ID}, n.notified[3:])
}

func TestRunPassIsolatesSourceFailures(t *testing.T) {
	blocked := &MockCrawler{name: "blocked", fetchErr: errors.NewBlocked("blocked", "captcha")}
	broken := &MockCrawler{name: "broken", panicMsg: "nil selection"}
	healthy := &MockCrawler{name: "healthy", listings: []crawler.Listing{deal(1)}}

	n := &MockNotifier{}
	store := &MockStore{}
	w := newTestWorker([]crawler.Crawler{blocked, broken, healthy}, store, n, newFakeClock())

	assert.NotPanics(t, func() { w.RunPass(context.Background()) })
	assert.Equal(t, []string{deal(1).ID}, n.notified)
	assert.Equal(t, []string{deal(1).ID}, store.ids)

	status := w.Status()
	assert.Contains(t, status.LastErrors["blocked"], "captcha")
	assert.Contains(t, status.LastErrors["broken"], "panic: nil selection")
	assert.NotContains(t, status.LastErrors, "healthy")
}

func TestRunPassFlushesAfterEverySource(t *testing.T) {
	a := &MockCrawler{name: "a", listings: []crawler.Listing{deal(1)}}
	b := &MockCrawler{name: "b", listings: []crawler.Listing{deal(2)}}
	store := &MockStore{}
	w := newTestWorker([]crawler.Crawler{a, b}, store, &MockNotifier{}, newFakeClock())

	w.RunPass(context.Background())
	assert.Equal(t, 2, store.saves)
}

func TestRunCanceledDuringSleepFlushes(t *testing.T) {
	c := &MockCrawler{name: "ozon", listings: []crawler.Listing{deal(1)}}
	store := &MockStore{}
	clock := newFakeClock()
	w := newTestWorker([]crawler.Crawler{c}, store, &MockNotifier{}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	clock.cancel = cancel

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, []string{deal(1).ID}, store.ids)
	assert.Equal(t, StateExpired, w.Status().State)
}

func TestRunReturnsPanicAsInternalError(t *testing.T) {
	c := &MockCrawler{name: "ozon", listings: []crawler.Listing{deal(1)}}
	store := &MockStore{}
	pub := &MockPublisher{panicMsg: "trim exploded"}
	w := newTestWorker([]crawler.Crawler{c}, store, &MockNotifier{}, newFakeClock()).WithPublisher(pub)

	var err error
	require.NotPanics(t, func() { err = w.Run(context.Background()) })

	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeInternal, errors.TypeOf(err))
	assert.Contains(t, err.Error(), "trim exploded")
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, []string{deal(1).ID}, store.ids)
	assert.Equal(t, StateExpired, w.Status().State)
}

func TestRunRetriesFlushAfterStorePanic(t *testing.T) {
	c := &MockCrawler{name: "ozon", listings: []crawler.Listing{deal(1)}}
	store := &MockStore{panicSaves: 1}
	w := newTestWorker([]crawler.Crawler{c}, store, &MockNotifier{}, newFakeClock())

	var err error
	require.NotPanics(t, func() { err = w.Run(context.Background()) })

	assert.Equal(t, errors.ErrorTypeInternal, errors.TypeOf(err))
	// The in-pass save panicked; the exit flush saved the listing
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, []string{deal(1).ID}, store.ids)
}

func TestRunAlreadyCanceled(t *testing.T) {
	c := &MockCrawler{name: "ozon"}
	w := newTestWorker([]crawler.Crawler{c}, &MockStore{}, &MockNotifier{}, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
	assert.Equal(t, 0, c.calls)
}

func TestStatusBeforeRun(t *testing.T) {
	w := newTestWorker(nil, &MockStore{ids: []string{"a", "b"}}, &MockNotifier{}, newFakeClock())

	status := w.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, 2, status.LedgerSize)
	assert.Equal(t, 0, status.Passes)
}

func TestRealClockSleepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, RealClock().Sleep(ctx, time.Hour), context.Canceled)
}
