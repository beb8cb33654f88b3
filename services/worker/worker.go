package worker

import (
	"context"
	"sync"
	"time"

	"sjsage522/discountworker/internal/crawler"
	"sjsage522/discountworker/internal/filter"
	"sjsage522/discountworker/internal/ledger"
	"sjsage522/discountworker/internal/page"
	"sjsage522/discountworker/logger"
	"sjsage522/discountworker/pkg/errors"
	"sjsage522/discountworker/services/publisher"
)

// State is the scan loop's lifecycle stage
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateSleeping State = "sleeping"
	StateExpired  State = "expired"
)

// Clock abstracts time so tests can drive the work budget
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns the wall clock
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Notifier delivers an alert for a qualifying listing
type Notifier interface {
	Notify(ctx context.Context, l crawler.Listing)
}

// Config holds the loop's pacing and qualification settings
type Config struct {
	WorkDuration time.Duration
	PassInterval time.Duration
	Criteria     filter.Criteria
}

// Status is a point-in-time snapshot of the worker
type Status struct {
	State      State             `json:"state"`
	Source     string            `json:"source,omitempty"`
	Passes     int               `json:"passes"`
	Alerts     int               `json:"alerts"`
	LedgerSize int               `json:"ledger_size"`
	StartedAt  time.Time         `json:"started_at"`
	LastPassAt time.Time         `json:"last_pass_at"`
	LastErrors map[string]string `json:"last_errors,omitempty"`
}

// Worker scans every source in turn on a shared page until the work budget
// is spent
type Worker struct {
	crawlers  []crawler.Crawler
	page      page.Page
	ledger    *ledger.Ledger
	notifier  Notifier
	publisher publisher.Publisher
	clock     Clock
	config    Config
	log       *logger.Logger

	mu     sync.Mutex
	status Status
}

// NewWorker creates a new worker
func NewWorker(
	crawlers []crawler.Crawler,
	p page.Page,
	l *ledger.Ledger,
	n Notifier,
	cfg Config,
) *Worker {
	return &Worker{
		crawlers: crawlers,
		page:     p,
		ledger:   l,
		notifier: n,
		clock:    RealClock(),
		config:   cfg,
		log:      logger.ForWorker(),
		status:   Status{State: StateIdle, LastErrors: map[string]string{}},
	}
}

// WithClock replaces the wall clock
func (w *Worker) WithClock(c Clock) *Worker {
	w.clock = c
	return w
}

// WithPublisher trims the alert streams after every pass
func (w *Worker) WithPublisher(p publisher.Publisher) *Worker {
	w.publisher = p
	return w
}

// Run scans until the work budget is spent or ctx is canceled. The ledger is
// flushed on every exit path and a panic is returned as an internal error.
func (w *Worker) Run(ctx context.Context) (err error) {
	start := w.clock.Now()
	w.update(func(s *Status) {
		s.StartedAt = start
	})

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternal("worker", r)
			w.log.Error().Err(err).Msg("Worker loop panicked")
		}
		w.flushOnExit(ctx)
		w.setState(StateExpired, "")
	}()

	w.log.Info().
		Int("sources", len(w.crawlers)).
		Dur("budget", w.config.WorkDuration).
		Dur("interval", w.config.PassInterval).
		Int("ledger", w.ledger.Len()).
		Msg("Worker started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.clock.Now().Sub(start) >= w.config.WorkDuration {
			break
		}

		alerts := w.RunPass(ctx)
		w.trimStreams(ctx)

		elapsed := w.clock.Now().Sub(start)
		w.log.Info().Int("alerts", alerts).Dur("elapsed", elapsed).Msg("Pass finished")
		if elapsed >= w.config.WorkDuration {
			break
		}

		w.setState(StateSleeping, "")
		if err := w.clock.Sleep(ctx, w.config.PassInterval); err != nil {
			return err
		}
	}

	w.log.Info().Dur("budget", w.config.WorkDuration).Msg("Work budget spent")
	return nil
}

// RunPass scans every source once and returns the number of alerts sent
func (w *Worker) RunPass(ctx context.Context) int {
	total := 0

	for _, c := range w.crawlers {
		if ctx.Err() != nil {
			break
		}

		alerts, err := w.scanSource(ctx, c)
		total += alerts
		w.recordResult(c.GetName(), alerts, err)

		// Persist after every source so a crash later in the pass keeps its alerts
		w.ledger.Flush(context.WithoutCancel(ctx))
	}

	w.update(func(s *Status) {
		s.Passes++
		s.LastPassAt = w.clock.Now()
	})
	return total
}

func (w *Worker) scanSource(ctx context.Context, c crawler.Crawler) (alerts int, err error) {
	name := c.GetName()
	log := logger.ForSource(name)

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternal(name, r)
		}
	}()

	w.setState(StateRunning, name)

	listings, err := c.FetchListings(ctx, w.page)
	if err != nil {
		return 0, err
	}

	limit := c.AlertCap()
	for _, l := range listings {
		if limit > 0 && alerts >= limit {
			log.Debug().Int("cap", limit).Msg("Alert cap reached")
			break
		}
		if ctx.Err() != nil {
			break
		}

		if ok, reason := filter.Check(l, w.config.Criteria); !ok {
			if logger.IsDebugEnabled() {
				log.Debug().Str("id", l.ID).Str("reason", string(reason)).Msg("Listing rejected")
			}
			continue
		}
		if w.ledger.Contains(l.ID) {
			continue
		}

		w.notifier.Notify(ctx, l)
		// Recorded even if delivery failed, so a broken transport cannot cause repeats
		w.ledger.Record(l.ID)
		alerts++
	}

	log.Info().Int("listings", len(listings)).Int("alerts", alerts).Msg("Source scanned")
	return alerts, nil
}

func (w *Worker) recordResult(name string, alerts int, err error) {
	w.update(func(s *Status) {
		s.Alerts += alerts
		if err == nil {
			delete(s.LastErrors, name)
		} else {
			s.LastErrors[name] = err.Error()
		}
	})

	if err == nil {
		return
	}

	log := logger.ForSource(name)
	switch {
	case errors.TypeOf(err) == errors.ErrorTypeInternal:
		log.Error().Err(err).Msg("Source panicked, skipped for this pass")
	case errors.SkipsSource(err):
		log.Warn().Err(err).Msg("Source skipped for this pass")
	default:
		log.Error().Err(err).Msg("Source failed")
	}
}

// flushOnExit persists the ledger even if the store itself panics
func (w *Worker) flushOnExit(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Err(errors.NewInternal("ledger", r)).Msg("Final ledger flush panicked")
		}
	}()
	w.ledger.Flush(context.WithoutCancel(ctx))
}

func (w *Worker) trimStreams(ctx context.Context) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.TrimStreams(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Failed to trim alert streams")
	}
}

// Status returns a snapshot safe to read from other goroutines
func (w *Worker) Status() Status {
	w.mu.Lock()
	s := w.status
	s.LastErrors = make(map[string]string, len(w.status.LastErrors))
	for k, v := range w.status.LastErrors {
		s.LastErrors[k] = v
	}
	w.mu.Unlock()

	s.LedgerSize = w.ledger.Len()
	return s
}

func (w *Worker) setState(state State, source string) {
	w.update(func(s *Status) {
		s.State = state
		s.Source = source
	})
}

func (w *Worker) update(fn func(*Status)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.status)
}
