package ledger

import (
	"context"
	"sync"

	"sjsage522/discountworker/logger"
	"sjsage522/discountworker/pkg/errors"
)

// DefaultLimit is how many identifiers are remembered across runs
const DefaultLimit = 500

// Store persists the ledger as an ordered list, most recent last
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, ids []string) error
}

// Ledger remembers which listings were already alerted. It is bounded to the
// most recent limit identifiers.
type Ledger struct {
	mu    sync.Mutex
	store Store
	limit int
	ids   []string
	index map[string]struct{}
	log   *logger.Logger

	// version counts changes; saved is the version last persisted
	version uint64
	saved   uint64
}

// New creates an empty ledger backed by store. A nil store keeps it in memory.
func New(store Store, limit int) *Ledger {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Ledger{
		store: store,
		limit: limit,
		index: make(map[string]struct{}),
		log:   logger.ForLedger(),
	}
}

// Load reads the persisted ledger. A missing, corrupt or unreachable store
// yields an empty ledger.
func Load(ctx context.Context, store Store, limit int) *Ledger {
	l := New(store, limit)
	if store == nil {
		return l
	}

	ids, err := store.Load(ctx)
	if err != nil {
		l.log.Warn().
			Err(errors.NewPersistence("ledger", "failed to load, starting empty", err)).
			Msg("Ledger load failed")
		return l
	}

	for _, id := range ids {
		l.add(id)
	}
	if l.trim() {
		l.version++
	}

	l.log.Info().Int("entries", len(l.ids)).Int("limit", l.limit).Msg("Ledger loaded")
	return l
}

// Contains reports whether id was recorded
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.index[id]
	return ok
}

// Record remembers id. Recording a known id is a no-op.
func (l *Ledger) Record(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.add(id) {
		return
	}
	l.trim()
	l.version++
}

// Len returns the number of remembered identifiers
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.ids)
}

// IDs returns a copy of the identifiers, most recent last
func (l *Ledger) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.ids...)
}

// Flush persists pending changes. Failures are logged and retried on the
// next flush; the in-memory ledger stays authoritative for this run.
func (l *Ledger) Flush(ctx context.Context) {
	l.mu.Lock()
	if l.store == nil || l.version == l.saved {
		l.mu.Unlock()
		return
	}
	snapshot := append([]string(nil), l.ids...)
	version := l.version
	l.mu.Unlock()

	if err := l.store.Save(ctx, snapshot); err != nil {
		l.log.Error().
			Err(errors.NewPersistence("ledger", "failed to save", err)).
			Int("entries", len(snapshot)).
			Msg("Ledger flush failed")
		return
	}

	l.mu.Lock()
	l.saved = version
	l.mu.Unlock()

	l.log.Debug().Int("entries", len(snapshot)).Msg("Ledger flushed")
}

func (l *Ledger) add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := l.index[id]; ok {
		return false
	}
	l.index[id] = struct{}{}
	l.ids = append(l.ids, id)
	return true
}

// trim evicts the oldest identifiers beyond the limit
func (l *Ledger) trim() bool {
	excess := len(l.ids) - l.limit
	if excess <= 0 {
		return false
	}
	for _, id := range l.ids[:excess] {
		delete(l.index, id)
	}
	l.ids = append([]string(nil), l.ids[excess:]...)
	return true
}
