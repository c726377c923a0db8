// Package memory is an in-process implementation of repository.Store. A write
// transaction works on a private copy of the state which replaces the shared
// state only on commit, so readers never observe a partial unit of work.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
)

type sequences struct {
	item, composition, lot, allocation, waste, purchase int64
}

type state struct {
	items        map[int64]domain.Item
	compositions map[int64]domain.Composition
	lots         map[int64]domain.Lot
	allocations  map[int64]domain.Allocation
	waste        map[int64]domain.WasteEntry
	purchases    map[int64]domain.Purchase
	seq          sequences
}

func newState() *state {
	return &state{
		items:        make(map[int64]domain.Item),
		compositions: make(map[int64]domain.Composition),
		lots:         make(map[int64]domain.Lot),
		allocations:  make(map[int64]domain.Allocation),
		waste:        make(map[int64]domain.WasteEntry),
		purchases:    make(map[int64]domain.Purchase),
	}
}

func (s *state) clone() *state {
	c := &state{
		items:        make(map[int64]domain.Item, len(s.items)),
		compositions: make(map[int64]domain.Composition, len(s.compositions)),
		lots:         make(map[int64]domain.Lot, len(s.lots)),
		allocations:  make(map[int64]domain.Allocation, len(s.allocations)),
		waste:        make(map[int64]domain.WasteEntry, len(s.waste)),
		purchases:    make(map[int64]domain.Purchase, len(s.purchases)),
		seq:          s.seq,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.compositions {
		c.compositions[k] = v
	}
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.allocations {
		c.allocations[k] = v
	}
	for k, v := range s.waste {
		c.waste[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	return c
}

// Store keeps the whole ledger in memory. It is safe for concurrent use;
// write transactions are serialized.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used for created_at defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

// WithTx runs fn on a private copy of the state and publishes it only when fn
// succeeds and ctx is still live.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A panic in fn unwinds past the assignment below, discarding the copy.
	tx := &memTx{st: s.st.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	s.st = tx.st
	return nil
}

// View runs fn against the last committed state.
func (s *Store) View(ctx context.Context, fn func(q repository.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&memTx{st: s.st, now: s.now})
}
