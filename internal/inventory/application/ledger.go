package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
)

type counter struct {
	mu      sync.Mutex
	stock   domain.Quantity
	members []domain.MenuItemID
}

// Ledger owns the available quantity of every stock counter. Reservations lock
// only the counters they touch, always in CounterID order.
type Ledger struct {
	log  *slog.Logger
	repo StockRepository

	// mu guards the catalog and the counters map itself, not counter values.
	mu       sync.RWMutex
	catalog  *domain.Catalog
	counters map[domain.CounterID]*counter
}

func NewLedger(log *slog.Logger, repo StockRepository) *Ledger {
	empty, _ := domain.NewCatalog(nil, nil)
	return &Ledger{
		log:      log,
		repo:     repo,
		catalog:  empty,
		counters: map[domain.CounterID]*counter{},
	}
}

// Load replaces the in-memory catalog with the persisted one.
func (l *Ledger) Load(ctx context.Context) error {
	items, pools, err := l.repo.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	catalog, err := domain.NewCatalog(items, pools)
	if err != nil {
		return err
	}
	counters := make(map[domain.CounterID]*counter)
	for id, seed := range catalog.Counters() {
		counters[id] = &counter{stock: seed.Stock, members: seed.Members}
	}

	l.mu.Lock()
	l.catalog = catalog
	l.counters = counters
	l.mu.Unlock()

	l.log.Info("stock ledger loaded", "items", len(items), "pools", len(pools))
	return nil
}

func (l *Ledger) Item(id domain.MenuItemID) (domain.MenuItem, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.catalog.Item(id)
}

// Reserve decrements stock for the whole request or for nothing at all. When
// any counter cannot cover its accumulated demand the returned error is an
// *domain.InsufficientStockError naming every requested item on such counters.
func (l *Ledger) Reserve(ctx context.Context, req domain.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	need, byCounter, err := l.resolve(req)
	if err != nil {
		return err
	}
	locked := l.lock(need)
	defer locked.unlock()

	var short []domain.MenuItemID
	for _, c := range locked.ids {
		if !l.counters[c].stock.Covers(need[c]) {
			short = append(short, byCounter[c]...)
		}
	}
	if len(short) > 0 {
		sort.Slice(short, func(i, j int) bool { return short[i] < short[j] })
		return &domain.InsufficientStockError{Items: short}
	}

	return l.apply(ctx, locked.ids, need, -1, nil)
}

// Release returns stock taken by an earlier successful Reserve.
func (l *Ledger) Release(ctx context.Context, req domain.Request) error {
	return l.ReleaseWith(ctx, req, nil)
}

// ReleaseWith returns stock and runs commit while the touched counters are
// still locked. When commit fails the release is undone and its error
// returned, so the units and the caller's record of them never diverge.
func (l *Ledger) ReleaseWith(ctx context.Context, req domain.Request, commit func() error) error {
	if err := req.Validate(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	need, _, err := l.resolve(req)
	if err != nil {
		return err
	}
	locked := l.lock(need)
	defer locked.unlock()

	return l.apply(ctx, locked.ids, need, +1, commit)
}

// Snapshot reports the current stock as seen by each of the given menu items.
func (l *Ledger) Snapshot(ids ...domain.MenuItemID) []domain.StockLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.StockLevel, 0, len(ids))
	for _, id := range ids {
		cid, err := l.catalog.ResolveCounter(id)
		if err != nil {
			continue
		}
		c := l.counters[cid]
		c.mu.Lock()
		out = append(out, domain.StockLevel{MenuItemID: id, Stock: c.stock})
		c.mu.Unlock()
	}
	return out
}

// Affected expands a request to every menu item sharing a counter with it, so
// that stock updates also reach items of the same pool.
func (l *Ledger) Affected(req domain.Request) []domain.MenuItemID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := map[domain.MenuItemID]struct{}{}
	var out []domain.MenuItemID
	for _, id := range req.Items() {
		cid, err := l.catalog.ResolveCounter(id)
		if err != nil {
			continue
		}
		for _, m := range l.counters[cid].members {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (l *Ledger) resolve(req domain.Request) (map[domain.CounterID]int, map[domain.CounterID][]domain.MenuItemID, error) {
	need := make(map[domain.CounterID]int, len(req))
	byCounter := make(map[domain.CounterID][]domain.MenuItemID, len(req))
	for _, id := range req.Items() {
		cid, err := l.catalog.ResolveCounter(id)
		if err != nil {
			return nil, nil, err
		}
		need[cid] += req[id]
		byCounter[cid] = append(byCounter[cid], id)
	}
	return need, byCounter, nil
}

type held struct {
	ids      []domain.CounterID
	counters []*counter
}

func (l *Ledger) lock(need map[domain.CounterID]int) held {
	h := held{ids: make([]domain.CounterID, 0, len(need))}
	for id := range need {
		h.ids = append(h.ids, id)
	}
	sort.Slice(h.ids, func(i, j int) bool { return h.ids[i] < h.ids[j] })
	for _, id := range h.ids {
		c := l.counters[id]
		c.mu.Lock()
		h.counters = append(h.counters, c)
	}
	return h
}

func (h held) unlock() {
	for i := len(h.counters) - 1; i >= 0; i-- {
		h.counters[i].mu.Unlock()
	}
}

// apply must run with every counter in ids locked.
func (l *Ledger) apply(ctx context.Context, ids []domain.CounterID, need map[domain.CounterID]int, sign int, commit func() error) error {
	prev := make(map[domain.CounterID]domain.Quantity, len(ids))
	var levels, undo []domain.CounterLevel
	for _, id := range ids {
		c := l.counters[id]
		prev[id] = c.stock
		if sign < 0 {
			c.stock = c.stock.Sub(need[id])
		} else {
			c.stock = c.stock.Add(need[id])
		}
		if !c.stock.IsUnbounded() {
			levels = append(levels, domain.CounterLevel{Counter: id, Stock: c.stock})
			undo = append(undo, domain.CounterLevel{Counter: id, Stock: prev[id]})
		}
	}
	restore := func() {
		for id, q := range prev {
			l.counters[id].stock = q
		}
	}

	if len(levels) > 0 {
		if err := l.repo.SaveCounters(ctx, levels); err != nil {
			restore()
			l.log.Error("stock write-through failed", "counters", len(levels), "err", err)
			return fmt.Errorf("save counters: %w", err)
		}
	}
	if commit == nil {
		return nil
	}
	if err := commit(); err != nil {
		restore()
		if len(undo) > 0 {
			if uerr := l.repo.SaveCounters(context.WithoutCancel(ctx), undo); uerr != nil {
				l.log.Error("stock write-through undo failed", "counters", len(undo), "err", uerr)
			}
		}
		return err
	}
	return nil
}
