package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
)

// Repository keeps the catalog in process memory. It backs local runs and tests.
type Repository struct {
	mu    sync.Mutex
	items map[domain.MenuItemID]domain.MenuItem
	pools map[domain.PoolID]domain.StockPool
	saves int
}

func NewRepository(items []domain.MenuItem, pools []domain.StockPool) *Repository {
	r := &Repository{
		items: make(map[domain.MenuItemID]domain.MenuItem, len(items)),
		pools: make(map[domain.PoolID]domain.StockPool, len(pools)),
	}
	for _, it := range items {
		r.items[it.ID] = it
	}
	for _, p := range pools {
		r.pools[p.ID] = p
	}
	return r
}

func (r *Repository) LoadCatalog(ctx context.Context) ([]domain.MenuItem, []domain.StockPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]domain.MenuItem, 0, len(r.items))
	for _, it := range r.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	pools := make([]domain.StockPool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return items, pools, nil
}

func (r *Repository) SaveCounters(ctx context.Context, levels []domain.CounterLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, lv := range levels {
		if lv.Counter.IsPool() {
			p := r.pools[lv.Counter.PoolID()]
			p.Stock = lv.Stock
			r.pools[p.ID] = p
			continue
		}
		it := r.items[lv.Counter.MenuItemID()]
		it.Stock = lv.Stock
		r.items[it.ID] = it
	}
	r.saves++
	return nil
}

// Saves reports how many write-throughs have been applied.
func (r *Repository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}
