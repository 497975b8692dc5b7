package domain

import "fmt"

// CounterLevel is the persisted value of one counter after a ledger commit.
type CounterLevel struct {
	Counter CounterID
	Stock   Quantity
}

// Catalog resolves menu items to the counter that is authoritative for them.
type Catalog struct {
	items map[MenuItemID]MenuItem
	pools map[PoolID]StockPool
}

func NewCatalog(items []MenuItem, pools []StockPool) (*Catalog, error) {
	c := &Catalog{
		items: make(map[MenuItemID]MenuItem, len(items)),
		pools: make(map[PoolID]StockPool, len(pools)),
	}
	for _, p := range pools {
		if !p.Stock.IsUnbounded() && p.Stock.Count() < 0 {
			return nil, fmt.Errorf("%w: pool %s has negative stock", ErrInvalidQuantity, p.ID)
		}
		c.pools[p.ID] = p
	}
	for _, it := range items {
		if it.Pooled() {
			if _, ok := c.pools[it.PoolID]; !ok {
				return nil, fmt.Errorf("menu item %s references unknown pool %s", it.ID, it.PoolID)
			}
		} else if !it.Stock.IsUnbounded() && it.Stock.Count() < 0 {
			return nil, fmt.Errorf("%w: menu item %s has negative stock", ErrInvalidQuantity, it.ID)
		}
		c.items[it.ID] = it
	}
	return c, nil
}

func (c *Catalog) Item(id MenuItemID) (MenuItem, bool) {
	it, ok := c.items[id]
	return it, ok
}

func (c *Catalog) ResolveCounter(id MenuItemID) (CounterID, error) {
	it, ok := c.items[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMenuItem, id)
	}
	if it.Pooled() {
		return PoolCounter(it.PoolID), nil
	}
	return ItemCounter(id), nil
}

// Counters returns the starting value of every counter together with the menu
// items that draw from it.
func (c *Catalog) Counters() map[CounterID]CounterSeed {
	out := make(map[CounterID]CounterSeed, len(c.items)+len(c.pools))
	for _, p := range c.pools {
		out[PoolCounter(p.ID)] = CounterSeed{Stock: p.Stock}
	}
	for _, it := range c.items {
		cid, _ := c.ResolveCounter(it.ID)
		seed, ok := out[cid]
		if !ok {
			seed = CounterSeed{Stock: it.Stock}
		}
		seed.Members = append(seed.Members, it.ID)
		out[cid] = seed
	}
	return out
}

type CounterSeed struct {
	Stock   Quantity
	Members []MenuItemID
}
