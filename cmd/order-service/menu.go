package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
)

// menuFile is the catalog format used with STORE=memory. A nil stock means
// the item or pool is never sold out.
type menuFile struct {
	Items []struct {
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
		Stock *int            `json:"stock"`
		Pool  string          `json:"pool"`
	} `json:"items"`
	Pools []struct {
		ID    string `json:"id"`
		Stock *int   `json:"stock"`
	} `json:"pools"`
}

func loadMenu(path string) ([]domain.MenuItem, []domain.StockPool, error) {
	if path == "" {
		return nil, nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var mf menuFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	items := make([]domain.MenuItem, 0, len(mf.Items))
	for _, it := range mf.Items {
		items = append(items, domain.MenuItem{
			ID:     domain.MenuItemID(it.ID),
			Name:   it.Name,
			Price:  it.Price,
			Stock:  quantity(it.Stock),
			PoolID: domain.PoolID(it.Pool),
		})
	}
	pools := make([]domain.StockPool, 0, len(mf.Pools))
	for _, p := range mf.Pools {
		pools = append(pools, domain.StockPool{ID: domain.PoolID(p.ID), Stock: quantity(p.Stock)})
	}
	return items, pools, nil
}

func quantity(n *int) domain.Quantity {
	if n == nil {
		return domain.Unbounded()
	}
	return domain.Bounded(*n)
}
