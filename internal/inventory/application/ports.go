package application

import (
	"context"

	"github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
)

type StockRepository interface {
	LoadCatalog(ctx context.Context) ([]domain.MenuItem, []domain.StockPool, error)
	SaveCounters(ctx context.Context, levels []domain.CounterLevel) error
}
