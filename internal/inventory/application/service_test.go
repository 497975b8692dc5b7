package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
)

type recordingStock struct {
	venue  string
	levels []domain.StockLevel
}

func (r *recordingStock) StockChanged(ctx context.Context, venue string, levels []domain.StockLevel) {
	r.venue = venue
	r.levels = levels
}

func TestService_RestockRaisesPoolAndNotifies(t *testing.T) {
	l, _ := newLedger(t, []domain.MenuItem{
		pooled("wings", "chicken"),
		pooled("nuggets", "chicken"),
	}, []domain.StockPool{{ID: "chicken", Stock: domain.Bounded(0)}})
	notify := &recordingStock{}
	svc := NewService(discardLogger(), l, notify)

	require.NoError(t, svc.Restock(context.Background(), "main", domain.Request{"wings": 4}))

	assert.Equal(t, 4, stockOf(l, "nuggets").Count())
	assert.Equal(t, "main", notify.venue)
	assert.Len(t, notify.levels, 2)
}

func TestService_RestockUnknownItem(t *testing.T) {
	l, _ := newLedger(t, []domain.MenuItem{item("soup", domain.Bounded(1))}, nil)
	notify := &recordingStock{}
	svc := NewService(discardLogger(), l, notify)

	err := svc.Restock(context.Background(), "main", domain.Request{"stew": 1})
	require.ErrorIs(t, err, domain.ErrUnknownMenuItem)
	assert.Empty(t, notify.levels)
	assert.Equal(t, 1, stockOf(l, "soup").Count())
}
