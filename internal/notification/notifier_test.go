package notification

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventory "github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
	"github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
)

func TestNotifier_RoutesOrderEvents(t *testing.T) {
	h := newHub(t)
	tr := &fakeTransport{}
	p := NewPusher(discardLogger(), tr)
	p.Register(Endpoint{ID: "kitchen", Venue: "main"})
	n := NewNotifier(h, p)

	admin, waiter, customer := &recorder{}, &recorder{}, &recorder{}
	h.Subscribe(VenueKey("main", RoleAdminCommands), admin)
	h.Subscribe(VenueKey("main", RoleCustomer), customer)
	h.Wait("o-1", waiter)

	o := domain.NewOrder("o-1", "AC3F", "main", []domain.OrderLine{
		{MenuItemID: "burger", Name: "Burger", UnitPrice: decimal.NewFromInt(9)},
	}, false, time.Now())
	ctx := context.Background()
	n.OrderChanged(ctx, domain.EventOrderCreated, o)
	o.IsDone = true
	n.OrderChanged(ctx, domain.EventOrderDone, o)
	n.OrderChanged(ctx, "PaymentSessionAttached", o)

	eventually(t, func() bool { return len(admin.Types()) == 2 && len(waiter.Types()) == 2 })
	assert.Equal(t, []string{TypeOrderCreated, TypeOrderDone}, admin.Types())
	assert.Equal(t, []string{TypeOrderCreated, TypeOrderDone}, waiter.Types())
	assert.Empty(t, customer.Types())

	admin.mu.Lock()
	view, ok := admin.events[1].Data.(OrderView)
	admin.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, domain.StatusDone, view.Status)
	assert.Equal(t, []string{"Burger"}, view.Items)

	require.True(t, p.Wait(time.Second))
	assert.Equal(t, 1, tr.count("kitchen"))
}

func TestNotifier_ExactlyOneCreatedEventPerSubscriber(t *testing.T) {
	h := newHub(t)
	n := NewNotifier(h, nil)
	subs := []*recorder{{}, {}, {}}
	for _, r := range subs {
		h.Subscribe(VenueKey("main", RoleAdminCommands), r)
	}

	o := domain.NewOrder("o-1", "AC3F", "main", nil, false, time.Now())
	n.OrderChanged(context.Background(), domain.EventOrderCreated, o)

	for _, r := range subs {
		eventually(t, func() bool { return len(r.Types()) == 1 })
	}
	time.Sleep(20 * time.Millisecond)
	for _, r := range subs {
		assert.Equal(t, []string{TypeOrderCreated}, r.Types())
	}
}

func TestNotifier_StockChanged(t *testing.T) {
	h := newHub(t)
	n := NewNotifier(h, nil)
	menu, customer, admin := &recorder{}, &recorder{}, &recorder{}
	h.Subscribe(VenueKey("main", RoleAdminMenu), menu)
	h.Subscribe(VenueKey("main", RoleCustomer), customer)
	h.Subscribe(VenueKey("main", RoleAdminCommands), admin)

	n.StockChanged(context.Background(), "main", []inventory.StockLevel{
		{MenuItemID: "burger", Stock: inventory.Bounded(2)},
		{MenuItemID: "water", Stock: inventory.Unbounded()},
	})
	n.StockChanged(context.Background(), "main", nil)

	eventually(t, func() bool { return len(menu.Types()) == 1 && len(customer.Types()) == 1 })
	assert.Empty(t, admin.Types())

	menu.mu.Lock()
	views := menu.events[0].Data.([]StockView)
	menu.mu.Unlock()
	require.Len(t, views, 2)
	require.NotNil(t, views[0].Available)
	assert.Equal(t, 2, *views[0].Available)
	assert.Nil(t, views[1].Available)
}
