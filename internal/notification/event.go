package notification

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

type Role string

const (
	RoleAdminCommands Role = "admin-commands"
	RoleAdminMenu     Role = "admin-menu"
	RoleCustomer      Role = "customer"
	// RoleOrderReady keys hold at most one channel, the customer waiting on a
	// single order.
	RoleOrderReady Role = "order-ready"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdminCommands, RoleAdminMenu, RoleCustomer, RoleOrderReady:
		return true
	}
	return false
}

// Key names one subscriber set.
type Key struct {
	Venue   string
	Role    Role
	OrderID string
}

func VenueKey(venue string, role Role) Key { return Key{Venue: venue, Role: role} }

func ReadyKey(orderID string) Key { return Key{Role: RoleOrderReady, OrderID: orderID} }

const (
	TypeOrderCreated   = "order.created"
	TypeOrderDone      = "order.done"
	TypeOrderPaid      = "order.paid"
	TypeOrderCancelled = "order.cancelled"
	TypeStockUpdated   = "stock.updated"
)

type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Venue   string    `json:"venue"`
	OrderID string    `json:"order_id,omitempty"`
	Data    any       `json:"data"`
	At      time.Time `json:"at"`
}

func NewEvent(eventType, venue, orderID string, data any) Event {
	return Event{
		ID:      ulid.Make().String(),
		Type:    eventType,
		Venue:   venue,
		OrderID: orderID,
		Data:    data,
		At:      time.Now().UTC(),
	}
}

// Channel is one live subscriber. Implementations must be comparable since
// subscriptions are removed by identity; pointer types are the norm.
type Channel interface {
	Send(ctx context.Context, ev Event) error
}
