package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnknownMenuItem   = errors.New("unknown menu item")
	ErrInvalidQuantity   = errors.New("invalid quantity")
)

type MenuItemID string

type PoolID string

// Quantity is either a bounded non-negative count or unbounded.
type Quantity struct {
	count     int
	unbounded bool
}

func Bounded(n int) Quantity { return Quantity{count: n} }

func Unbounded() Quantity { return Quantity{unbounded: true} }

func (q Quantity) IsUnbounded() bool { return q.unbounded }

// Count returns the bounded count. It is meaningless for unbounded quantities.
func (q Quantity) Count() int { return q.count }

func (q Quantity) Covers(n int) bool {
	return q.unbounded || q.count >= n
}

func (q Quantity) Sub(n int) Quantity {
	if q.unbounded {
		return q
	}
	return Quantity{count: q.count - n}
}

func (q Quantity) Add(n int) Quantity {
	if q.unbounded {
		return q
	}
	return Quantity{count: q.count + n}
}

func (q Quantity) String() string {
	if q.unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%d", q.count)
}

type MenuItem struct {
	ID     MenuItemID
	Name   string
	Price  decimal.Decimal
	Stock  Quantity
	PoolID PoolID
}

func (m MenuItem) Pooled() bool { return m.PoolID != "" }

type StockPool struct {
	ID    PoolID
	Stock Quantity
}

// CounterID names one authoritative stock counter: either a menu item's own
// counter or the shared counter of a pool.
type CounterID string

func ItemCounter(id MenuItemID) CounterID { return CounterID("item:" + string(id)) }

func PoolCounter(id PoolID) CounterID { return CounterID("pool:" + string(id)) }

func (c CounterID) IsPool() bool { return strings.HasPrefix(string(c), "pool:") }

func (c CounterID) PoolID() PoolID { return PoolID(strings.TrimPrefix(string(c), "pool:")) }

func (c CounterID) MenuItemID() MenuItemID { return MenuItemID(strings.TrimPrefix(string(c), "item:")) }

// Request maps menu items to the number of units wanted.
type Request map[MenuItemID]int

func RequestFromItems(items []MenuItemID) Request {
	r := make(Request, len(items))
	for _, id := range items {
		r[id]++
	}
	return r
}

func (r Request) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("%w: empty request", ErrInvalidQuantity)
	}
	for id, n := range r {
		if n <= 0 {
			return fmt.Errorf("%w: %d units of %s", ErrInvalidQuantity, n, id)
		}
	}
	return nil
}

func (r Request) Items() []MenuItemID {
	ids := make([]MenuItemID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type InsufficientStockError struct {
	Items []MenuItemID
}

func (e *InsufficientStockError) Error() string {
	names := make([]string, len(e.Items))
	for i, id := range e.Items {
		names[i] = string(id)
	}
	return fmt.Sprintf("insufficient stock: %s", strings.Join(names, ", "))
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type StockLevel struct {
	MenuItemID MenuItemID
	Stock      Quantity
}
