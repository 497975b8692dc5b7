//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	invapp "github.com/dmehra2102/Food-Ordering-System/internal/inventory/application"
	inventory "github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
	invpg "github.com/dmehra2102/Food-Ordering-System/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/Food-Ordering-System/internal/order/application"
	"github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
	orderkafka "github.com/dmehra2102/Food-Ordering-System/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/Food-Ordering-System/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/Food-Ordering-System/pkg/idempotency"
	"github.com/dmehra2102/Food-Ordering-System/pkg/outbox"
)

type noopNotifier struct{}

func (noopNotifier) OrderChanged(context.Context, string, domain.Order)           {}
func (noopNotifier) StockChanged(context.Context, string, []inventory.StockLevel) {}

type EngineSuite struct {
	suite.Suite
	env    *Env
	pool   *pgxpool.Pool
	log    *slog.Logger
	orders *orderpg.Repository
	stock  *invpg.Repository
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupSuite() {
	ctx := context.Background()
	env, err := Setup(ctx)
	s.Require().NoError(err)
	s.env = env

	s.pool, err = pgxpool.New(ctx, env.PGURL)
	s.Require().NoError(err)

	s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.orders = orderpg.NewRepository(s.log, s.pool)
	s.stock = invpg.NewRepository(s.log, s.pool)
	s.Require().NoError(s.stock.EnsureSchema(ctx))
	s.Require().NoError(s.orders.EnsureSchema(ctx))
}

func (s *EngineSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.env != nil {
		s.NoError(s.env.Teardown(context.Background()))
	}
}

func (s *EngineSuite) SetupTest() {
	_, err := s.pool.Exec(context.Background(), `
		TRUNCATE order_lines, orders, outbox, menu_items, stock_pools RESTART IDENTITY CASCADE;
		INSERT INTO stock_pools (id, stock) VALUES ('chicken', 2);
		INSERT INTO menu_items (id, name, price, unbounded, stock, pool_id) VALUES
			('burger',  'Burger',  8.50, false, 1, NULL),
			('wings',   'Wings',   6.00, false, 0, 'chicken'),
			('nuggets', 'Nuggets', 5.00, false, 0, 'chicken'),
			('water',   'Water',   1.00, true,  0, NULL);`)
	s.Require().NoError(err)
}

func (s *EngineSuite) newService() (*application.Service, *invapp.Ledger) {
	ledger := invapp.NewLedger(s.log, s.stock)
	s.Require().NoError(ledger.Load(context.Background()))
	return application.NewService(s.log, s.orders, ledger, noopNotifier{}), ledger
}

func (s *EngineSuite) storedStock(table, id string) int {
	var n int
	s.Require().NoError(s.pool.QueryRow(context.Background(), `SELECT stock FROM `+table+` WHERE id=$1`, id).Scan(&n))
	return n
}

func (s *EngineSuite) TestLastUnitGoesToOneOrder() {
	svc, _ := s.newService()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		placed  []domain.Order
		refused int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := svc.PlaceOrder(ctx, application.PlaceOrderInput{Venue: "main", Items: []inventory.MenuItemID{"burger", "water"}})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.ErrorIs(err, inventory.ErrInsufficientStock)
				refused++
				return
			}
			placed = append(placed, o)
		}()
	}
	wg.Wait()

	s.Require().Len(placed, 1)
	s.Equal(1, refused)
	s.Equal(0, s.storedStock("menu_items", "burger"))

	_, err := svc.Cancel(ctx, placed[0].ID, domain.ReasonCustomer)
	s.Require().NoError(err)
	_, err = svc.Cancel(ctx, placed[0].ID, domain.ReasonCustomer)
	s.Require().NoError(err)
	s.Equal(1, s.storedStock("menu_items", "burger"))
}

func (s *EngineSuite) TestPooledStockSurvivesReload() {
	svc, _ := s.newService()
	ctx := context.Background()

	_, err := svc.PlaceOrder(ctx, application.PlaceOrderInput{Venue: "main", Items: []inventory.MenuItemID{"wings", "nuggets"}})
	s.Require().NoError(err)
	_, err = svc.PlaceOrder(ctx, application.PlaceOrderInput{Venue: "main", Items: []inventory.MenuItemID{"wings"}})
	s.ErrorIs(err, inventory.ErrInsufficientStock)
	s.Equal(0, s.storedStock("stock_pools", "chicken"))

	_, reloaded := s.newService()
	s.Equal(0, reloaded.Snapshot("wings")[0].Stock.Count())
	s.True(reloaded.Snapshot("water")[0].Stock.IsUnbounded())
}

func (s *EngineSuite) TestOrderRepositoryGuards() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	lines := []domain.OrderLine{{MenuItemID: "burger", Name: "Burger", UnitPrice: decimal.RequireFromString("8.50")}}

	first := domain.NewOrder(uuid.NewString(), "ACDE", "main", lines, true, now)
	s.Require().NoError(s.orders.SaveWithOutbox(ctx, first, 0, domain.EventOrderCreated, []byte(`{}`), nil, ""))
	s.ErrorIs(s.orders.SaveWithOutbox(ctx, first, 0, domain.EventOrderCreated, []byte(`{}`), nil, ""), domain.ErrConflict)

	clash := domain.NewOrder(uuid.NewString(), "ACDE", "main", lines, false, now)
	s.ErrorIs(s.orders.SaveWithOutbox(ctx, clash, 0, domain.EventOrderCreated, []byte(`{}`), nil, ""), domain.ErrDuplicateReference)

	done := first
	done.IsDone, done.Version = true, 2
	s.Require().NoError(s.orders.SaveWithOutbox(ctx, done, 1, domain.EventOrderDone, []byte(`{}`), nil, ""))
	s.ErrorIs(s.orders.SaveWithOutbox(ctx, done, 1, domain.EventOrderDone, []byte(`{}`), nil, ""), domain.ErrConflict)

	taken, err := s.orders.ReferenceExists(ctx, "ACDE")
	s.Require().NoError(err)
	s.False(taken)
	s.Require().NoError(s.orders.SaveWithOutbox(ctx, clash, 0, domain.EventOrderCreated, []byte(`{}`), nil, ""))

	got, err := s.orders.Get(ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusDone, got.Status())
	s.Equal("8.5", got.TotalPrice.String())
	s.Require().Len(got.Lines, 1)
	s.Equal(inventory.MenuItemID("burger"), got.Lines[0].MenuItemID)

	pending, err := s.orders.FindAwaitingPayment(ctx, now.Add(time.Second))
	s.Require().NoError(err)
	s.Empty(pending, "done but unpaid order still awaits payment")
}

func (s *EngineSuite) TestFindAwaitingPayment() {
	svc, _ := s.newService()
	ctx := context.Background()

	o, err := svc.PlaceOrder(ctx, application.PlaceOrderInput{Venue: "main", Items: []inventory.MenuItemID{"water"}, PaymentRequired: true})
	s.Require().NoError(err)
	_, err = svc.PlaceOrder(ctx, application.PlaceOrderInput{Venue: "main", Items: []inventory.MenuItemID{"water"}})
	s.Require().NoError(err)

	pending, err := s.orders.FindAwaitingPayment(ctx, time.Now().Add(time.Second))
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(o.ID, pending[0].ID)

	_, err = svc.MarkPaid(ctx, o.ID, domain.PaymentDetails{Provider: "stripe", SessionID: "cs_1", Amount: o.TotalPrice})
	s.Require().NoError(err)
	paid, err := s.orders.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Require().NotNil(paid.Payment)
	s.Equal("cs_1", paid.Payment.SessionID)
	s.True(o.TotalPrice.Equal(paid.Payment.Amount), "amount %s", paid.Payment.Amount)

	pending, err = s.orders.FindAwaitingPayment(ctx, time.Now().Add(time.Second))
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *EngineSuite) TestOutboxLeaseAndRetry() {
	svc, _ := s.newService()
	ctx := context.Background()
	store := orderpg.NewOutboxStore(s.log, s.pool)

	_, err := svc.PlaceOrder(ctx, application.PlaceOrderInput{Venue: "main", Items: []inventory.MenuItemID{"water"}})
	s.Require().NoError(err)

	batch, err := store.LockBatch(ctx, "relay-a", 10, time.Second)
	s.Require().NoError(err)
	s.Require().Len(batch, 1)

	none, err := store.LockBatch(ctx, "relay-b", 10, time.Second)
	s.Require().NoError(err)
	s.Empty(none)

	time.Sleep(1500 * time.Millisecond)
	reclaimed, err := store.LockBatch(ctx, "relay-b", 10, time.Minute)
	s.Require().NoError(err)
	s.Require().Len(reclaimed, 1)

	s.Require().NoError(store.MarkFailed(ctx, reclaimed[0].ID, "broker down", false))
	retry, err := store.LockBatch(ctx, "relay-b", 10, time.Minute)
	s.Require().NoError(err)
	s.Require().Len(retry, 1)
	s.Equal(1, retry[0].RetryCount)

	s.Require().NoError(store.MarkFailed(ctx, retry[0].ID, "too large", true))
	parked, err := store.LockBatch(ctx, "relay-b", 10, time.Minute)
	s.Require().NoError(err)
	s.Empty(parked)
}

func (s *EngineSuite) TestRelayPublishesToKafka() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	topic := "order.events." + uuid.NewString()[:8]
	s.Require().NoError(orderkafka.EnsureTopics(ctx, s.env.KAddr[0], 1, topic))

	svc, _ := s.newService()
	o, err := svc.PlaceOrder(ctx, application.PlaceOrderInput{Venue: "main", Items: []inventory.MenuItemID{"burger"}})
	s.Require().NoError(err)

	writer := orderkafka.NewWriter(s.log, s.env.KAddr)
	defer writer.Close()
	relay := outbox.NewRelay(s.log, orderpg.NewOutboxStore(s.log, s.pool), outbox.NewDispatcher(s.log, writer, topic), "relay-it")
	n, err := relay.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     s.env.KAddr,
		Topic:       topic,
		GroupID:     "it-" + topic,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()
	msg, err := reader.ReadMessage(ctx)
	s.Require().NoError(err)
	s.Equal(o.ID, string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal(domain.EventOrderCreated, headers["event_type"])
	s.Equal("main", headers["venue"])
}

func (s *EngineSuite) TestIdempotencyStore() {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: s.env.RedisAddr})
	defer rdb.Close()
	store := idempotency.NewStore(rdb, time.Minute)

	key := store.KeyFor("payment", uuid.NewString())
	seen, err := store.Seen(ctx, key)
	s.Require().NoError(err)
	s.False(seen)

	seen, err = store.Seen(ctx, key)
	s.Require().NoError(err)
	s.True(seen)

	s.Require().NoError(store.Forget(ctx, key))
	seen, err = store.Seen(ctx, key)
	s.Require().NoError(err)
	s.False(seen)
}
