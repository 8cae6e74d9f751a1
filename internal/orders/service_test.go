package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-ecommerce-orders/internal/inventory"
	"github.com/ariefcatur/go-ecommerce-orders/internal/kafka"
	"github.com/ariefcatur/go-ecommerce-orders/internal/memstore"
	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic string
	env   orders.Envelope
}

type recorder struct {
	mu  sync.Mutex
	out []published
}

func (r *recorder) Publish(_ context.Context, topic string, env orders.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, published{topic: topic, env: env})
}

type fixture struct {
	store  *memstore.Store
	svc    *orders.Service
	events *recorder
	ana    orders.Principal
	ben    orders.Principal
	admin  orders.Principal
}

var fixedNow = time.Date(2024, 3, 4, 5, 6, 7, 890, time.FixedZone("X", 3600))

func newFixture(t *testing.T) *fixture {
	t.Helper()
	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)

	store := memstore.New()
	events := &recorder{}
	svc := orders.NewService(store, store, store, inventory.NewEngine(quiet),
		orders.WithPublisher(events, "orders-test"),
		orders.WithLogger(quiet),
		orders.WithClock(func() time.Time { return fixedNow }),
	)
	ctx := context.Background()
	for _, u := range []orders.User{
		{Name: "Ana", Email: "ana@x.io", Role: orders.RoleClient},
		{Name: "Ben", Email: "ben@x.io", Role: orders.RoleClient},
		{Name: "Root", Email: "root@x.io", Role: orders.RoleAdmin},
	} {
		_, err := store.CreateUser(ctx, u)
		require.NoError(t, err)
	}
	return &fixture{
		store:  store,
		svc:    svc,
		events: events,
		ana:    orders.Principal{Email: "ana@x.io", Role: orders.RoleClient},
		ben:    orders.Principal{Email: "ben@x.io", Role: orders.RoleClient},
		admin:  orders.Principal{Email: "root@x.io", Role: orders.RoleAdmin},
	}
}

func (f *fixture) product(t *testing.T, name, price string, stock int) orders.Product {
	t.Helper()
	p, err := f.store.CreateProduct(context.Background(), orders.Product{
		Name: name, UnitPrice: decimal.RequireFromString(price), Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.FindProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCreateOrder_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P", "5.00", 10)

	o, err := f.svc.CreateOrder(ctx, f.ana, []orders.LineRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("15.00")))
	require.Len(t, o.Lines, 1)
	assert.True(t, o.Lines[0].Subtotal.Equal(decimal.RequireFromString("15.00")))
	assert.Equal(t, o.ID, o.Lines[0].OrderID)
	assert.Equal(t, "ana@x.io", o.Owner.Email)
	assert.Equal(t, fixedNow.UTC().Truncate(time.Second), o.CreatedAt)
	assert.Equal(t, 7, f.stock(t, p.ID))

	_, err = f.svc.CreateOrder(ctx, f.ana, []orders.LineRequest{{ProductID: p.ID, Quantity: 8}})
	var short *orders.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, p.ID, short.ProductID)
	assert.Equal(t, "P", short.ProductName)
	assert.Equal(t, 8, short.Requested)
	assert.Equal(t, 7, short.Available)
	assert.Equal(t, 7, f.stock(t, p.ID))
}

func TestCreateOrder_TotalsAcrossLines(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A", "0.10", 100)
	b := f.product(t, "B", "19.99", 5)

	o, err := f.svc.CreateOrder(context.Background(), f.ana, []orders.LineRequest{
		{ProductID: a.ID, Quantity: 3},
		{ProductID: b.ID, Quantity: 2},
		{ProductID: a.ID, Quantity: 7},
	})
	require.NoError(t, err)
	require.Len(t, o.Lines, 3)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("40.98")), o.Total.String())
	assert.True(t, o.Total.Equal(orders.SumSubtotals(o.Lines)))
	assert.Equal(t, 90, f.stock(t, a.ID))
	assert.Equal(t, 3, f.stock(t, b.ID))
}

func TestCreateOrder_AtomicOnPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", "1.00", 4)

	_, err := f.svc.CreateOrder(ctx, f.ana, []orders.LineRequest{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: "does-not-exist", Quantity: 1},
	})
	assert.ErrorIs(t, err, orders.ErrProductNotFound)
	assert.Equal(t, 4, f.stock(t, a.ID))

	all, err := f.svc.ListAllOrders(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.events.out)
}

func TestCreateOrder_UnknownPrincipal(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A", "1.00", 4)

	_, err := f.svc.CreateOrder(context.Background(), orders.Principal{Email: "ghost@x.io", Role: orders.RoleClient},
		[]orders.LineRequest{{ProductID: a.ID, Quantity: 1}})
	assert.ErrorIs(t, err, orders.ErrUnknownPrincipal)
	assert.Equal(t, 4, f.stock(t, a.ID))
}

func TestCreateOrder_NoOversellUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P", "1.00", 10)

	const workers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), f.ana, []orders.LineRequest{{ProductID: p.ID, Quantity: 1}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, orders.ErrInsufficientStock):
				short++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, workers-10, short)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestCreateOrder_PublishesCreatedEvent(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P", "2.50", 3)

	o, err := f.svc.CreateOrder(context.Background(), f.ana, []orders.LineRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)

	require.Len(t, f.events.out, 1)
	ev := f.events.out[0]
	assert.Equal(t, orders.TopicOrderCreated, ev.topic)
	assert.Equal(t, orders.EventOrderCreated, ev.env.EventType)
	assert.Equal(t, o.ID, ev.env.CorrelationID)
	assert.Equal(t, "orders-test", ev.env.Producer)

	payload, err := kafka.UnwrapPayload[orders.OrderCreatedPayload](ev.env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "5.00", payload.Total)
	assert.Equal(t, "ana@x.io", payload.ClientEmail)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, "2.50", payload.Items[0].UnitPrice)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P", "5.00", 10)
	o, err := f.svc.CreateOrder(ctx, f.ana, []orders.LineRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, o.ID, f.ben.Email)
	assert.ErrorIs(t, err, orders.ErrNotOwner)
	_, err = f.svc.CancelOrder(ctx, o.ID, f.admin.Email)
	assert.ErrorIs(t, err, orders.ErrNotOwner)

	got, err := f.svc.CancelOrder(ctx, o.ID, f.ana.Email)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.True(t, got.Total.Equal(o.Total))
	assert.Equal(t, 7, f.stock(t, p.ID), "cancellation does not restock")

	_, err = f.svc.CancelOrder(ctx, o.ID, f.ana.Email)
	var bad *orders.StateTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, orders.StatusCancelled, bad.From)

	_, err = f.svc.CancelOrder(ctx, "nope", f.ana.Email)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	reloaded, err := f.svc.GetOrder(ctx, f.ana, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, reloaded.Status)
	require.Len(t, f.events.out, 2)
	assert.Equal(t, orders.TopicOrderCancelled, f.events.out[1].topic)
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P", "1.00", 10)
	line := []orders.LineRequest{{ProductID: p.ID, Quantity: 1}}

	a1, err := f.svc.CreateOrder(ctx, f.ana, line)
	require.NoError(t, err)
	a2, err := f.svc.CreateOrder(ctx, f.ana, line)
	require.NoError(t, err)
	b1, err := f.svc.CreateOrder(ctx, f.ben, line)
	require.NoError(t, err)
	_, err = f.svc.CancelOrder(ctx, a2.ID, f.ana.Email)
	require.NoError(t, err)

	ids := func(list []orders.Order) []string {
		out := make([]string, 0, len(list))
		for _, o := range list {
			out = append(out, o.ID)
		}
		return out
	}

	mine, err := f.svc.ListOrdersForPrincipal(ctx, f.ana, "")
	require.NoError(t, err)
	assert.Equal(t, []string{a1.ID, a2.ID}, ids(mine))

	pending, err := f.svc.ListOrdersForPrincipal(ctx, f.ana, orders.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, []string{a1.ID}, ids(pending))

	all, err := f.svc.ListAllOrders(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{a1.ID, a2.ID, b1.ID}, ids(all))

	cancelled, err := f.svc.ListAllOrders(ctx, orders.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, []string{a2.ID}, ids(cancelled))

	bens, err := f.svc.ListOrdersForClient(ctx, "ben@x.io", "")
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID}, ids(bens))

	bens, err = f.svc.ListOrdersForClient(ctx, " Ben@X.io ", "")
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID}, ids(bens))

	_, err = f.svc.ListOrdersForClient(ctx, "ghost@x.io", "")
	assert.ErrorIs(t, err, orders.ErrClientNotFound)

	_, err = f.svc.GetOrder(ctx, f.ben, a1.ID)
	assert.ErrorIs(t, err, orders.ErrNotOwner)
	_, err = f.svc.GetOrder(ctx, f.admin, a1.ID)
	assert.NoError(t, err)
}

func TestLiveProductAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P", "3.00", 2)
	o, err := f.svc.CreateOrder(ctx, f.ana, []orders.LineRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)
	require.NotNil(t, o.Lines[0].Product)
	assert.Equal(t, 0, o.Lines[0].Product.Stock)

	require.NoError(t, f.store.DeleteProduct(ctx, p.ID))
	got, err := f.svc.GetOrder(ctx, f.ana, o.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Lines[0].Product)
	assert.True(t, got.Lines[0].Subtotal.Equal(decimal.RequireFromString("6.00")))
}
