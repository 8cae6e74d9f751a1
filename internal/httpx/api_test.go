package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-ecommerce-orders/internal/auth"
	"github.com/ariefcatur/go-ecommerce-orders/internal/catalog"
	"github.com/ariefcatur/go-ecommerce-orders/internal/inventory"
	"github.com/ariefcatur/go-ecommerce-orders/internal/memstore"
	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/ariefcatur/go-ecommerce-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	topic string
	env   orders.Envelope
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(_ context.Context, topic string, env orders.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{topic: topic, env: env})
}

func (r *recorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.topic)
	}
	return out
}

type harness struct {
	t       *testing.T
	srv     *httptest.Server
	redis   *miniredis.Miniredis
	store   *memstore.Store
	events  *recorder
	cache   *redisx.StatusCache
	admin   string
	client  string
	client2 string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memstore.New()
	events := &recorder{}
	gate := auth.NewService(store, auth.NewIssuer("test-secret", time.Hour), log)
	api := &API{
		Auth:    gate,
		Catalog: catalog.NewService(store, store, log),
		Orders: orders.NewService(store, store, store, inventory.NewEngine(log),
			orders.WithPublisher(events, "orders-api"), orders.WithLogger(log)),
		Idem:   redisx.NewIdempotency(rdb),
		Status: redisx.NewStatusCache(rdb),
		Log:    log,
	}
	router := NewRouter(log)
	api.Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	h := &harness{t: t, srv: srv, redis: mr, store: store, events: events, cache: api.Status}
	ctx := context.Background()
	_, err := gate.CreateUser(ctx, auth.RegisterInput{Name: "Root", Email: "admin@shop.test", Password: "adminpass"}, orders.RoleAdmin)
	require.NoError(t, err)
	h.admin = h.login("admin@shop.test", "adminpass")
	h.client = h.register("Ana", "ana@shop.test", "secret1")
	h.client2 = h.register("Ben", "ben@shop.test", "secret2")
	return h
}

func (h *harness) do(method, path, token string, body any, headers ...string) (int, []byte) {
	h.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, buf.Bytes()
}

func (h *harness) register(name, email, password string) string {
	h.t.Helper()
	code, body := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": password,
	})
	require.Equal(h.t, http.StatusCreated, code, string(body))
	return decode[tokenResp](h.t, body).Token
}

func (h *harness) login(email, password string) string {
	h.t.Helper()
	code, body := h.do(http.MethodPost, "/api/auth/login", "", loginReq{Email: email, Password: password})
	require.Equal(h.t, http.StatusOK, code, string(body))
	return decode[tokenResp](h.t, body).Token
}

func (h *harness) product(name, price string, stock int) string {
	h.t.Helper()
	code, body := h.do(http.MethodPost, "/api/products", h.admin, map[string]any{
		"name": name, "price": json.Number(price), "stock": stock, "category": "misc",
	})
	require.Equal(h.t, http.StatusCreated, code, string(body))
	return decode[productDTO](h.t, body).ID
}

func (h *harness) stock(id string) int {
	h.t.Helper()
	p, err := h.store.FindProduct(context.Background(), id)
	require.NoError(h.t, err)
	return p.Stock
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func items(lines ...orders.LineRequest) createOrderReq { return createOrderReq{Items: lines} }

func TestAuth(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ana again", "email": "ANA@shop.test", "password": "whatever",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = h.do(http.MethodPost, "/api/auth/login", "", loginReq{Email: "ana@shop.test", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "X", "email": "not-an-email", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(http.MethodGet, "/api/orders", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = h.do(http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestProducts(t *testing.T) {
	h := newHarness(t)
	id := h.product("Blue Pen", "1.50", 4)
	h.product("Red Pen", "1.75", 2)
	h.product("Notebook", "3.00", 9)

	code, body := h.do(http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]productDTO](t, body), 3)

	code, body = h.do(http.MethodGet, "/api/products/search?search=pen&page=0&size=1", "", nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[pageDTO](t, body)
	assert.Equal(t, 2, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "Blue Pen", page.Content[0].Name)

	code, _ = h.do(http.MethodGet, "/api/products/search?page=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = h.do(http.MethodGet, "/api/products/search?page=4611686018427387904&size=10", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(http.MethodGet, "/api/products/"+id, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"price":1.50`)

	code, _ = h.do(http.MethodGet, "/api/products/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = h.do(http.MethodPost, "/api/products", "", map[string]any{"name": "X", "price": 1, "stock": 1})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = h.do(http.MethodPost, "/api/products", h.client, map[string]any{"name": "X", "price": 1, "stock": 1})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = h.do(http.MethodPost, "/api/products", h.admin, map[string]any{"name": "X", "price": 1, "stock": -1})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = h.do(http.MethodPost, "/api/products", h.admin, map[string]any{"name": "X", "price": "0.005", "stock": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(http.MethodPut, "/api/products/"+id, h.admin, map[string]any{
		"name": "Blue Pen", "price": "2.00", "stock": 40, "category": "office",
	})
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Equal(t, 40, h.stock(id))

	code, _ = h.do(http.MethodDelete, "/api/products/"+id, h.admin, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = h.do(http.MethodGet, "/api/products/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateOrder_ScenarioAndStockGuard(t *testing.T) {
	h := newHarness(t)
	p := h.product("P", "5.00", 10)

	code, body := h.do(http.MethodPost, "/api/orders", h.client, items(orders.LineRequest{ProductID: p, Quantity: 3}))
	require.Equal(t, http.StatusCreated, code, string(body))
	assert.Contains(t, string(body), `"total":15.00`)
	o := decode[orderDTO](t, body)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, "ana@shop.test", o.Client.Email)
	assert.Equal(t, orders.RoleClient, o.Client.Role)
	require.Len(t, o.Details, 1)
	assert.Equal(t, json.Number("15.00"), o.Details[0].Subtotal)
	require.NotNil(t, o.Details[0].Product)
	assert.Equal(t, p, o.Details[0].Product.ID)
	_, err := time.Parse(timeLayout, o.CreatedAt)
	assert.NoError(t, err)
	assert.Equal(t, 7, h.stock(p))

	code, body = h.do(http.MethodPost, "/api/orders", h.client, items(orders.LineRequest{ProductID: p, Quantity: 8}))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(body), "requested 8, available 7")
	assert.Equal(t, 7, h.stock(p))

	assert.Equal(t, []string{orders.TopicOrderCreated}, h.events.topics())
}

func TestCreateOrder_Rejections(t *testing.T) {
	h := newHarness(t)
	a := h.product("A", "1.00", 5)

	code, _ := h.do(http.MethodPost, "/api/orders", h.client, items(
		orders.LineRequest{ProductID: a, Quantity: 1},
		orders.LineRequest{ProductID: "missing", Quantity: 1},
	))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 5, h.stock(a))

	code, _ = h.do(http.MethodPost, "/api/orders", h.client, items(orders.LineRequest{ProductID: a, Quantity: 0}))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(http.MethodPost, "/api/orders", h.client, items())
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(http.MethodPost, "/api/orders", h.admin, items(orders.LineRequest{ProductID: a, Quantity: 1}))
	assert.Equal(t, http.StatusForbidden, code)

	all, err := h.store.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, h.events.topics())
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	h := newHarness(t)
	p := h.product("P", "2.00", 10)
	req := items(orders.LineRequest{ProductID: p, Quantity: 2})

	code, body := h.do(http.MethodPost, "/api/orders", h.client, req, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, code)
	first := decode[orderDTO](t, body)

	code, body = h.do(http.MethodPost, "/api/orders", h.client, req, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first.ID, decode[orderDTO](t, body).ID)
	assert.Equal(t, 8, h.stock(p))

	// keys are scoped per client
	code, _ = h.do(http.MethodPost, "/api/orders", h.client2, req, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 6, h.stock(p))
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t)
	p := h.product("P", "5.00", 10)
	_, body := h.do(http.MethodPost, "/api/orders", h.client, items(orders.LineRequest{ProductID: p, Quantity: 3}))
	id := decode[orderDTO](t, body).ID

	code, _ := h.do(http.MethodPost, "/api/orders/"+id+"/cancel", h.client2, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = h.do(http.MethodPost, "/api/orders/"+id+"/cancel", h.admin, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = h.do(http.MethodPost, "/api/orders/"+id+"/cancel", h.client, nil)
	require.Equal(t, http.StatusOK, code, string(body))
	o := decode[orderDTO](t, body)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Equal(t, json.Number("15.00"), o.Total)
	assert.Equal(t, 7, h.stock(p))

	code, _ = h.do(http.MethodPost, "/api/orders/"+id+"/cancel", h.client, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(http.MethodPost, "/api/orders/unknown/cancel", h.client, nil)
	assert.Equal(t, http.StatusNotFound, code)

	assert.Equal(t, []string{orders.TopicOrderCreated, orders.TopicOrderCancelled}, h.events.topics())
}

func TestListOrders(t *testing.T) {
	h := newHarness(t)
	p := h.product("P", "1.00", 10)
	_, body := h.do(http.MethodPost, "/api/orders", h.client, items(orders.LineRequest{ProductID: p, Quantity: 1}))
	anaID := decode[orderDTO](t, body).ID
	h.do(http.MethodPost, "/api/orders", h.client2, items(orders.LineRequest{ProductID: p, Quantity: 1}))
	h.do(http.MethodPost, "/api/orders/"+anaID+"/cancel", h.client, nil)

	ids := func(path, token string) []string {
		t.Helper()
		code, body := h.do(http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, code, string(body))
		var out []string
		for _, o := range decode[[]orderDTO](t, body) {
			out = append(out, o.ID)
		}
		return out
	}

	assert.Equal(t, []string{anaID}, ids("/api/orders", h.client))
	assert.Equal(t, []string{anaID}, ids("/api/orders/my-orders?status=CANCELLED", h.client))
	assert.Empty(t, ids("/api/orders/my-orders?status=PENDING", h.client))
	assert.Len(t, ids("/api/orders", h.admin), 2)
	assert.Len(t, ids("/api/orders/all", h.admin), 2)
	assert.Len(t, ids("/api/orders/all/filter?status=PENDING", h.admin), 1)
	assert.Equal(t, []string{anaID}, ids("/api/orders/client/ana@shop.test", h.admin))

	code, _ := h.do(http.MethodGet, "/api/orders/all", h.client, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = h.do(http.MethodGet, "/api/orders?status=SHIPPED", h.client, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = h.do(http.MethodGet, "/api/orders/client/ghost@shop.test", h.admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetOrderAndStatus(t *testing.T) {
	h := newHarness(t)
	p := h.product("P", "1.00", 10)
	_, body := h.do(http.MethodPost, "/api/orders", h.client, items(orders.LineRequest{ProductID: p, Quantity: 1}))
	id := decode[orderDTO](t, body).ID

	code, _ := h.do(http.MethodGet, "/api/orders/"+id, h.client, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.do(http.MethodGet, "/api/orders/"+id, h.admin, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.do(http.MethodGet, "/api/orders/"+id, h.client2, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = h.do(http.MethodGet, "/api/orders/nope", h.client, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = h.do(http.MethodGet, "/api/orders/"+id+"/status", h.client, nil)
	require.Equal(t, http.StatusOK, code)
	st := decode[statusDTO](t, body)
	assert.Equal(t, orders.StatusPending, st.Status)
	assert.Equal(t, "cache", st.Source)

	code, _ = h.do(http.MethodGet, "/api/orders/"+id+"/status", h.client2, nil)
	assert.Equal(t, http.StatusForbidden, code)

	// without a cache entry the store answers; PENDING is not written back
	h.redis.Del(redisx.OrderStatusKey(id))
	for i := 0; i < 2; i++ {
		code, body = h.do(http.MethodGet, "/api/orders/"+id+"/status", h.admin, nil)
		require.Equal(t, http.StatusOK, code)
		st = decode[statusDTO](t, body)
		assert.Equal(t, "db", st.Source)
		assert.Equal(t, orders.StatusPending, st.Status)
	}
	_, ok, err := h.cache.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&orders.ValidationError{Field: "x", Reason: "y"}, http.StatusBadRequest},
		{&orders.InsufficientStockError{}, http.StatusBadRequest},
		{&orders.StateTransitionError{}, http.StatusBadRequest},
		{orders.ErrUnknownPrincipal, http.StatusUnauthorized},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{orders.ErrNotOwner, http.StatusForbidden},
		{errForbidden, http.StatusForbidden},
		{orders.ErrOrderNotFound, http.StatusNotFound},
		{&orders.ProductNotFoundError{ProductID: "p"}, http.StatusNotFound},
		{auth.ErrEmailTaken, http.StatusConflict},
		{orders.ErrNotFound, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)
	writeError(rec, quiet, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), assert.AnError.Error()))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, json.Number("15.00"), money(decimal.RequireFromString("15")))
	assert.Equal(t, json.Number("0.10"), money(decimal.RequireFromString("0.1")))
}
