// Package memstore keeps every store port in process memory. Transactions take
// a store-wide lock and work on a copy that replaces the live state on commit,
// which gives serializable isolation and all-or-nothing visibility.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, txView{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) locked(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// products

func (s *Store) CreateProduct(_ context.Context, p orders.Product) (out orders.Product, err error) {
	s.locked(func(st *state) { out = st.createProduct(p) })
	return out, nil
}

func (s *Store) FindProduct(_ context.Context, id string) (out orders.Product, err error) {
	s.locked(func(st *state) { out, err = st.findProduct(id) })
	return out, err
}

func (s *Store) ListProducts(_ context.Context) (out []orders.Product, err error) {
	s.locked(func(st *state) { out, _ = st.searchProducts("", 0, 0) })
	return out, nil
}

func (s *Store) SearchProducts(_ context.Context, q string, limit, offset int) (out []orders.Product, total int, err error) {
	s.locked(func(st *state) { out, total = st.searchProducts(q, limit, offset) })
	return out, total, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.locked(func(st *state) { delete(st.products, id) })
	return nil
}

// users

func (s *Store) CreateUser(_ context.Context, u orders.User) (out orders.User, err error) {
	s.locked(func(st *state) { out, err = st.createUser(u) })
	return out, err
}

func (s *Store) FindByEmail(_ context.Context, email string) (out orders.User, err error) {
	s.locked(func(st *state) { out, err = st.findUserByEmail(email) })
	return out, err
}

// orders

func (s *Store) Save(_ context.Context, o *orders.Order) error {
	s.locked(func(st *state) { st.saveOrder(o) })
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (out orders.Order, err error) {
	s.locked(func(st *state) { out, err = st.findOrder(id) })
	return out, err
}

func (s *Store) FindByOwner(_ context.Context, ownerID string) (out []orders.Order, err error) {
	s.locked(func(st *state) {
		out = st.filterOrders(func(o storedOrder) bool { return o.ownerID == ownerID })
	})
	return out, nil
}

func (s *Store) FindByStatus(_ context.Context, status orders.Status) (out []orders.Order, err error) {
	s.locked(func(st *state) {
		out = st.filterOrders(func(o storedOrder) bool { return o.status == status })
	})
	return out, nil
}

func (s *Store) FindByOwnerAndStatus(_ context.Context, ownerID string, status orders.Status) (out []orders.Order, err error) {
	s.locked(func(st *state) {
		out = st.filterOrders(func(o storedOrder) bool { return o.ownerID == ownerID && o.status == status })
	})
	return out, nil
}

func (s *Store) FindAll(_ context.Context) (out []orders.Order, err error) {
	s.locked(func(st *state) {
		out = st.filterOrders(func(storedOrder) bool { return true })
	})
	return out, nil
}

type storedOrder struct {
	order   orders.Order
	ownerID string
	status  orders.Status
}

type state struct {
	products map[string]orders.Product
	users    map[string]orders.User
	orders   map[string]storedOrder
	orderSeq []string
}

func newState() *state {
	return &state{
		products: map[string]orders.Product{},
		users:    map[string]orders.User{},
		orders:   map[string]storedOrder{},
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.orders {
		v.order.Lines = append([]orders.OrderLine(nil), v.order.Lines...)
		c.orders[k] = v
	}
	c.orderSeq = append([]string(nil), st.orderSeq...)
	return c
}

func (st *state) createProduct(p orders.Product) orders.Product {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	st.products[p.ID] = p
	return p
}

func (st *state) findProduct(id string) (orders.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return orders.Product{}, orders.ErrNotFound
	}
	return p, nil
}

func (st *state) saveProduct(p orders.Product) (orders.Product, error) {
	if _, ok := st.products[p.ID]; !ok {
		return orders.Product{}, orders.ErrNotFound
	}
	st.products[p.ID] = p
	return p, nil
}

func (st *state) searchProducts(q string, limit, offset int) ([]orders.Product, int) {
	q = strings.ToLower(q)
	var hits []orders.Product
	for _, p := range st.products {
		if q == "" || strings.Contains(strings.ToLower(p.Name), q) {
			hits = append(hits, p)
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Name != hits[j].Name {
			return hits[i].Name < hits[j].Name
		}
		return hits[i].ID < hits[j].ID
	})
	total := len(hits)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	hits = hits[offset:]
	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, total
}

func (st *state) createUser(u orders.User) (orders.User, error) {
	if _, err := st.findUserByEmail(u.Email); err == nil {
		return orders.User{}, orders.ErrDuplicate
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	st.users[u.ID] = u
	return u, nil
}

func (st *state) findUserByEmail(email string) (orders.User, error) {
	for _, u := range st.users {
		if u.Email == email {
			return u, nil
		}
	}
	return orders.User{}, orders.ErrNotFound
}

// saveOrder inserts a new aggregate or updates the status of an existing one;
// lines are immutable after the first write.
func (st *state) saveOrder(o *orders.Order) {
	if cur, ok := st.orders[o.ID]; ok {
		cur.status = o.Status
		cur.order.Status = o.Status
		st.orders[o.ID] = cur
		return
	}
	stored := *o
	stored.Lines = make([]orders.OrderLine, len(o.Lines))
	for i, l := range o.Lines {
		l.OrderID = o.ID
		l.Product = nil
		stored.Lines[i] = l
	}
	stored.Owner = orders.User{}
	st.orders[o.ID] = storedOrder{order: stored, ownerID: o.Owner.ID, status: o.Status}
	st.orderSeq = append(st.orderSeq, o.ID)
}

func (st *state) findOrder(id string) (orders.Order, error) {
	so, ok := st.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return st.hydrate(so), nil
}

func (st *state) filterOrders(keep func(storedOrder) bool) []orders.Order {
	out := []orders.Order{}
	for _, id := range st.orderSeq {
		if so := st.orders[id]; keep(so) {
			out = append(out, st.hydrate(so))
		}
	}
	return out
}

// hydrate attaches the owner and the live products, the same shape the
// relational store produces with its joins.
func (st *state) hydrate(so storedOrder) orders.Order {
	o := so.order
	o.Owner = st.users[so.ownerID]
	o.Lines = make([]orders.OrderLine, len(so.order.Lines))
	for i, l := range so.order.Lines {
		if p, ok := st.products[l.ProductID]; ok {
			p := p
			l.Product = &p
		}
		o.Lines[i] = l
	}
	return o
}

type txView struct{ st *state }

func (t txView) Products() orders.ProductStore     { return productTx(t) }
func (t txView) Orders() orders.LockingOrderStore { return orderTx(t) }

type productTx struct{ st *state }

func (p productTx) FindByIDForUpdate(_ context.Context, id string) (orders.Product, error) {
	return p.st.findProduct(id)
}

func (p productTx) Save(_ context.Context, prod orders.Product) (orders.Product, error) {
	return p.st.saveProduct(prod)
}

type orderTx struct{ st *state }

func (o orderTx) Save(_ context.Context, ord *orders.Order) error {
	o.st.saveOrder(ord)
	return nil
}

func (o orderTx) FindByID(_ context.Context, id string) (orders.Order, error) {
	return o.st.findOrder(id)
}

func (o orderTx) FindByIDForUpdate(_ context.Context, id string) (orders.Order, error) {
	return o.st.findOrder(id)
}

func (o orderTx) FindByOwner(_ context.Context, ownerID string) ([]orders.Order, error) {
	return o.st.filterOrders(func(so storedOrder) bool { return so.ownerID == ownerID }), nil
}

func (o orderTx) FindByStatus(_ context.Context, status orders.Status) ([]orders.Order, error) {
	return o.st.filterOrders(func(so storedOrder) bool { return so.status == status }), nil
}

func (o orderTx) FindByOwnerAndStatus(_ context.Context, ownerID string, status orders.Status) ([]orders.Order, error) {
	return o.st.filterOrders(func(so storedOrder) bool { return so.ownerID == ownerID && so.status == status }), nil
}

func (o orderTx) FindAll(_ context.Context) ([]orders.Order, error) {
	return o.st.filterOrders(func(storedOrder) bool { return true }), nil
}
