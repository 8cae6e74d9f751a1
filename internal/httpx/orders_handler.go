package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/ariefcatur/go-ecommerce-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type createOrderReq struct {
	Items []orders.LineRequest `json:"items"`
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, a.Log, errInvalidJSON)
		return
	}

	// Fast-path idempotency via Redis; the database remains the source of truth.
	idemKey := r.Header.Get(HeaderIdempotencyKey)
	if idemKey != "" && a.Idem != nil {
		if prev := a.replay(r, p, idemKey); prev != nil {
			writeJSON(w, http.StatusOK, toOrder(*prev))
			return
		}
	}

	o, err := a.Orders.CreateOrder(r.Context(), p, req.Items)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if idemKey != "" && a.Idem != nil {
		if err := a.Idem.Remember(r.Context(), p.Email, idemKey, o.ID); err != nil {
			a.Log.WithFields(logrus.Fields{"order_id": o.ID, "err": err}).Warn("store idempotency key")
		}
	}
	a.cacheStatus(r, o)
	writeJSON(w, http.StatusCreated, toOrder(o))
}

// replay returns the order an earlier request with the same key created, if any.
func (a *API) replay(r *http.Request, p orders.Principal, key string) *orders.Order {
	id, err := a.Idem.Lookup(r.Context(), p.Email, key)
	if err != nil {
		a.Log.WithError(err).Warn("idempotency lookup")
		return nil
	}
	if id == "" {
		return nil
	}
	o, err := a.Orders.GetOrder(r.Context(), p, id)
	if err != nil {
		a.Log.WithFields(logrus.Fields{"order_id": id, "err": err}).Warn("idempotent replay")
		return nil
	}
	return &o
}

// listOrders serves both roles: a client sees its own orders, an admin sees all.
func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	status, err := orders.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	var list []orders.Order
	if p.IsAdmin() {
		list, err = a.Orders.ListAllOrders(r.Context(), status)
	} else {
		list, err = a.Orders.ListOrdersForPrincipal(r.Context(), p, status)
	}
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(list))
}

func (a *API) myOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	status, err := orders.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	list, err := a.Orders.ListOrdersForPrincipal(r.Context(), p, status)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(list))
}

func (a *API) allOrders(w http.ResponseWriter, r *http.Request) {
	status, err := orders.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	list, err := a.Orders.ListAllOrders(r.Context(), status)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(list))
}

func (a *API) clientOrders(w http.ResponseWriter, r *http.Request) {
	status, err := orders.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	list, err := a.Orders.ListOrdersForClient(r.Context(), chi.URLParam(r, "email"), status)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(list))
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	o, err := a.Orders.GetOrder(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

// orderStatus reads the projected status from Redis and falls back to the store.
func (a *API) orderStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	id := chi.URLParam(r, "id")

	if a.Status != nil {
		e, ok, err := a.Status.Get(r.Context(), id)
		if err != nil {
			a.Log.WithFields(logrus.Fields{"order_id": id, "err": err}).Warn("status cache read")
		}
		if ok && (p.IsAdmin() || e.Owner == p.Email) {
			writeJSON(w, http.StatusOK, statusDTO{ID: id, Status: e.Status, Source: "cache"})
			return
		}
	}

	o, err := a.Orders.GetOrder(r.Context(), p, id)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	// a PENDING read may race a cancel; only terminal states are cached from here
	if len(orders.NextStates(o.Status)) == 0 {
		a.cacheStatus(r, o)
	}
	writeJSON(w, http.StatusOK, statusDTO{ID: o.ID, Status: o.Status, Source: "db"})
}

func (a *API) cancelOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	o, err := a.Orders.CancelOrder(r.Context(), chi.URLParam(r, "id"), p.Email)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	a.cacheStatus(r, o)
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (a *API) cacheStatus(r *http.Request, o orders.Order) {
	if a.Status == nil {
		return
	}
	err := a.Status.Set(r.Context(), o.ID, redisx.StatusEntry{
		Status:    o.Status,
		Owner:     o.Owner.Email,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		a.Log.WithFields(logrus.Fields{"order_id": o.ID, "err": err}).Warn("status cache write")
	}
}
