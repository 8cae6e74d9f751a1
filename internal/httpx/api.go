package httpx

import (
	"github.com/ariefcatur/go-ecommerce-orders/internal/auth"
	"github.com/ariefcatur/go-ecommerce-orders/internal/catalog"
	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/ariefcatur/go-ecommerce-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// API wires the HTTP surface to the services. Idem and Status are optional;
// when nil, idempotency keys are ignored and status reads go to the store.
type API struct {
	Auth    *auth.Service
	Catalog *catalog.Service
	Orders  *orders.Service
	Idem    *redisx.Idempotency
	Status  *redisx.StatusCache
	Log     logrus.FieldLogger
}

func (a *API) Register(r chi.Router) {
	if a.Log == nil {
		a.Log = logrus.StandardLogger()
	}
	authn := Authenticate(a.Auth, a.Log)
	admin := RequireRole(orders.RoleAdmin, a.Log)
	client := RequireRole(orders.RoleClient, a.Log)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", a.register)
		r.Post("/auth/login", a.login)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", a.listProducts)
			r.Get("/search", a.searchProducts)
			r.Get("/{id}", a.getProduct)
			r.Group(func(r chi.Router) {
				r.Use(authn, admin)
				r.Post("/", a.createProduct)
				r.Put("/{id}", a.updateProduct)
				r.Delete("/{id}", a.deleteProduct)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(authn)
			r.Get("/", a.listOrders)
			r.Get("/{id}", a.getOrder)
			r.Get("/{id}/status", a.orderStatus)
			r.Group(func(r chi.Router) {
				r.Use(client)
				r.Post("/", a.createOrder)
				r.Get("/my-orders", a.myOrders)
				r.Post("/{id}/cancel", a.cancelOrder)
			})
			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Get("/all", a.allOrders)
				r.Get("/all/filter", a.allOrders)
				r.Get("/client/{email}", a.clientOrders)
			})
		})
	})
}
