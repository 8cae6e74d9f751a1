package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-ecommerce-orders/internal/catalog"
	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/go-chi/chi/v5"
)

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := a.Catalog.List(r.Context())
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProducts(ps))
}

func (a *API) searchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), "page", 0)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	size, err := intParam(q.Get("size"), "size", catalog.DefaultPageSize)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	res, err := a.Catalog.Search(r.Context(), q.Get("search"), page, size)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(res))
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, a.Log, errInvalidJSON)
		return
	}
	p, err := a.Catalog.Create(r.Context(), in)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProduct(p))
}

func (a *API) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, a.Log, errInvalidJSON)
		return
	}
	p, err := a.Catalog.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (a *API) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.Catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &orders.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return n, nil
}
