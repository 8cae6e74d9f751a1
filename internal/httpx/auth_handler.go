package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/ariefcatur/go-ecommerce-orders/internal/auth"
	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
)

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResp struct {
	Token string `json:"token"`
}

var errInvalidJSON = &orders.ValidationError{Field: "body", Reason: "invalid json"}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, a.Log, errInvalidJSON)
		return
	}
	token, err := a.Auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResp{Token: token})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, a.Log, errInvalidJSON)
		return
	}
	token, err := a.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResp{Token: token})
}
