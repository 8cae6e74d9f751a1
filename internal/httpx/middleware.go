package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-ecommerce-orders/internal/auth"
	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errForbidden = errors.New("insufficient role")

type principalKey struct{}

func withPrincipal(ctx context.Context, p orders.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller placed in ctx by Authenticate.
func PrincipalFrom(ctx context.Context) (orders.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(orders.Principal)
	return p, ok
}

// Authenticate rejects requests without a valid bearer token.
func Authenticate(gate *auth.Service, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeError(w, log, auth.ErrInvalidToken)
				return
			}
			p, err := gate.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole must run after Authenticate.
func RequireRole(role orders.Role, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, log, orders.ErrUnknownPrincipal)
				return
			}
			if p.Role != role {
				writeError(w, log, errForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
