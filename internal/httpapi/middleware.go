package httpapi

import (
	"context"
	"net/http"

	"github.com/karsell/intake/internal/auth"
)

type contextKey string

const sellerIDKey contextKey = "sellerID"

// sellerID returns the authenticated seller of a request, or "".
func sellerID(ctx context.Context) string {
	v, _ := ctx.Value(sellerIDKey).(string)
	return v
}

// requireAuth verifies the bearer token and stashes the seller ID into
// the request context.
func requireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth.SellerIDFromBearer(r.Header.Get("Authorization"), secret)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sellerIDKey, id)))
		})
	}
}
