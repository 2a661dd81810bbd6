package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/crucial707/keykiosk/internal/auth"
)

type key string

const kioskKey key = "kiosk_id"

// KioskAuth requires a bearer token issued by auth.IssueKioskToken and
// stores the kiosk id in the request context.
func KioskAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeError(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := auth.Parse(secret, raw)
			if err != nil {
				writeError(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), kioskKey, claims.KioskID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KioskID returns the authenticated kiosk, or "" outside KioskAuth.
func KioskID(ctx context.Context) string {
	id, _ := ctx.Value(kioskKey).(string)
	return id
}

// WithKioskID is used by tests that bypass KioskAuth.
func WithKioskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, kioskKey, id)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
