package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/honeynil/skillswap-timebank/internal/infrastructure/observability"
)

type memberIDKey struct{}

// MemberID returns the authenticated member stored by AuthMiddleware.
func MemberID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(memberIDKey{}).(int64)
	return id, ok
}

func WithMemberID(ctx context.Context, memberID int64) context.Context {
	ctx = context.WithValue(ctx, memberIDKey{}, memberID)
	return observability.WithMember(ctx, memberID)
}

func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "authorization header missing")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeUnauthorized(w, "invalid authorization header")
				return
			}

			memberID, err := ParseToken(parts[1], secret)
			if err != nil {
				slog.Warn("rejected token", "path", r.URL.Path, "error", err)
				writeUnauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithMemberID(r.Context(), memberID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
