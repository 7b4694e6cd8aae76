package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/sitevitals-console/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс проверки токена оператора консоли
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Типизированные ключи контекста (избегаем коллизий со строками)
type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyScopes ctxKey = "user_scopes"
)

// NewMiddleware проверяет Bearer-токен и кладет claims в контекст запроса.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyScopes, claims.Scopes)
			ctx = context.WithValue(ctx, ctxKeyUserID, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope пропускает дальше только операторов с нужным scope.
// Для операций уровня «управление конфигурацией сайта» это scope "admin".
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes, ok := r.Context().Value(ctxKeyScopes).(map[string]bool)
			if !ok || !scopes[scope] {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserID достает идентификатор оператора из контекста (после NewMiddleware).
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return id
	}
	return ""
}
