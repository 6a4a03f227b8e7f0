package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	"github.com/handlebauer/chat-genius-sub000/internal/utils"
)

type contextKey string

const claimsKey contextKey = "claims"

func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				// Browsers cannot set headers on websocket dials.
				if token := r.URL.Query().Get("token"); token != "" {
					authHeader = "Bearer " + token
				}
			}
			if authHeader == "" {
				writeError(w, domain.ErrUnauthorizedError)
				return
			}

			tokenString, err := utils.ExtractToken(authHeader)
			if err != nil {
				handleError(w, err)
				return
			}

			claims, err := utils.ValidateAccessToken(tokenString, secret)
			if err != nil {
				handleError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*utils.AccessClaims, error) {
	claims, ok := ctx.Value(claimsKey).(*utils.AccessClaims)
	if !ok {
		return nil, fmt.Errorf("claims not found in context")
	}
	return claims, nil
}
