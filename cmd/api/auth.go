package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const staffIDKey ctxKey = "staff_id"

// authMiddleware accepts HS256 bearer tokens whose subject is the numeric
// staff id and stores that id in the request context.
func authMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing auth token", Code: "unauthorized"})
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(h, "Bearer "), claims, func(t *jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token", Code: "unauthorized"})
				return
			}

			staffID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil || staffID <= 0 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token subject", Code: "unauthorized"})
				return
			}

			ctx := context.WithValue(r.Context(), staffIDKey, staffID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// staffID returns the authenticated staff id, zero when absent.
func staffID(r *http.Request) int64 {
	id, _ := r.Context().Value(staffIDKey).(int64)
	return id
}
