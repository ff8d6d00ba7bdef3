// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type deviceCtxKey struct{}

// deviceFrom returns the authenticated device of the request, empty for
// unauthenticated routes.
func deviceFrom(r *http.Request) string {
	device, _ := r.Context().Value(deviceCtxKey{}).(string)
	return device
}

// logging attaches a request-scoped child logger carrying a trace ID and
// the request route, and logs one line per request with the duration.
func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		child := h.logger.With().
			Str("trace_id", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		ctx := child.WithContext(r.Context())

		next.ServeHTTP(w, r.WithContext(ctx))

		child.Debug().Dur("duration", time.Since(start)).Msg("request handled")
	})
}

// auth enforces bearer session tokens and stores the authenticated device
// in the request context.
func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "authorization header is empty", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) < 2 || parts[1] == "" {
			http.Error(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		device, err := h.tokens.ParseToken(parts[1])
		if err != nil {
			if errors.Is(err, ErrTokenIsExpired) {
				http.Error(w, ErrTokenIsExpired.Error(), http.StatusUnauthorized)
				return
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), deviceCtxKey{}, device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit caps mutating requests per device. Rejections carry a
// Retry-After header so clients know when to come back.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryIn := h.limiter.allow(deviceFrom(r))
		if !ok {
			seconds := int(retryIn.Round(time.Second).Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
