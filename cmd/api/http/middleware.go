package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/library-service/cmd/api/auth"
	"github.com/library-service/cmd/api/library"
	"golang.org/x/time/rate"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/library-service/cmd/api/http TokenValidator
//go:generate mockgen -destination=mocks/service.go -package=mocks github.com/library-service/cmd/api/library ServiceAPI

type TokenValidator interface {
	ParseAccessToken(token string) (auth.Claims, error)
}

type ctxKey int

const claimsKey ctxKey = iota

/* Every request gets a deadline; the service maps an expired one to a timeout error. */
func requestTimeout(timeout time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

/* Rejects requests without a valid access token and stores its claims in the request context. */
func authenticate(tokens TokenValidator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
				responseJSON(w, http.StatusUnauthorized, library.ErrResponseUnauthorized)
				return
			}

			claims, err := tokens.ParseAccessToken(token)
			if err != nil {
				responseJSON(w, http.StatusUnauthorized, library.ErrResponseUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

func claimsFrom(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(auth.Claims)
	return claims, ok
}

const maxTrackedClients = 1024

/* Token bucket per client address. */
type clientLimiter struct {
	every   rate.Limit
	burst   int
	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

func newClientLimiter(interval time.Duration, burst int) *clientLimiter {
	return &clientLimiter{
		every:   rate.Every(interval),
		burst:   burst,
		clients: map[string]*rate.Limiter{},
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.prune()
		}
		limiter = rate.NewLimiter(l.every, l.burst)
		l.clients[client] = limiter
	}
	return limiter.Allow()
}

/* Drops limiters whose bucket refilled, they behave the same as a new one. */
func (l *clientLimiter) prune() {
	for client, limiter := range l.clients {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.clients, client)
		}
	}
}

/* Answers 429 once a client exceeds the limiter's rate. */
func rateLimit(limiter *clientLimiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientAddress(r)) {
				responseJSON(w, http.StatusTooManyRequests, library.ErrResponseTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
