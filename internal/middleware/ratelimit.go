package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per tenant, falling back to the client address
// for unauthenticated requests.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(identityKeyFunc("tenant", GetTenantID)),
		httprate.WithLimitHandler(limitExceeded(windowLength)),
	)
}

// UserRateLimit limits requests per user. It guards the question routes,
// where every request costs model round trips.
func UserRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(identityKeyFunc("user", GetUserID)),
		httprate.WithLimitHandler(limitExceeded(windowLength)),
	)
}

func identityKeyFunc(kind string, get func(ctx context.Context) string) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		if id := get(r.Context()); id != "" {
			return kind + ":" + id, nil
		}
		return httprate.KeyByIP(r)
	}
}

func limitExceeded(window time.Duration) http.HandlerFunc {
	retryAfter := int(window.Round(time.Second) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	body := `{"error":"rate limit exceeded","retry_after":` + strconv.Itoa(retryAfter) + `}`

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(body))
	}
}
