package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	apperrors "github.com/trainerbook/scheduling-server-go/internal/errors"
	"github.com/trainerbook/scheduling-server-go/internal/httputil"
)

// RateLimitMiddleware applies a fixed-window per-IP limit backed by Redis so
// the limit holds across server instances.
type RateLimitMiddleware struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimitMiddleware(client *redis.Client, limitPerMin int) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		client: client,
		limit:  limitPerMin,
		window: time.Minute,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%d", r.RemoteAddr, time.Now().Unix()/int64(m.window.Seconds()))

		count, err := m.client.Incr(r.Context(), key).Result()
		if err != nil {
			// Redis being down should not take the API down with it.
			log.Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			m.client.Expire(r.Context(), key, m.window+10*time.Second)
		}

		if count > int64(m.limit) {
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
