package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Middleware returns an http middleware that answers 429 once a client's
// bucket is empty. Clients are keyed by remote IP, so it should run after
// chi's RealIP. onLimited, when set, is called for every refused request.
func Middleware(l *Limiter, logger *zap.Logger, onLimited func(r *http.Request)) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			ok, remaining, wait := l.Allow(key)
			w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(l.Limit(), 'f', 0, 64))
			if ok {
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatFloat(math.Floor(remaining), 'f', 0, 64))
				next.ServeHTTP(w, r)
				return
			}

			retry := int(math.Ceil(wait.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			logger.Debug("rate limit exceeded",
				zap.String("client", key),
				zap.String("path", r.URL.Path),
				zap.Duration("retry_after", time.Duration(retry)*time.Second))
			if onLimited != nil {
				onLimited(r)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded, retry later"})
		})
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
