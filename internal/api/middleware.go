package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/stats"
)

// requestLogger emits one structured line per request, including the
// query and cache counters accumulated in the request context.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, counters := stats.WithCounters(r.Context())
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			log.Info().
				Str("request_id", middleware.GetReqID(ctx)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Int64("db_queries", counters.Queries()).
				Int64("cache_hits", counters.CacheHits()).
				Int64("cache_misses", counters.CacheMisses()).
				Msg("request")
		})
	}
}
