package middleware

import (
	"net/http"
	"time"

	"github.com/josh-kwaku/payout-ledger/internal/metrics"
)

// Metrics records request latency by route pattern. It must wrap the
// ServeMux directly so the matched pattern is visible after dispatch.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.ObserveHTTP(r.Method, route, rec.status, time.Since(start))
		})
	}
}
