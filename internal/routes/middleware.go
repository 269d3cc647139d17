package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ntentasd/ecobin-api/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handle registers h under route with latency, status and access logging.
func (app *App) handle(mux *http.ServeMux, route string, h http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		h(rec, r)

		elapsed := time.Since(start)
		metrics.HttpRequestLatencySeconds.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		metrics.HttpResponsesTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()

		app.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}
