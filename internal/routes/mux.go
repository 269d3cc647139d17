// Package routes
package routes

import (
	"net/http"

	"github.com/ntentasd/ecobin-api/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux wires every route. realtime serves /ws and may be nil.
func NewMux(app *App, realtime http.Handler) http.Handler {
	mux := http.NewServeMux()

	// health check
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/readyz", app.readyHandler)

	// metrics
	mux.Handle("/metrics", promhttp.Handler())

	// push channel
	if realtime != nil {
		mux.Handle("/ws", realtime)
	}

	// devices
	app.handle(mux, "/devices", app.devicesHandler)
	app.handle(mux, "/device", app.deviceHandler)

	// telemetry
	app.handle(mux, "/readings", app.aggregateHandler)
	app.handle(mux, "/readings/latest", app.latestHandler)
	app.handle(mux, "/readings/history", app.historyHandler)

	// scores
	app.handle(mux, "/health-score", app.healthScoreHandler)
	app.handle(mux, "/eco-score", app.ecoScoreHandler)
	app.handle(mux, "/eco-score/grade", app.ecoGradeHandler)
	app.handle(mux, "/ranking", app.rankingHandler)

	// processing
	app.handle(mux, "/sessions", app.sessionsHandler)
	app.handle(mux, "/sessions/progress", app.progressHandler)
	app.handle(mux, "/motor-time", app.motorTimeHandler)
	app.handle(mux, "/commands", app.commandsHandler)

	return utils.WithCORS(mux)
}
