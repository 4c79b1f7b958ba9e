package router

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	v1 "github.com/tinoosan/manifest-sync/api/v1"
	"github.com/tinoosan/manifest-sync/internal/auth"
	"github.com/tinoosan/manifest-sync/internal/repo"
)

// Paths served without the API token.
const (
	HealthPath  = "/healthz"
	MetricsPath = "/metrics"
)

// New sets up the status routes served while a sync runs: health, metrics
// from gatherer, and the run history.
func New(logger *slog.Logger, runs repo.RunReader, gatherer prometheus.Gatherer, apiToken string) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := mux.NewRouter()
	r.HandleFunc(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Error("write healthz response", "err", err)
		}
	}).Methods("GET")
	r.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	runHandler := v1.NewRunHandler(logger, runs)

	r.Use(runHandler.Log)
	r.Use(auth.RequireToken(apiToken, HealthPath, MetricsPath))

	api := r.PathPrefix("/v1").Subrouter()

	// GETs
	get := api.Methods("GET").Subrouter()
	get.HandleFunc("/runs", runHandler.GetRuns)
	get.HandleFunc("/runs/{id}", runHandler.GetRun)

	return r
}
