package api

import (
	chiprometheus "github.com/766b/chi-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// EnablePrometheusMetrics enables go-chi prometheus metrics under specified ID and serves
// every registered metric on /metrics. It must run before the other routes are registered.
// If ID empty, the default "gochi_http" is used.
func (a *API) EnablePrometheusMetrics(prometheusID string) {
	if prometheusID == "" {
		prometheusID = "gochi_http"
	}
	a.Router.Use(chiprometheus.NewMiddleware(prometheusID))
	log.Info().Msg("register route GET /metrics")
	a.Router.Handle("/metrics", promhttp.Handler())
}
